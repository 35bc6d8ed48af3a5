// Package ingest loads user profiles from CSV files uploaded to S3. Rows are
// validated and upserted individually so one bad row never sinks the file.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var requiredColumns = []string{"user_id", "email", "monthly_income", "credit_score", "employment_status", "age"}

var validEmployment = map[models.EmploymentStatus]bool{
	models.EmploymentStatusEmployed:     true,
	models.EmploymentStatusSelfEmployed: true,
	models.EmploymentStatusUnemployed:   true,
	models.EmploymentStatusStudent:      true,
	models.EmploymentStatusRetired:      true,
}

// maxReportedErrors caps how many row errors the response carries
const maxReportedErrors = 10

type objectFetcher interface {
	Fetch(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

type userUpserter interface {
	Upsert(ctx context.Context, req *models.UpsertUserRequest) (*models.User, error)
}

type runLog interface {
	Append(ctx context.Context, entry *models.ProcessingLog) (*models.ProcessingLog, error)
	FinishWithCount(ctx context.Context, id string, status models.ProcessStatus, details string, records int) error
}

// RowError describes why one CSV row was rejected
type RowError struct {
	Row    int    `json:"row"`
	UserID string `json:"user_id,omitempty"`
	Reason string `json:"reason"`
}

// Result summarizes one CSV ingest run
type Result struct {
	Processed int        `json:"processed"`
	Added     int        `json:"added"`
	Failed    int        `json:"failed"`
	Errors    []RowError `json:"errors,omitempty"`
}

func (r *Result) reject(row int, userID, reason string) {
	r.Failed++
	if len(r.Errors) < maxReportedErrors {
		r.Errors = append(r.Errors, RowError{Row: row, UserID: userID, Reason: reason})
	}
}

// Processor ingests uploaded CSV files into user profiles
type Processor struct {
	store  objectFetcher
	users  userUpserter
	logs   runLog
	logger ectologger.Logger
}

// NewProcessor creates a CSV ingest processor
func NewProcessor(store objectFetcher, users userUpserter, logs runLog, logger ectologger.Logger) *Processor {
	return &Processor{
		store:  store,
		users:  users,
		logs:   logs,
		logger: logger,
	}
}

// ProcessFile ingests one uploaded CSV file. The run is bracketed by a
// processing log entry; structural failures (missing object, bad header)
// fail the run, row-level failures are collected and reported.
func (p *Processor) ProcessFile(ctx context.Context, bucket, key string) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "ingest.Processor.ProcessFile")
	defer span.End()

	detail := fmt.Sprintf("Processing file: %s", key)
	entry, err := p.logs.Append(ctx, &models.ProcessingLog{
		ProcessType: models.ProcessTypeCSVUpload,
		Status:      models.ProcessStatusStarted,
		Details:     &detail,
	})
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to record ingest start")
		return nil, err
	}

	result, runErr := p.ingest(ctx, bucket, key)

	// Terminal log writes survive run cancellation
	finishCtx := context.WithoutCancel(ctx)

	if runErr != nil {
		if err := p.logs.FinishWithCount(finishCtx, entry.ID, models.ProcessStatusFailed, fmt.Sprintf("Error: %v", runErr), 0); err != nil {
			p.logger.WithContext(ctx).WithError(err).Error("Failed to record ingest failure")
		}

		p.logger.WithContext(ctx).WithError(runErr).WithFields(map[string]any{
			"bucket": bucket,
			"key":    key,
		}).Error("CSV ingest failed")
		return nil, runErr
	}

	summary := fmt.Sprintf("Successfully processed %d users, added %d new users", result.Processed, result.Added)
	if err := p.logs.FinishWithCount(finishCtx, entry.ID, models.ProcessStatusCompleted, summary, result.Processed); err != nil {
		return nil, err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"key":       key,
		"processed": result.Processed,
		"added":     result.Added,
		"failed":    result.Failed,
	}).Info("CSV ingest completed")

	return result, nil
}

func (p *Processor) ingest(ctx context.Context, bucket, key string) (*Result, error) {
	body, err := p.store.Fetch(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	reader := csv.NewReader(body)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols, missing := mapColumns(header)
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}

	result := &Result{}
	row := 1

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			result.reject(row, "", fmt.Sprintf("malformed row: %v", err))
			metrics.IngestRowsTotal.WithLabelValues("rejected").Inc()
			continue
		}

		req, reason := parseRow(cols, record)
		if reason != "" {
			result.reject(row, fieldOrEmpty(cols, record, "user_id"), reason)
			metrics.IngestRowsTotal.WithLabelValues("rejected").Inc()
			continue
		}

		usr, err := p.users.Upsert(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}

			p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"user_id": req.UserID,
				"row":     row,
			}).Error("Failed to upsert user from CSV row")
			result.reject(row, req.UserID, "database error")
			metrics.IngestRowsTotal.WithLabelValues("failed").Inc()
			continue
		}

		result.Processed++
		if usr.CreatedAt.Equal(usr.UpdatedAt) {
			result.Added++
		}
		metrics.IngestRowsTotal.WithLabelValues("upserted").Inc()
	}

	return result, nil
}

// mapColumns resolves required column positions from the header row
func mapColumns(header []string) (map[string]int, []string) {
	positions := make(map[string]int, len(header))
	for i, name := range header {
		positions[strings.ToLower(strings.TrimSpace(name))] = i
	}

	cols := make(map[string]int, len(requiredColumns))
	var missing []string
	for _, name := range requiredColumns {
		idx, ok := positions[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		cols[name] = idx
	}

	return cols, missing
}

// parseRow validates one record and builds the upsert request. All failures
// for the row are joined into a single reason.
func parseRow(cols map[string]int, record []string) (*models.UpsertUserRequest, string) {
	var reasons []string

	userID := fieldOrEmpty(cols, record, "user_id")
	if userID == "" {
		reasons = append(reasons, "Missing user_id")
	}

	email := fieldOrEmpty(cols, record, "email")
	if !strings.Contains(email, "@") {
		reasons = append(reasons, "Invalid email format")
	}

	var monthlyIncome float64
	if v, err := strconv.ParseFloat(fieldOrEmpty(cols, record, "monthly_income"), 64); err != nil {
		reasons = append(reasons, "Invalid monthly income")
	} else if v < 0 {
		reasons = append(reasons, "Monthly income must be positive")
	} else {
		monthlyIncome = v
	}

	var creditScore int
	if v, err := strconv.Atoi(fieldOrEmpty(cols, record, "credit_score")); err != nil {
		reasons = append(reasons, "Invalid credit score")
	} else if v < 300 || v > 850 {
		reasons = append(reasons, "Credit score must be between 300 and 850")
	} else {
		creditScore = v
	}

	var age int
	if v, err := strconv.Atoi(fieldOrEmpty(cols, record, "age")); err != nil {
		reasons = append(reasons, "Invalid age")
	} else if v < 18 || v > 100 {
		reasons = append(reasons, "Age must be between 18 and 100")
	} else {
		age = v
	}

	employment := models.EmploymentStatus(strings.ToLower(strings.TrimSpace(fieldOrEmpty(cols, record, "employment_status"))))
	if !validEmployment[employment] {
		reasons = append(reasons, "Invalid employment status")
	}

	if len(reasons) > 0 {
		return nil, strings.Join(reasons, "; ")
	}

	return &models.UpsertUserRequest{
		UserID:           userID,
		Email:            email,
		MonthlyIncome:    monthlyIncome,
		CreditScore:      creditScore,
		EmploymentStatus: employment,
		Age:              age,
	}, ""
}

func fieldOrEmpty(cols map[string]int, record []string, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}
