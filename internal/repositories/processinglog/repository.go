package processinglog

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var logColumns = []string{"id", "process_type", "status", "details", "records_processed", "created_at", "completed_at"}

// Repository handles processing log persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new processing log repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Append writes a new run entry, usually with status started
func (r *Repository) Append(ctx context.Context, entry *models.ProcessingLog) (*models.ProcessingLog, error) {
	ctx, span := tracing.StartSpan(ctx, "processinglog.Repository.Append")
	defer span.End()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Status == "" {
		entry.Status = models.ProcessStatusStarted
	}
	entry.CreatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("processing_logs")
	sb.Cols("id", "process_type", "status", "details", "records_processed", "created_at")
	sb.Values(entry.ID, entry.ProcessType, entry.Status, entry.Details, entry.RecordsProcessed, entry.CreatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"process_type": entry.ProcessType}).Error("Failed to append processing log")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to append processing log")
	}

	return entry, nil
}

// Finish records a run's terminal status and completion time
func (r *Repository) Finish(ctx context.Context, id string, status models.ProcessStatus, details string) error {
	ctx, span := tracing.StartSpan(ctx, "processinglog.Repository.Finish")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("processing_logs")
	ub.Set(
		ub.Assign("status", status),
		ub.Assign("details", details),
		ub.Assign("completed_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"log_id": id, "status": status}).Error("Failed to finish processing log")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to finish processing log")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("processing log %s not found", id))
	}

	return nil
}

// FinishWithCount records a run's terminal status along with its record
// count. The matching flow maintains its count transactionally per batch and
// uses Finish instead.
func (r *Repository) FinishWithCount(ctx context.Context, id string, status models.ProcessStatus, details string, records int) error {
	ctx, span := tracing.StartSpan(ctx, "processinglog.Repository.FinishWithCount")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("processing_logs")
	ub.Set(
		ub.Assign("status", status),
		ub.Assign("details", details),
		ub.Assign("records_processed", records),
		ub.Assign("completed_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"log_id": id, "status": status}).Error("Failed to finish processing log")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to finish processing log")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("processing log %s not found", id))
	}

	return nil
}

// Get retrieves a run entry by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.ProcessingLog, error) {
	ctx, span := tracing.StartSpan(ctx, "processinglog.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(logColumns...)
	sb.From("processing_logs")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var entry models.ProcessingLog
	if err := r.db.GetContext(ctx, &entry, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("processing log %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get processing log")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get processing log")
	}

	return &entry, nil
}

// List retrieves run entries, newest first, optionally filtered by process type
func (r *Repository) List(ctx context.Context, processType models.ProcessType, limit int) ([]models.ProcessingLog, error) {
	ctx, span := tracing.StartSpan(ctx, "processinglog.Repository.List")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 50
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(logColumns...)
	sb.From("processing_logs")
	if processType != "" {
		sb.Where(sb.Equal("process_type", processType))
	}
	sb.OrderBy("created_at").Desc()
	sb.Limit(limit)

	query, args := sb.Build()
	entries := []models.ProcessingLog{}
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list processing logs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list processing logs")
	}

	return entries, nil
}
