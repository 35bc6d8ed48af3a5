// Package notify emails users their new loan matches. The dispatcher is the
// only component that flips notification_sent, so the matching pipeline can
// re-run without re-notifying anyone.
package notify

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

type matchStore interface {
	ListPendingNotification(ctx context.Context, limit int) ([]models.UserLoanMatch, error)
	MarkNotified(ctx context.Context, ids []string) error
}

type userGetter interface {
	Get(ctx context.Context, id string) (*models.User, error)
}

type productGetter interface {
	Get(ctx context.Context, id string) (*models.LoanProduct, error)
}

// EmailSender delivers one rendered email
type EmailSender interface {
	Send(ctx context.Context, to, subject, textBody, htmlBody string) (string, error)
}

// Config holds notification tunables
type Config struct {
	BatchSize   int           // Pending matches pulled per run
	MaxPerEmail int           // Best-scored matches shown per email
	SendDelay   time.Duration // Delay between sends
}

// DefaultConfig returns the default notification tunables
func DefaultConfig() Config {
	return Config{
		BatchSize:   50,
		MaxPerEmail: 5,
		SendDelay:   time.Second,
	}
}

// Result summarizes one notification run
type Result struct {
	EmailsSent    int `json:"emails_sent"`
	UsersNotified int `json:"users_notified"`
}

// Dispatcher sends match notification emails
type Dispatcher struct {
	matches  matchStore
	users    userGetter
	products productGetter
	sender   EmailSender
	logs     runLog
	logger   ectologger.Logger
	config   Config
}

type runLog interface {
	Append(ctx context.Context, entry *models.ProcessingLog) (*models.ProcessingLog, error)
	FinishWithCount(ctx context.Context, id string, status models.ProcessStatus, details string, records int) error
}

// NewDispatcher creates a notification dispatcher
func NewDispatcher(matches matchStore, users userGetter, products productGetter, sender EmailSender, logs runLog, logger ectologger.Logger, config Config) *Dispatcher {
	def := DefaultConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.MaxPerEmail <= 0 {
		config.MaxPerEmail = def.MaxPerEmail
	}
	if config.SendDelay <= 0 {
		config.SendDelay = def.SendDelay
	}

	return &Dispatcher{
		matches:  matches,
		users:    users,
		products: products,
		sender:   sender,
		logs:     logs,
		logger:   logger,
		config:   config,
	}
}

// Run delivers pending match notifications grouped per user. A user whose
// email fails stays pending for the next run; other users are unaffected.
func (d *Dispatcher) Run(ctx context.Context) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "notify.Dispatcher.Run")
	defer span.End()

	detail := "Starting email notification process"
	entry, err := d.logs.Append(ctx, &models.ProcessingLog{
		ProcessType: models.ProcessTypeNotification,
		Status:      models.ProcessStatusStarted,
		Details:     &detail,
	})
	if err != nil {
		d.logger.WithContext(ctx).WithError(err).Error("Failed to record notification start")
		return nil, err
	}

	result, runErr := d.dispatch(ctx)

	// Terminal log writes survive run cancellation
	finishCtx := context.WithoutCancel(ctx)

	if runErr != nil {
		if err := d.logs.FinishWithCount(finishCtx, entry.ID, models.ProcessStatusFailed, fmt.Sprintf("Error during notification process: %v", runErr), result.UsersNotified); err != nil {
			d.logger.WithContext(ctx).WithError(err).Error("Failed to record notification failure")
		}

		d.logger.WithContext(ctx).WithError(runErr).Error("Notification run failed")
		return nil, runErr
	}

	summary := fmt.Sprintf("Successfully sent %d emails to %d users", result.EmailsSent, result.UsersNotified)
	if result.UsersNotified == 0 {
		summary = "No users with unsent notifications found"
	}

	if err := d.logs.FinishWithCount(finishCtx, entry.ID, models.ProcessStatusCompleted, summary, result.UsersNotified); err != nil {
		return nil, err
	}

	d.logger.WithContext(ctx).WithFields(map[string]any{
		"emails_sent":    result.EmailsSent,
		"users_notified": result.UsersNotified,
	}).Info("Notification run completed")

	return result, nil
}

func (d *Dispatcher) dispatch(ctx context.Context) (*Result, error) {
	result := &Result{}

	pending, err := d.matches.ListPendingNotification(ctx, d.config.BatchSize)
	if err != nil {
		return result, err
	}
	if len(pending) == 0 {
		return result, nil
	}

	byUser := groupByUser(pending)
	productCache := map[string]*models.LoanProduct{}

	for i, userID := range sortedKeys(byUser) {
		if i > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(d.config.SendDelay):
			}
		}

		sent, err := d.notifyUser(ctx, userID, byUser[userID], productCache)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}

			d.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"user_id": userID,
			}).Error("Error sending notification to user, leaving pending for retry")
			continue
		}

		if sent {
			result.EmailsSent++
			result.UsersNotified++
			metrics.NotificationsSentTotal.Inc()
		}
	}

	return result, nil
}

// notifyUser renders and sends one user's email covering all their pending
// matches, then marks every one of them notified. The email shows at most
// MaxPerEmail cards, best score first.
func (d *Dispatcher) notifyUser(ctx context.Context, userID string, userMatches []models.UserLoanMatch, productCache map[string]*models.LoanProduct) (bool, error) {
	usr, err := d.users.Get(ctx, userID)
	if err != nil {
		return false, err
	}

	sort.SliceStable(userMatches, func(i, j int) bool {
		return userMatches[i].Score > userMatches[j].Score
	})

	shown := userMatches
	if len(shown) > d.config.MaxPerEmail {
		shown = shown[:d.config.MaxPerEmail]
	}

	for _, m := range shown {
		if _, ok := productCache[m.ProductID]; ok {
			continue
		}
		product, err := d.products.Get(ctx, m.ProductID)
		if err != nil {
			return false, err
		}
		productCache[m.ProductID] = product
	}

	subject, textBody, htmlBody, err := buildEmail(shown, productCache)
	if err != nil {
		return false, err
	}

	messageID, err := d.sender.Send(ctx, usr.Email, subject, textBody, htmlBody)
	if err != nil {
		return false, err
	}

	ids := make([]string, len(userMatches))
	for i, m := range userMatches {
		ids[i] = m.ID
	}
	if err := d.matches.MarkNotified(ctx, ids); err != nil {
		return false, err
	}

	d.logger.WithContext(ctx).WithFields(map[string]any{
		"user_id":    usr.UserID,
		"matches":    len(userMatches),
		"message_id": messageID,
	}).Info("Sent match notification email")

	return true, nil
}

func groupByUser(matches []models.UserLoanMatch) map[string][]models.UserLoanMatch {
	byUser := make(map[string][]models.UserLoanMatch)
	for _, m := range matches {
		byUser[m.UserID] = append(byUser[m.UserID], m)
	}
	return byUser
}

func sortedKeys(m map[string][]models.UserLoanMatch) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
