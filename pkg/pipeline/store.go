package pipeline

import (
	"context"

	"github.com/Ramsey-B/clover/internal/repositories/loanproduct"
	"github.com/Ramsey-B/clover/internal/repositories/match"
	"github.com/Ramsey-B/clover/internal/repositories/processinglog"
	"github.com/Ramsey-B/clover/internal/repositories/user"
	"github.com/Ramsey-B/clover/pkg/models"
)

// Store is the persistence surface one matching run reads and writes
type Store interface {
	// FetchUnprocessedUsers returns up to limit users awaiting matching
	FetchUnprocessedUsers(ctx context.Context, limit int) ([]models.User, error)
	// FetchActiveProducts returns the live product catalog
	FetchActiveProducts(ctx context.Context) ([]models.LoanProduct, error)
	// CommitBatch atomically persists a batch's decisions, marks its users
	// processed, and advances the run's record count
	CommitBatch(ctx context.Context, logID string, decisions []models.MatchDecision, processedUserIDs []string) (int, error)
	// AppendLog records a new processing log entry
	AppendLog(ctx context.Context, entry *models.ProcessingLog) (*models.ProcessingLog, error)
	// FinishLog records a run's terminal status and details
	FinishLog(ctx context.Context, id string, status models.ProcessStatus, details string) error
}

// DBStore implements Store over the Postgres repositories
type DBStore struct {
	users    *user.Repository
	products *loanproduct.Repository
	matches  *match.Repository
	logs     *processinglog.Repository
}

// NewDBStore creates a DBStore from the concrete repositories
func NewDBStore(users *user.Repository, products *loanproduct.Repository, matches *match.Repository, logs *processinglog.Repository) *DBStore {
	return &DBStore{
		users:    users,
		products: products,
		matches:  matches,
		logs:     logs,
	}
}

func (s *DBStore) FetchUnprocessedUsers(ctx context.Context, limit int) ([]models.User, error) {
	return s.users.FetchUnprocessed(ctx, limit)
}

func (s *DBStore) FetchActiveProducts(ctx context.Context) ([]models.LoanProduct, error) {
	return s.products.FetchActive(ctx)
}

func (s *DBStore) CommitBatch(ctx context.Context, logID string, decisions []models.MatchDecision, processedUserIDs []string) (int, error) {
	return s.matches.CommitBatch(ctx, logID, decisions, processedUserIDs)
}

func (s *DBStore) AppendLog(ctx context.Context, entry *models.ProcessingLog) (*models.ProcessingLog, error) {
	return s.logs.Append(ctx, entry)
}

func (s *DBStore) FinishLog(ctx context.Context, id string, status models.ProcessStatus, details string) error {
	return s.logs.Finish(ctx, id, status, details)
}
