package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/models"
)

type commitCall struct {
	logID        string
	decisions    []models.MatchDecision
	processedIDs []string
}

type finishCall struct {
	id      string
	status  models.ProcessStatus
	details string
}

type memoryStore struct {
	users    []models.User
	products []models.LoanProduct

	productsErr error
	commitErr   error

	processed     map[string]bool
	appendedLogs  []models.ProcessingLog
	finishes      []finishCall
	commits       []commitCall
	productsCalls int
}

func newMemoryStore(users []models.User, products []models.LoanProduct) *memoryStore {
	return &memoryStore{
		users:     users,
		products:  products,
		processed: map[string]bool{},
	}
}

func (m *memoryStore) FetchUnprocessedUsers(_ context.Context, limit int) ([]models.User, error) {
	out := make([]models.User, 0, limit)
	for _, u := range m.users {
		if m.processed[u.ID] {
			continue
		}
		out = append(out, u)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memoryStore) FetchActiveProducts(_ context.Context) ([]models.LoanProduct, error) {
	m.productsCalls++
	if m.productsErr != nil {
		return nil, m.productsErr
	}
	return m.products, nil
}

func (m *memoryStore) CommitBatch(_ context.Context, logID string, decisions []models.MatchDecision, processedUserIDs []string) (int, error) {
	if m.commitErr != nil {
		return 0, m.commitErr
	}
	m.commits = append(m.commits, commitCall{logID: logID, decisions: decisions, processedIDs: processedUserIDs})
	for _, id := range processedUserIDs {
		m.processed[id] = true
	}
	return len(decisions), nil
}

func (m *memoryStore) AppendLog(_ context.Context, entry *models.ProcessingLog) (*models.ProcessingLog, error) {
	stored := *entry
	stored.ID = fmt.Sprintf("log-%d", len(m.appendedLogs)+1)
	m.appendedLogs = append(m.appendedLogs, stored)
	return &stored, nil
}

func (m *memoryStore) FinishLog(_ context.Context, id string, status models.ProcessStatus, details string) error {
	m.finishes = append(m.finishes, finishCall{id: id, status: status, details: details})
	return nil
}

type stubEvaluator struct {
	evaluated []string
	failFor   map[string]error
	decide    func(user *models.User) []models.MatchDecision
}

func (s *stubEvaluator) Evaluate(_ context.Context, user *models.User, _ []matching.ScoredProduct) ([]models.MatchDecision, error) {
	s.evaluated = append(s.evaluated, user.ID)
	if err, ok := s.failFor[user.ID]; ok {
		return nil, err
	}
	if s.decide != nil {
		return s.decide(user), nil
	}
	return []models.MatchDecision{{
		UserID:    user.ID,
		ProductID: "p-1",
		Score:     0.8,
		Status:    models.EligibilityStatusEligible,
		Reasons:   database.JSONB[[]string]{Data: []string{"ok"}},
	}}, nil
}

type recordingEmitter struct {
	started   bool
	committed []int
	completed bool
	failed    bool
	reason    string
}

func (r *recordingEmitter) EmitRunStarted(_ context.Context, _ string) error {
	r.started = true
	return nil
}

func (r *recordingEmitter) EmitMatchesCommitted(_ context.Context, _ string, decisions []models.MatchDecision) error {
	r.committed = append(r.committed, len(decisions))
	return nil
}

func (r *recordingEmitter) EmitRunCompleted(_ context.Context, _ string, _, _ int) error {
	r.completed = true
	return nil
}

func (r *recordingEmitter) EmitRunFailed(_ context.Context, _ string, reason string) error {
	r.failed = true
	r.reason = reason
	return nil
}

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func pipelineUser(id string) models.User {
	return models.User{
		ID:               id,
		UserID:           "ext-" + id,
		CreditScore:      720,
		MonthlyIncome:    5000,
		EmploymentStatus: models.EmploymentStatusEmployed,
		Age:              35,
	}
}

func pipelineProducts() []models.LoanProduct {
	return []models.LoanProduct{
		{ID: "p-1", ProductName: "Personal Loan", LenderName: "SoFi", InterestRateMin: 8.99, IsActive: true},
	}
}

func newTestRunner(store Store, eval Evaluator, emitter Emitter, batchSize int) *Runner {
	return NewRunner(store, matching.NewPrefilter(matching.DefaultConfig()), matching.NewScorer(), eval, emitter, noopLogger(), Config{BatchSize: batchSize})
}

func TestRun_NoUnprocessedUsersCompletesImmediately(t *testing.T) {
	store := newMemoryStore(nil, pipelineProducts())
	eval := &stubEvaluator{}
	runner := newTestRunner(store, eval, nil, 100)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.ProcessStatusCompleted, result.Status)
	assert.Zero(t, result.UsersProcessed)
	assert.Zero(t, result.MatchesCreated)

	require.Len(t, store.finishes, 1)
	assert.Equal(t, models.ProcessStatusCompleted, store.finishes[0].status)
	assert.Equal(t, "No unprocessed users found", store.finishes[0].details)

	// Catalog is never loaded and no evaluation happens
	assert.Zero(t, store.productsCalls)
	assert.Empty(t, eval.evaluated)
	assert.Empty(t, store.commits)
}

func TestRun_EmptyCatalogFailsWithoutTouchingUsers(t *testing.T) {
	store := newMemoryStore([]models.User{pipelineUser("u-1")}, nil)
	eval := &stubEvaluator{}
	emitter := &recordingEmitter{}
	runner := newTestRunner(store, eval, emitter, 100)

	result, err := runner.Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, models.ProcessStatusFailed, result.Status)
	assert.Empty(t, store.commits)
	assert.Empty(t, eval.evaluated)
	assert.False(t, store.processed["u-1"])

	require.Len(t, store.finishes, 1)
	assert.Equal(t, models.ProcessStatusFailed, store.finishes[0].status)
	assert.Equal(t, "Error during matching: no active loan products found", store.finishes[0].details)

	assert.True(t, emitter.failed)
	assert.False(t, emitter.completed)
}

func TestRun_ProcessesUsersInBatches(t *testing.T) {
	users := []models.User{pipelineUser("u-1"), pipelineUser("u-2"), pipelineUser("u-3")}
	store := newMemoryStore(users, pipelineProducts())
	eval := &stubEvaluator{}
	emitter := &recordingEmitter{}
	runner := newTestRunner(store, eval, emitter, 2)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.ProcessStatusCompleted, result.Status)
	assert.Equal(t, 3, result.UsersProcessed)
	assert.Equal(t, 3, result.MatchesCreated)

	require.Len(t, store.commits, 2)
	assert.Equal(t, []string{"u-1", "u-2"}, store.commits[0].processedIDs)
	assert.Equal(t, []string{"u-3"}, store.commits[1].processedIDs)

	for _, u := range users {
		assert.True(t, store.processed[u.ID])
	}

	require.Len(t, store.finishes, 1)
	assert.Equal(t, models.ProcessStatusCompleted, store.finishes[0].status)
	assert.Equal(t, "Successfully processed 3 users, created 3 matches", store.finishes[0].details)

	assert.True(t, emitter.started)
	assert.Equal(t, []int{2, 1}, emitter.committed)
	assert.True(t, emitter.completed)
}

func TestRun_RecordsStartedEntryBeforeWork(t *testing.T) {
	store := newMemoryStore([]models.User{pipelineUser("u-1")}, pipelineProducts())
	runner := newTestRunner(store, &stubEvaluator{}, nil, 100)

	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, store.appendedLogs, 1)
	entry := store.appendedLogs[0]
	assert.Equal(t, models.ProcessTypeMatching, entry.ProcessType)
	assert.Equal(t, models.ProcessStatusStarted, entry.Status)
	require.NotNil(t, entry.Details)
	assert.Equal(t, "Starting user-loan matching pipeline", *entry.Details)

	// Every commit carries the run's log id
	for _, c := range store.commits {
		assert.Equal(t, entry.ID, c.logID)
	}
}

func TestRun_UserFailureIsIsolated(t *testing.T) {
	users := []models.User{pipelineUser("u-1"), pipelineUser("u-2")}
	store := newMemoryStore(users, pipelineProducts())
	eval := &stubEvaluator{failFor: map[string]error{"u-1": errors.New("evaluation blew up")}}
	runner := newTestRunner(store, eval, nil, 100)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.ProcessStatusCompleted, result.Status)
	assert.Equal(t, 1, result.UsersProcessed)
	assert.Equal(t, 1, result.MatchesCreated)

	// The failed user stays unprocessed for the next run
	assert.False(t, store.processed["u-1"])
	assert.True(t, store.processed["u-2"])

	require.Len(t, store.commits, 1)
	assert.Equal(t, []string{"u-2"}, store.commits[0].processedIDs)

	// The failed user is attempted once, not refetched in a loop
	assert.Equal(t, []string{"u-1", "u-2"}, eval.evaluated)
}

func TestRun_AllUsersFailingStillCompletes(t *testing.T) {
	users := []models.User{pipelineUser("u-1"), pipelineUser("u-2")}
	store := newMemoryStore(users, pipelineProducts())
	eval := &stubEvaluator{failFor: map[string]error{
		"u-1": errors.New("boom"),
		"u-2": errors.New("boom"),
	}}
	runner := newTestRunner(store, eval, nil, 100)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.ProcessStatusCompleted, result.Status)
	assert.Zero(t, result.UsersProcessed)
	assert.Equal(t, "Successfully processed 0 users, created 0 matches", store.finishes[0].details)
}

func TestRun_CommitErrorFailsRun(t *testing.T) {
	store := newMemoryStore([]models.User{pipelineUser("u-1")}, pipelineProducts())
	store.commitErr = errors.New("deadlock detected")
	runner := newTestRunner(store, &stubEvaluator{}, nil, 100)

	result, err := runner.Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, models.ProcessStatusFailed, result.Status)
	require.Len(t, store.finishes, 1)
	assert.Equal(t, models.ProcessStatusFailed, store.finishes[0].status)
	assert.Contains(t, store.finishes[0].details, "Error during matching: deadlock detected")
}

func TestRun_CancellationBetweenUsersAbortsBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	users := []models.User{pipelineUser("u-1"), pipelineUser("u-2")}
	store := newMemoryStore(users, pipelineProducts())
	eval := &stubEvaluator{}
	eval.failFor = map[string]error{}
	eval.decide = func(user *models.User) []models.MatchDecision {
		if user.ID == "u-1" {
			cancel()
		}
		return nil
	}
	// Once cancelled, the next user's evaluation surfaces the context error
	eval.failFor["u-2"] = context.Canceled

	runner := newTestRunner(store, eval, nil, 100)

	result, err := runner.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, models.ProcessStatusFailed, result.Status)
	assert.Empty(t, store.commits)
	assert.False(t, store.processed["u-1"])
	assert.False(t, store.processed["u-2"])

	// The terminal status is still recorded despite cancellation
	require.Len(t, store.finishes, 1)
	assert.Equal(t, models.ProcessStatusFailed, store.finishes[0].status)
}
