package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	productrepo "github.com/Ramsey-B/clover/internal/repositories/loanproduct"
	matchrepo "github.com/Ramsey-B/clover/internal/repositories/match"
	logrepo "github.com/Ramsey-B/clover/internal/repositories/processinglog"
	userrepo "github.com/Ramsey-B/clover/internal/repositories/user"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
)

func TestUserRepository_UpsertResetsProcessed(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	logger := getTestLogger()
	resetTables(t, db)

	repo := userrepo.NewRepository(db, logger)
	ctx := context.Background()

	created := seedUser(t, repo, "USR001", 6250, 780, models.EmploymentStatusEmployed, 32)
	assert.False(t, created.Processed)

	require.NoError(t, repo.MarkProcessed(ctx, []string{created.ID}))

	fetched, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, fetched.Processed)

	// Re-ingesting the same external user updates in place and re-queues it
	// for matching
	updated, err := repo.Upsert(ctx, &models.UpsertUserRequest{
		UserID:           "USR001",
		Email:            "usr001@example.com",
		MonthlyIncome:    7000,
		CreditScore:      790,
		EmploymentStatus: models.EmploymentStatusEmployed,
		Age:              33,
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID, "upsert must update the existing row, not insert a second one")
	assert.False(t, updated.Processed)
	assert.Equal(t, 790, updated.CreditScore)

	unprocessed, err := repo.FetchUnprocessed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unprocessed, 1)
	assert.Equal(t, created.ID, unprocessed[0].ID)
}

func TestMatchRepository_UpsertIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	logger := getTestLogger()
	resetTables(t, db)

	users := userrepo.NewRepository(db, logger)
	products := productrepo.NewRepository(db, logger)
	matches := matchrepo.NewRepository(db, logger)
	ctx := context.Background()

	user := seedUser(t, users, "USR100", 6000, 720, models.EmploymentStatusEmployed, 40)
	product := seedProduct(t, products, "Personal Loan", 650, 850, 30000)

	decision := models.MatchDecision{
		UserID:    user.ID,
		ProductID: product.ID,
		Score:     0.87,
		Status:    models.EligibilityStatusEligible,
		Reasons:   database.JSONB[[]string]{Data: []string{"Strong credit position"}},
	}

	require.NoError(t, matches.Upsert(ctx, &decision))
	require.NoError(t, matches.Upsert(ctx, &decision))

	rows, err := matches.ListByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1, "repeated upserts must not duplicate the (user, product) row")
	assert.InDelta(t, 0.87, rows[0].Score, 1e-9)
	assert.False(t, rows[0].NotificationSent)

	// A re-evaluation after notification must never reset the sent flag
	require.NoError(t, matches.MarkNotified(ctx, []string{rows[0].ID}))

	decision.Score = 0.91
	require.NoError(t, matches.Upsert(ctx, &decision))

	rows, err = matches.ListByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 0.91, rows[0].Score, 1e-9)
	assert.True(t, rows[0].NotificationSent, "upsert must not clear notification_sent")
	assert.NotNil(t, rows[0].NotificationSentAt)
}

func TestProcessingLogRepository_RunLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	logger := getTestLogger()
	resetTables(t, db)

	repo := logrepo.NewRepository(db, logger)
	ctx := context.Background()

	detail := "Starting user-loan matching pipeline"
	entry, err := repo.Append(ctx, &models.ProcessingLog{
		ProcessType: models.ProcessTypeMatching,
		Status:      models.ProcessStatusStarted,
		Details:     &detail,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Nil(t, entry.CompletedAt)

	require.NoError(t, repo.FinishWithCount(ctx, entry.ID, models.ProcessStatusCompleted, "Processed 42 users", 42))

	finished, err := repo.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessStatusCompleted, finished.Status)
	assert.Equal(t, 42, finished.RecordsProcessed)
	require.NotNil(t, finished.CompletedAt)
	require.NotNil(t, finished.Details)
	assert.Equal(t, "Processed 42 users", *finished.Details)

	recent, err := repo.List(ctx, models.ProcessTypeMatching, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, entry.ID, recent[0].ID)
}
