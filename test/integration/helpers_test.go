package integration

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	productrepo "github.com/Ramsey-B/clover/internal/repositories/loanproduct"
	userrepo "github.com/Ramsey-B/clover/internal/repositories/user"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
)

var migrateOnce sync.Once

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func getTestDB(t *testing.T) database.DB {
	t.Helper()

	// Use environment variables or defaults for test DB
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "user"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "password"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "clover"
	}

	dsn := "host=" + dbHost + " user=" + dbUser + " password=" + dbPass + " dbname=" + dbName + " sslmode=disable"
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")

	logger := getTestLogger()

	migrateOnce.Do(func() {
		driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
		require.NoError(t, err, "Failed to create migration driver")

		service := database.NewMigrationService(logger, &database.MigrationConfig{
			MigrationFolderPath: "../../db/pg",
			AutoRollback:        true,
		})
		require.NoError(t, service.Migrate(dbName, driver), "Failed to run migrations")
	})

	return database.NewDatabaseInstance(db, logger)
}

// resetTables clears all pipeline state so each test starts from an empty
// store
func resetTables(t *testing.T, db database.DB) {
	t.Helper()

	_, err := db.ExecContext(context.Background(), "TRUNCATE user_loan_matches, processing_logs, users, loan_products CASCADE")
	require.NoError(t, err, "Failed to reset tables")
}

func seedUser(t *testing.T, repo *userrepo.Repository, userID string, income float64, creditScore int, employment models.EmploymentStatus, age int) *models.User {
	t.Helper()

	user, err := repo.Upsert(context.Background(), &models.UpsertUserRequest{
		UserID:           userID,
		Email:            userID + "@example.com",
		MonthlyIncome:    income,
		CreditScore:      creditScore,
		EmploymentStatus: employment,
		Age:              age,
	})
	require.NoError(t, err)

	return user
}

func seedProduct(t *testing.T, repo *productrepo.Repository, name string, minCredit, maxCredit int, minIncome float64) *models.LoanProduct {
	t.Helper()

	employment := "employment required"
	product, err := repo.Upsert(context.Background(), &models.UpsertLoanProductRequest{
		ProductName:            name,
		LenderName:             "Test Lender",
		InterestRateMin:        8.99,
		MinCreditScore:         &minCredit,
		MaxCreditScore:         &maxCredit,
		MinIncomeRequired:      &minIncome,
		EmploymentRequirements: &employment,
	})
	require.NoError(t, err)

	return product
}
