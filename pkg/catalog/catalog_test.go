package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

type stubProducts struct {
	upserted []models.UpsertLoanProductRequest
	errFor   map[string]error
}

func (s *stubProducts) Upsert(_ context.Context, req *models.UpsertLoanProductRequest) (*models.LoanProduct, error) {
	if err, ok := s.errFor[req.ProductName]; ok {
		return nil, err
	}
	s.upserted = append(s.upserted, *req)
	return &models.LoanProduct{ID: "p-" + req.ProductName, ProductName: req.ProductName, LenderName: req.LenderName}, nil
}

type logFinish struct {
	status  models.ProcessStatus
	details string
	records int
}

type stubLog struct {
	entries  []models.ProcessingLog
	finishes []logFinish
}

func (s *stubLog) Append(_ context.Context, entry *models.ProcessingLog) (*models.ProcessingLog, error) {
	stored := *entry
	stored.ID = fmt.Sprintf("log-%d", len(s.entries)+1)
	s.entries = append(s.entries, stored)
	return &stored, nil
}

func (s *stubLog) FinishWithCount(_ context.Context, _ string, status models.ProcessStatus, details string, records int) error {
	s.finishes = append(s.finishes, logFinish{status: status, details: details, records: records})
	return nil
}

type stubSource struct {
	name     string
	products []models.UpsertLoanProductRequest
	err      error
}

func (s *stubSource) Name() string {
	return s.name
}

func (s *stubSource) Products(_ context.Context) ([]models.UpsertLoanProductRequest, error) {
	return s.products, s.err
}

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestRefresh_SavesCuratedSet(t *testing.T) {
	products := &stubProducts{}
	logs := &stubLog{}
	refresher := NewRefresher(products, logs, noopLogger())

	result, err := refresher.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Discovered)
	assert.Equal(t, 3, result.Saved)

	require.Len(t, products.upserted, 3)
	assert.Equal(t, "SoFi Personal Loan", products.upserted[0].ProductName)
	assert.Equal(t, "Marcus by Goldman Sachs", products.upserted[1].LenderName)
	assert.Equal(t, "LightStream Personal Loan", products.upserted[2].ProductName)

	require.NotNil(t, products.upserted[0].MinCreditScore)
	assert.Equal(t, 680, *products.upserted[0].MinCreditScore)
	require.NotNil(t, products.upserted[2].MinIncomeRequired)
	assert.Equal(t, float64(50000), *products.upserted[2].MinIncomeRequired)

	require.Len(t, logs.entries, 1)
	assert.Equal(t, models.ProcessTypeLoanDiscovery, logs.entries[0].ProcessType)
	require.NotNil(t, logs.entries[0].Details)
	assert.Equal(t, "Starting automated loan product discovery", *logs.entries[0].Details)

	require.Len(t, logs.finishes, 1)
	assert.Equal(t, models.ProcessStatusCompleted, logs.finishes[0].status)
	assert.Equal(t, "Successfully discovered and saved 3 loan products", logs.finishes[0].details)
	assert.Equal(t, 3, logs.finishes[0].records)
}

func TestRefresh_FailedSourceIsSkipped(t *testing.T) {
	products := &stubProducts{}
	logs := &stubLog{}

	broken := &stubSource{name: "lendingtree", err: errors.New("fetch timeout")}
	working := &stubSource{name: "static", products: []models.UpsertLoanProductRequest{
		{ProductName: "Test Loan", LenderName: "Test Bank", InterestRateMin: 9.99},
	}}

	refresher := NewRefresher(products, logs, noopLogger(), broken, working)

	result, err := refresher.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Discovered)
	assert.Equal(t, 1, result.Saved)
	require.Len(t, products.upserted, 1)
	assert.Equal(t, "Test Loan", products.upserted[0].ProductName)
}

func TestRefresh_NoProductsCompletesWithZero(t *testing.T) {
	products := &stubProducts{}
	logs := &stubLog{}
	refresher := NewRefresher(products, logs, noopLogger(), &stubSource{name: "empty"})

	result, err := refresher.Refresh(context.Background())
	require.NoError(t, err)

	assert.Zero(t, result.Discovered)
	assert.Zero(t, result.Saved)

	require.Len(t, logs.finishes, 1)
	assert.Equal(t, models.ProcessStatusCompleted, logs.finishes[0].status)
	assert.Equal(t, "No loan products discovered", logs.finishes[0].details)
	assert.Zero(t, logs.finishes[0].records)
}

func TestRefresh_UpsertErrorFailsRun(t *testing.T) {
	products := &stubProducts{errFor: map[string]error{"Marcus Personal Loan": errors.New("deadlock detected")}}
	logs := &stubLog{}
	refresher := NewRefresher(products, logs, noopLogger())

	_, err := refresher.Refresh(context.Background())
	require.Error(t, err)

	require.Len(t, logs.finishes, 1)
	assert.Equal(t, models.ProcessStatusFailed, logs.finishes[0].status)
	assert.Contains(t, logs.finishes[0].details, "Error during loan discovery: deadlock detected")
}
