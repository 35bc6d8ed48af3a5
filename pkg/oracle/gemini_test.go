package oracle

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

type stubGenerator struct {
	response   string
	err        error
	lastPrompt string
	calls      int
}

func (s *stubGenerator) GenerateContent(_ context.Context, prompt string) (string, error) {
	s.calls++
	s.lastPrompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func intPtr(v int) *int          { return &v }
func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string    { return &v }

func evaluationUser() *models.User {
	return &models.User{
		ID:               "u-1",
		UserID:           "ext-1",
		MonthlyIncome:    6250,
		CreditScore:      780,
		EmploymentStatus: models.EmploymentStatusEmployed,
		Age:              32,
	}
}

func evaluationProduct() *models.LoanProduct {
	return &models.LoanProduct{
		ID:                     "p-1",
		ProductName:            "Personal Loan",
		LenderName:             "SoFi",
		InterestRateMin:        8.99,
		InterestRateMax:        floatPtr(23.43),
		MinLoanAmount:          floatPtr(5000),
		MaxLoanAmount:          floatPtr(100000),
		MinCreditScore:         intPtr(680),
		MinIncomeRequired:      floatPtr(45000),
		EmploymentRequirements: strPtr("Proof of employment required"),
		AgeMin:                 intPtr(18),
		AgeMax:                 intPtr(65),
	}
}

func TestGeminiEvaluate(t *testing.T) {
	stub := &stubGenerator{response: `{"eligible": true, "confidence": 0.8, "status": "eligible", "reasons": ["Strong profile"]}`}
	oracle := NewGemini(stub, noopLogger())

	verdict, err := oracle.Evaluate(context.Background(), evaluationUser(), evaluationProduct())
	require.NoError(t, err)

	assert.True(t, verdict.Eligible)
	assert.Equal(t, 0.8, verdict.Confidence)
	assert.Equal(t, models.EligibilityStatusEligible, verdict.Status)
	assert.Equal(t, 1, stub.calls)
}

func TestGeminiEvaluate_PromptContainsProfileAndProduct(t *testing.T) {
	stub := &stubGenerator{response: `{"eligible": true, "confidence": 0.8, "status": "eligible", "reasons": ["ok"]}`}
	oracle := NewGemini(stub, noopLogger())

	_, err := oracle.Evaluate(context.Background(), evaluationUser(), evaluationProduct())
	require.NoError(t, err)

	prompt := stub.lastPrompt
	assert.Contains(t, prompt, "Credit Score: 780")
	assert.Contains(t, prompt, "Annual Income: $75000.00")
	assert.Contains(t, prompt, "Employment: employed")
	assert.Contains(t, prompt, "Age: 32")
	assert.Contains(t, prompt, "Product: Personal Loan")
	assert.Contains(t, prompt, "Lender: SoFi")
	assert.Contains(t, prompt, "Interest Rate: 8.99% - 23.43%")
	assert.Contains(t, prompt, "Loan Amount: $5000 - $100000")
	assert.Contains(t, prompt, "Min Credit Score: 680")
	assert.Contains(t, prompt, "Min Income Required: $45000")
	assert.Contains(t, prompt, "Age Range: 18 - 65")
	assert.NotContains(t, prompt, "{{")
}

func TestGeminiEvaluate_AbsentProductBoundsRenderAsUnspecified(t *testing.T) {
	stub := &stubGenerator{response: `{"eligible": true, "confidence": 0.8, "status": "eligible", "reasons": ["ok"]}`}
	oracle := NewGemini(stub, noopLogger())

	product := &models.LoanProduct{ID: "p-2", ProductName: "Open Loan", LenderName: "Anybank", InterestRateMin: 6.5}

	_, err := oracle.Evaluate(context.Background(), evaluationUser(), product)
	require.NoError(t, err)

	assert.Contains(t, stub.lastPrompt, "Interest Rate: 6.50%")
	assert.Contains(t, stub.lastPrompt, "Loan Amount: not specified")
	assert.Contains(t, stub.lastPrompt, "Min Credit Score: not specified")
	assert.Contains(t, stub.lastPrompt, "Min Income Required: not specified")
	assert.Contains(t, stub.lastPrompt, "Employment Requirements: not specified")
	assert.Contains(t, stub.lastPrompt, "Age Range: not specified")
	assert.Equal(t, 5, strings.Count(stub.lastPrompt, "not specified"))
}

func TestGeminiEvaluate_GeneratorErrorPropagates(t *testing.T) {
	stub := &stubGenerator{err: errors.New("quota exceeded")}
	oracle := NewGemini(stub, noopLogger())

	_, err := oracle.Evaluate(context.Background(), evaluationUser(), evaluationProduct())
	assert.Error(t, err)
}
