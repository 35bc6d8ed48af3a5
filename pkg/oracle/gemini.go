package oracle

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	_ "embed"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
)

//go:embed prompt.md
var promptTemplate string

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// Gemini asks the Gemini API whether a user qualifies for a loan product
type Gemini struct {
	generator contentGenerator
	logger    ectologger.Logger
}

// NewGemini creates a Gemini evaluator on top of a content generator
func NewGemini(generator contentGenerator, logger ectologger.Logger) *Gemini {
	return &Gemini{
		generator: generator,
		logger:    logger,
	}
}

// Evaluate builds the evaluation prompt for one user/product pair, invokes
// the model, and parses the verdict
func (g *Gemini) Evaluate(ctx context.Context, user *models.User, product *models.LoanProduct) (*Verdict, error) {
	prompt := buildPrompt(user, product)

	g.logger.WithContext(ctx).WithFields(map[string]any{
		"user_id":         user.ID,
		"loan_product_id": product.ID,
		"prompt_length":   len(prompt),
	}).Debug("requesting oracle evaluation")

	raw, err := g.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, err
	}

	verdict, err := parseVerdict(raw)
	if err != nil {
		return nil, err
	}

	g.logger.WithContext(ctx).WithFields(map[string]any{
		"user_id":         user.ID,
		"loan_product_id": product.ID,
		"eligible":        verdict.Eligible,
		"confidence":      verdict.Confidence,
		"status":          verdict.Status,
	}).Debug("oracle evaluation complete")

	return verdict, nil
}

func buildPrompt(user *models.User, product *models.LoanProduct) string {
	replacements := map[string]string{
		"{{CREDIT_SCORE}}":            strconv.Itoa(user.CreditScore),
		"{{ANNUAL_INCOME}}":           fmt.Sprintf("%.2f", user.AnnualIncome()),
		"{{EMPLOYMENT_STATUS}}":       string(user.EmploymentStatus),
		"{{AGE}}":                     strconv.Itoa(user.Age),
		"{{PRODUCT_NAME}}":            product.ProductName,
		"{{LENDER_NAME}}":             product.LenderName,
		"{{INTEREST_RATE_RANGE}}":     rateRange(product),
		"{{LOAN_AMOUNT_RANGE}}":       amountRange(product),
		"{{MIN_CREDIT_SCORE}}":        intOrUnspecified(product.MinCreditScore),
		"{{MIN_INCOME_REQUIRED}}":     moneyOrUnspecified(product.MinIncomeRequired),
		"{{EMPLOYMENT_REQUIREMENTS}}": stringOrUnspecified(product.EmploymentRequirements),
		"{{AGE_RANGE}}":               ageRange(product),
	}

	prompt := promptTemplate
	for placeholder, value := range replacements {
		prompt = strings.ReplaceAll(prompt, placeholder, value)
	}
	return prompt
}

func rateRange(product *models.LoanProduct) string {
	if product.InterestRateMax != nil {
		return fmt.Sprintf("%.2f%% - %.2f%%", product.InterestRateMin, *product.InterestRateMax)
	}
	return fmt.Sprintf("%.2f%%", product.InterestRateMin)
}

func amountRange(product *models.LoanProduct) string {
	if product.MinLoanAmount != nil && product.MaxLoanAmount != nil {
		return fmt.Sprintf("$%.0f - $%.0f", *product.MinLoanAmount, *product.MaxLoanAmount)
	}
	return "not specified"
}

func ageRange(product *models.LoanProduct) string {
	if product.AgeMin != nil && product.AgeMax != nil {
		return fmt.Sprintf("%d - %d", *product.AgeMin, *product.AgeMax)
	}
	return "not specified"
}

func intOrUnspecified(v *int) string {
	if v == nil {
		return "not specified"
	}
	return strconv.Itoa(*v)
}

func moneyOrUnspecified(v *float64) string {
	if v == nil {
		return "not specified"
	}
	return fmt.Sprintf("$%.0f", *v)
}

func stringOrUnspecified(v *string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return "not specified"
	}
	return *v
}
