package notify

import (
	_ "embed"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"github.com/Ramsey-B/clover/pkg/models"
)

//go:embed email.html.tmpl
var emailTemplateSource string

var emailTemplate = template.Must(template.New("loan_matches").Parse(emailTemplateSource))

// matchView is one loan card in the rendered email
type matchView struct {
	ProductName    string
	LenderName     string
	ScorePct       int
	StatusClass    string
	StatusLabel    string
	InterestRate   string
	LoanAmount     string
	MinCreditScore string
	MinIncome      string
	Reasons        []string
	ProductURL     string
}

type emailData struct {
	Count   int
	Plural  string
	Matches []matchView
}

// buildEmail renders the subject, text body, and HTML body for a user's
// matches. Matches must already be sorted best first.
func buildEmail(matches []models.UserLoanMatch, products map[string]*models.LoanProduct) (subject, textBody, htmlBody string, err error) {
	data := emailData{Count: len(matches), Plural: "s"}
	if len(matches) == 1 {
		data.Plural = ""
	}

	for _, m := range matches {
		product := products[m.ProductID]
		if product == nil {
			continue
		}
		data.Matches = append(data.Matches, buildMatchView(m, product))
	}

	subject = fmt.Sprintf("🏦 %d Personal Loan Match%s Found for You", len(matches), matchPlural(len(matches)))
	textBody = buildTextContent(data)

	var sb strings.Builder
	if err := emailTemplate.Execute(&sb, data); err != nil {
		return "", "", "", err
	}
	htmlBody = sb.String()

	return subject, textBody, htmlBody, nil
}

func buildMatchView(m models.UserLoanMatch, product *models.LoanProduct) matchView {
	view := matchView{
		ProductName:    product.ProductName,
		LenderName:     product.LenderName,
		ScorePct:       int(m.Score*100 + 0.5),
		StatusClass:    strings.ReplaceAll(string(m.Status), "_", "-"),
		StatusLabel:    statusLabel(m.Status),
		InterestRate:   rateRange(product),
		LoanAmount:     amountRange(product),
		MinCreditScore: "Not specified",
		MinIncome:      "Not specified",
		Reasons:        m.Reasons.GetValue(),
	}

	if product.MinCreditScore != nil {
		view.MinCreditScore = strconv.Itoa(*product.MinCreditScore)
	}
	if product.MinIncomeRequired != nil {
		view.MinIncome = "$" + commaFormat(*product.MinIncomeRequired)
	}
	if product.ProductURL != nil {
		view.ProductURL = *product.ProductURL
	}

	return view
}

func statusLabel(status models.EligibilityStatus) string {
	switch status {
	case models.EligibilityStatusEligible:
		return "✅ Likely Eligible"
	case models.EligibilityStatusLikelyEligible:
		return "⚡ Good Match"
	default:
		return "📋 Needs Review"
	}
}

func rateRange(product *models.LoanProduct) string {
	if product.InterestRateMax != nil {
		return fmt.Sprintf("%.2f%% - %.2f%%", product.InterestRateMin, *product.InterestRateMax)
	}
	return fmt.Sprintf("%.2f%%", product.InterestRateMin)
}

func amountRange(product *models.LoanProduct) string {
	if product.MinLoanAmount == nil || product.MaxLoanAmount == nil {
		return "Not specified"
	}
	return fmt.Sprintf("$%s - $%s", commaFormat(*product.MinLoanAmount), commaFormat(*product.MaxLoanAmount))
}

func buildTextContent(data emailData) string {
	var sb strings.Builder

	sb.WriteString("Your Personal Loan Matches\n")
	sb.WriteString(strings.Repeat("=", 30) + "\n\n")
	sb.WriteString(fmt.Sprintf("We found %d loan product%s that match your profile:\n\n", data.Count, data.Plural))

	for i, m := range data.Matches {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, m.ProductName))
		sb.WriteString(fmt.Sprintf("   Lender: %s\n", m.LenderName))
		sb.WriteString(fmt.Sprintf("   Match Score: %d%%\n", m.ScorePct))
		sb.WriteString(fmt.Sprintf("   Interest Rate: %s\n", m.InterestRate))
		sb.WriteString(fmt.Sprintf("   Loan Amount: %s\n", m.LoanAmount))

		if len(m.Reasons) > 0 {
			sb.WriteString("   Why it's a good fit:\n")
			for _, reason := range m.Reasons {
				sb.WriteString(fmt.Sprintf("   - %s\n", reason))
			}
		}

		if m.ProductURL != "" {
			sb.WriteString(fmt.Sprintf("   Learn more: %s\n", m.ProductURL))
		}

		sb.WriteString("\n")
	}

	sb.WriteString("Next Steps:\n")
	sb.WriteString("Review each option carefully and compare terms. Consider applying to multiple lenders to get the best rates.\n\n")
	sb.WriteString("Disclaimer: These matches are based on the information you provided and general eligibility criteria. ")
	sb.WriteString("Final approval depends on the lender's complete underwriting process.")

	return sb.String()
}

func matchPlural(n int) string {
	if n == 1 {
		return ""
	}
	return "es"
}

// commaFormat renders a dollar amount with thousands separators, no cents
func commaFormat(v float64) string {
	whole := strconv.FormatInt(int64(v+0.5), 10)

	neg := strings.HasPrefix(whole, "-")
	if neg {
		whole = whole[1:]
	}

	var sb strings.Builder
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(digit)
	}

	if neg {
		return "-" + sb.String()
	}
	return sb.String()
}
