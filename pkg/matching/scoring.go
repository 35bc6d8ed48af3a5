package matching

import (
	"sort"
	"strings"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Dimension weights. The five dimensions sum to 1.0.
const (
	weightCreditScore = 0.35
	weightIncome      = 0.25
	weightEmployment  = 0.20
	weightAge         = 0.10
	weightRate        = 0.10
)

// Reference band for interest rate preference: lower minimum rates score
// higher across an assumed 5-35% market range.
const (
	rateBandCeiling = 35.0
	rateBandWidth   = 30.0
)

// ScoredProduct pairs a candidate product with its rule score
type ScoredProduct struct {
	Product models.LoanProduct
	Score   float64
}

// Scorer computes the deterministic weighted eligibility score. No
// randomness, no I/O: identical inputs always produce identical output.
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Rank scores every candidate and returns them ordered best first. The sort
// is stable, so candidates with equal scores keep their input order.
func (s *Scorer) Rank(user *models.User, candidates []models.LoanProduct) []ScoredProduct {
	scored := make([]ScoredProduct, 0, len(candidates))
	for _, product := range candidates {
		scored = append(scored, ScoredProduct{
			Product: product,
			Score:   s.Score(user, &product),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	return scored
}

// Score computes the weighted sum of the five dimensions for one pair
func (s *Scorer) Score(user *models.User, product *models.LoanProduct) float64 {
	score := 0.0
	score += s.scoreCredit(user, product) * weightCreditScore
	score += s.scoreIncome(user, product) * weightIncome
	score += s.scoreEmployment(user, product) * weightEmployment
	score += s.scoreAge(user, product) * weightAge
	score += s.scoreRate(product) * weightRate
	return score
}

// scoreCredit returns the user's linear position within the product's credit
// range, clamped to [0,1]. Products without a full range get a fixed 0.8.
func (s *Scorer) scoreCredit(user *models.User, product *models.LoanProduct) float64 {
	if product.MinCreditScore == nil || *product.MinCreditScore <= 0 ||
		product.MaxCreditScore == nil || *product.MaxCreditScore <= 0 {
		return 0.8
	}

	creditRange := *product.MaxCreditScore - *product.MinCreditScore
	if creditRange <= 0 {
		// Degenerate range: pass/fail at the single bound
		if user.CreditScore >= *product.MinCreditScore {
			return 1.0
		}
		return 0.0
	}

	position := float64(user.CreditScore-*product.MinCreditScore) / float64(creditRange)
	return clamp01(position)
}

// scoreIncome returns the ratio of annual income to the required minimum,
// capped at 1.0. Products without a minimum get a fixed 0.8.
func (s *Scorer) scoreIncome(user *models.User, product *models.LoanProduct) float64 {
	if product.MinIncomeRequired == nil || *product.MinIncomeRequired <= 0 {
		return 0.8
	}

	ratio := user.AnnualIncome() / *product.MinIncomeRequired
	if ratio > 1.0 {
		return 1.0
	}
	return ratio
}

// scoreEmployment maps (user status, policy keyword) pairs to fixed scores.
// Branch order matters: the first matching rule wins.
func (s *Scorer) scoreEmployment(user *models.User, product *models.LoanProduct) float64 {
	if product.EmploymentRequirements == nil || *product.EmploymentRequirements == "" {
		return 0.8
	}

	userEmpLower := strings.ToLower(string(user.EmploymentStatus))
	reqLower := strings.ToLower(*product.EmploymentRequirements)

	if strings.Contains(userEmpLower, "full-time") && (strings.Contains(reqLower, "steady") || strings.Contains(reqLower, "stable")) {
		return 1.0
	}

	if strings.Contains(userEmpLower, "employed") && strings.Contains(reqLower, "employment") {
		return 0.9
	}

	if strings.Contains(userEmpLower, "self-employed") && strings.Contains(reqLower, "income") {
		return 0.7
	}

	if strings.Contains(userEmpLower, "part-time") {
		return 0.6
	}

	if strings.Contains(userEmpLower, "unemployed") {
		return 0.1
	}

	return 0.5
}

// scoreAge returns 1.0 inside the product's age range, decaying 0.1 per year
// outside it, floored at 0.0
func (s *Scorer) scoreAge(user *models.User, product *models.LoanProduct) float64 {
	minSet := product.AgeMin != nil && *product.AgeMin > 0
	maxSet := product.AgeMax != nil && *product.AgeMax > 0

	if !minSet && !maxSet {
		return 1.0
	}

	if minSet && user.Age < *product.AgeMin {
		decayed := 1.0 - float64(*product.AgeMin-user.Age)*0.1
		if decayed < 0 {
			return 0.0
		}
		return decayed
	}

	if maxSet && user.Age > *product.AgeMax {
		decayed := 1.0 - float64(user.Age-*product.AgeMax)*0.1
		if decayed < 0 {
			return 0.0
		}
		return decayed
	}

	return 1.0
}

// scoreRate favors lower minimum interest rates across the reference band.
// Products without a rate get a neutral 0.5.
func (s *Scorer) scoreRate(product *models.LoanProduct) float64 {
	if product.InterestRateMin <= 0 {
		return 0.5
	}

	return clamp01((rateBandCeiling - product.InterestRateMin) / rateBandWidth)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0.0
	}
	if v > 1 {
		return 1.0
	}
	return v
}
