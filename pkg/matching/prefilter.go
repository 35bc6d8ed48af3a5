// Package matching implements the elimination and scoring stages of the
// loan matching pipeline
package matching

import (
	"strings"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Config holds the tolerance bands for the elimination stage
type Config struct {
	CreditBuffer    int     // Points below a product's minimum credit score still allowed through (default: 50)
	IncomeBufferPct float64 // Fraction below a product's minimum income still allowed through (default: 0.15)
	AgeBuffer       int     // Years outside a product's age range still allowed through (default: 2)
}

// DefaultConfig returns the default tolerance bands
func DefaultConfig() Config {
	return Config{
		CreditBuffer:    50,
		IncomeBufferPct: 0.15,
		AgeBuffer:       2,
	}
}

// Prefilter eliminates provably incompatible (user, product) pairs before
// the more expensive stages. It is deliberately permissive: a borderline
// pair passes through and the scorer decides, so the only pairs dropped
// here are ones no widened bound can save.
type Prefilter struct {
	config Config
}

// NewPrefilter creates a new prefilter with the given tolerance bands
func NewPrefilter(config Config) *Prefilter {
	return &Prefilter{config: config}
}

// Candidates returns the products the user could plausibly qualify for.
// Pure function over the already loaded catalog; absent bounds impose no
// constraint.
func (p *Prefilter) Candidates(user *models.User, products []models.LoanProduct) []models.LoanProduct {
	candidates := make([]models.LoanProduct, 0, len(products))

	for _, product := range products {
		if product.MinCreditScore != nil && *product.MinCreditScore > 0 {
			if user.CreditScore < *product.MinCreditScore-p.config.CreditBuffer {
				continue
			}
		}

		if product.MaxCreditScore != nil && *product.MaxCreditScore > 0 {
			if user.CreditScore > *product.MaxCreditScore {
				continue
			}
		}

		if product.MinIncomeRequired != nil && *product.MinIncomeRequired > 0 {
			minIncomeWithBuffer := *product.MinIncomeRequired * (1 - p.config.IncomeBufferPct)
			if user.AnnualIncome() < minIncomeWithBuffer {
				continue
			}
		}

		if product.AgeMin != nil && *product.AgeMin > 0 {
			if user.Age < *product.AgeMin-p.config.AgeBuffer {
				continue
			}
		}

		if product.AgeMax != nil && *product.AgeMax > 0 {
			if user.Age > *product.AgeMax+p.config.AgeBuffer {
				continue
			}
		}

		if product.EmploymentRequirements != nil && *product.EmploymentRequirements != "" {
			if !basicEmploymentCheck(user.EmploymentStatus, *product.EmploymentRequirements) {
				continue
			}
		}

		candidates = append(candidates, product)
	}

	return candidates
}

// basicEmploymentCheck rejects only the hard-incompatibility keyword pairs;
// anything not provably incompatible passes
func basicEmploymentCheck(userEmployment models.EmploymentStatus, requirements string) bool {
	userEmpLower := strings.ToLower(string(userEmployment))
	reqLower := strings.ToLower(requirements)

	if strings.Contains(userEmpLower, "unemployed") && strings.Contains(reqLower, "employment") {
		return false
	}

	if strings.Contains(userEmpLower, "student") && strings.Contains(reqLower, "steady") {
		return false
	}

	return true
}
