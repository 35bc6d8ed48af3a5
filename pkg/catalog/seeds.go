package catalog

import (
	"context"

	"github.com/Ramsey-B/clover/pkg/models"
)

// CuratedSource serves the built-in lender set with their published terms
type CuratedSource struct{}

// NewCuratedSource creates the curated lender source
func NewCuratedSource() *CuratedSource {
	return &CuratedSource{}
}

func (s *CuratedSource) Name() string {
	return "curated"
}

func (s *CuratedSource) Products(_ context.Context) ([]models.UpsertLoanProductRequest, error) {
	return []models.UpsertLoanProductRequest{
		{
			ProductName:            "SoFi Personal Loan",
			LenderName:             "SoFi",
			InterestRateMin:        8.99,
			InterestRateMax:        floatPtr(23.43),
			MinLoanAmount:          floatPtr(5000),
			MaxLoanAmount:          floatPtr(100000),
			MinCreditScore:         intPtr(680),
			MaxCreditScore:         intPtr(850),
			MinIncomeRequired:      floatPtr(45000),
			EmploymentRequirements: strPtr("Stable employment required"),
			AgeMin:                 intPtr(18),
			AgeMax:                 intPtr(80),
			ProductURL:             strPtr("https://www.bankrate.com/loans/personal-loans/"),
			TermsAndConditions:     strPtr("No fees, flexible terms"),
		},
		{
			ProductName:            "Marcus Personal Loan",
			LenderName:             "Marcus by Goldman Sachs",
			InterestRateMin:        7.99,
			InterestRateMax:        floatPtr(19.99),
			MinLoanAmount:          floatPtr(3500),
			MaxLoanAmount:          floatPtr(40000),
			MinCreditScore:         intPtr(660),
			MaxCreditScore:         intPtr(850),
			MinIncomeRequired:      floatPtr(35000),
			EmploymentRequirements: strPtr("Steady income required"),
			AgeMin:                 intPtr(18),
			AgeMax:                 intPtr(75),
			ProductURL:             strPtr("https://www.bankrate.com/loans/personal-loans/"),
			TermsAndConditions:     strPtr("No fees, fixed rates"),
		},
		{
			ProductName:            "LightStream Personal Loan",
			LenderName:             "LightStream",
			InterestRateMin:        7.49,
			InterestRateMax:        floatPtr(25.49),
			MinLoanAmount:          floatPtr(5000),
			MaxLoanAmount:          floatPtr(100000),
			MinCreditScore:         intPtr(700),
			MaxCreditScore:         intPtr(850),
			MinIncomeRequired:      floatPtr(50000),
			EmploymentRequirements: strPtr("Excellent credit and income"),
			AgeMin:                 intPtr(18),
			AgeMax:                 intPtr(80),
			ProductURL:             strPtr("https://www.bankrate.com/loans/personal-loans/"),
			TermsAndConditions:     strPtr("Rate beat program available"),
		},
	}, nil
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }
func strPtr(v string) *string     { return &v }
