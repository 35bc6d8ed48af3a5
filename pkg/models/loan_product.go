package models

import "time"

// LoanProduct is a catalog entry owned by the product discovery flow and
// read-only to the matching pipeline. Absent bounds impose no constraint.
type LoanProduct struct {
	ID                 string     `json:"id" db:"id"`
	ProductName        string     `json:"product_name" db:"product_name"`
	LenderName         string     `json:"lender_name" db:"lender_name"`
	InterestRateMin    float64    `json:"interest_rate_min" db:"interest_rate_min"`
	InterestRateMax    *float64   `json:"interest_rate_max,omitempty" db:"interest_rate_max"`
	MinLoanAmount      *float64   `json:"min_loan_amount,omitempty" db:"min_loan_amount"`
	MaxLoanAmount      *float64   `json:"max_loan_amount,omitempty" db:"max_loan_amount"`
	MinIncomeRequired  *float64   `json:"min_income_required,omitempty" db:"min_income_required"`
	MinCreditScore     *int       `json:"min_credit_score,omitempty" db:"min_credit_score"`
	MaxCreditScore     *int       `json:"max_credit_score,omitempty" db:"max_credit_score"`
	EmploymentRequirements *string `json:"employment_requirements,omitempty" db:"employment_requirements"`
	AgeMin             *int       `json:"age_min,omitempty" db:"age_min"`
	AgeMax             *int       `json:"age_max,omitempty" db:"age_max"`
	ProductURL         *string    `json:"product_url,omitempty" db:"product_url"`
	TermsAndConditions *string    `json:"terms_and_conditions,omitempty" db:"terms_and_conditions"`
	IsActive           bool       `json:"is_active" db:"is_active"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// UpsertLoanProductRequest is the request body for creating or refreshing a
// catalog entry, keyed by (product_name, lender_name)
type UpsertLoanProductRequest struct {
	ProductName            string   `json:"product_name" validate:"required"`
	LenderName             string   `json:"lender_name" validate:"required"`
	InterestRateMin        float64  `json:"interest_rate_min" validate:"gte=0"`
	InterestRateMax        *float64 `json:"interest_rate_max,omitempty" validate:"omitempty,gte=0"`
	MinLoanAmount          *float64 `json:"min_loan_amount,omitempty" validate:"omitempty,gte=0"`
	MaxLoanAmount          *float64 `json:"max_loan_amount,omitempty" validate:"omitempty,gte=0"`
	MinIncomeRequired      *float64 `json:"min_income_required,omitempty" validate:"omitempty,gte=0"`
	MinCreditScore         *int     `json:"min_credit_score,omitempty" validate:"omitempty,gte=300,lte=850"`
	MaxCreditScore         *int     `json:"max_credit_score,omitempty" validate:"omitempty,gte=300,lte=850"`
	EmploymentRequirements *string  `json:"employment_requirements,omitempty"`
	AgeMin                 *int     `json:"age_min,omitempty" validate:"omitempty,gte=18"`
	AgeMax                 *int     `json:"age_max,omitempty" validate:"omitempty,lte=120"`
	ProductURL             *string  `json:"product_url,omitempty" validate:"omitempty,url"`
	TermsAndConditions     *string  `json:"terms_and_conditions,omitempty"`
	IsActive               *bool    `json:"is_active,omitempty"`
}

// LoanProductListResponse is the response for listing loan products
type LoanProductListResponse struct {
	Items      []LoanProduct `json:"items"`
	TotalCount int           `json:"total_count"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
}
