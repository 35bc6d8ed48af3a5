package models

import "time"

// EmploymentStatus is an applicant's self-reported employment state
type EmploymentStatus string

const (
	EmploymentStatusEmployed     EmploymentStatus = "employed"
	EmploymentStatusSelfEmployed EmploymentStatus = "self-employed"
	EmploymentStatusUnemployed   EmploymentStatus = "unemployed"
	EmploymentStatusStudent      EmploymentStatus = "student"
	EmploymentStatusRetired      EmploymentStatus = "retired"
)

// User is an applicant profile owned by the ingestion flow. The matching
// pipeline only reads profiles and flips Processed after a successful
// write-back of the user's decisions.
type User struct {
	ID               string           `json:"id" db:"id"`
	UserID           string           `json:"user_id" db:"user_id"` // External identity from the source file
	Email            string           `json:"email" db:"email"`
	MonthlyIncome    float64          `json:"monthly_income" db:"monthly_income"`
	CreditScore      int              `json:"credit_score" db:"credit_score"`
	EmploymentStatus EmploymentStatus `json:"employment_status" db:"employment_status"`
	Age              int              `json:"age" db:"age"`
	Processed        bool             `json:"processed" db:"processed"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`
}

// AnnualIncome returns the user's monthly income projected to a year
func (u *User) AnnualIncome() float64 {
	return u.MonthlyIncome * 12
}

// UpsertUserRequest is the request body for creating or updating a user profile.
// Re-upserting an existing user resets Processed so the next matching run
// re-evaluates the updated profile.
type UpsertUserRequest struct {
	UserID           string           `json:"user_id" validate:"required,max=50"`
	Email            string           `json:"email" validate:"required,email"`
	MonthlyIncome    float64          `json:"monthly_income" validate:"gte=0"`
	CreditScore      int              `json:"credit_score" validate:"gte=300,lte=850"`
	EmploymentStatus EmploymentStatus `json:"employment_status" validate:"required,oneof=employed self-employed unemployed student retired"`
	Age              int              `json:"age" validate:"gte=18,lte=100"`
}

// UserListResponse is the response for listing users
type UserListResponse struct {
	Items      []User `json:"items"`
	TotalCount int    `json:"total_count"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
}
