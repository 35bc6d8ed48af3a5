package models

import (
	"time"

	"github.com/Ramsey-B/clover/pkg/database"
)

// EligibilityStatus is the pipeline's judgment of a (user, product) pair
type EligibilityStatus string

const (
	EligibilityStatusEligible       EligibilityStatus = "eligible"
	EligibilityStatusLikelyEligible EligibilityStatus = "likely_eligible"
	EligibilityStatusNeedsReview    EligibilityStatus = "needs_review"
)

// MatchDecision is the outcome of evaluating one (user, product) pair. At
// most one decision exists per pair; re-evaluation updates the existing row.
type MatchDecision struct {
	UserID     string                   `json:"user_id" db:"user_id"`
	ProductID  string                   `json:"loan_product_id" db:"loan_product_id"`
	Score      float64                  `json:"match_score" db:"match_score"`
	Status     EligibilityStatus        `json:"eligibility_status" db:"eligibility_status"`
	Reasons    database.JSONB[[]string] `json:"match_reasons" db:"match_reasons"`
}

// UserLoanMatch is the persisted decision row. NotificationSent is owned by
// the notification flow and is never written by the matching pipeline.
type UserLoanMatch struct {
	ID                 string                   `json:"id" db:"id"`
	UserID             string                   `json:"user_id" db:"user_id"`
	ProductID          string                   `json:"loan_product_id" db:"loan_product_id"`
	Score              float64                  `json:"match_score" db:"match_score"`
	Status             EligibilityStatus        `json:"eligibility_status" db:"eligibility_status"`
	Reasons            database.JSONB[[]string] `json:"match_reasons" db:"match_reasons"`
	NotificationSent   bool                     `json:"notification_sent" db:"notification_sent"`
	NotificationSentAt *time.Time               `json:"notification_sent_at,omitempty" db:"notification_sent_at"`
	CreatedAt          time.Time                `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time                `json:"updated_at" db:"updated_at"`
}

// MatchListResponse is the response for listing a user's matches
type MatchListResponse struct {
	Items      []UserLoanMatch `json:"items"`
	TotalCount int             `json:"total_count"`
}
