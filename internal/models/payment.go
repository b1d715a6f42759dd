package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskFlag is a reason code attached to a scored payment attempt.
type RiskFlag string

const (
	FlagBlocked         RiskFlag = "BLOCKED"
	FlagLargeAmount     RiskFlag = "LARGE_AMOUNT"
	FlagMediumAmount    RiskFlag = "MEDIUM_AMOUNT"
	FlagUnusualHour     RiskFlag = "UNUSUAL_HOUR"
	FlagHighFrequency   RiskFlag = "HIGH_FREQUENCY"
	FlagMediumFrequency RiskFlag = "MEDIUM_FREQUENCY"
	FlagNewOrigin       RiskFlag = "NEW_ORIGIN"
	FlagSmallAmount     RiskFlag = "SMALL_AMOUNT"
)

// PaymentAttempt is an inbound payment-backed request. Identity and TokenRef are
// checksummed EVM addresses.
type PaymentAttempt struct {
	Identity  string          `json:"identity"`
	Amount    decimal.Decimal `json:"amount"`
	TokenRef  string          `json:"token_ref"`
	Nonce     string          `json:"nonce"`
	Timestamp time.Time       `json:"timestamp"`
	Origin    string          `json:"origin"`
	UserAgent string          `json:"user_agent,omitempty"`
	Signature string          `json:"signature,omitempty"`
	RiskScore int             `json:"risk_score"`
	Flags     []RiskFlag      `json:"flags"`
}

// WithAssessment returns a copy of the attempt carrying the score and flags.
func (a PaymentAttempt) WithAssessment(as Assessment) PaymentAttempt {
	a.RiskScore = as.Score
	a.Flags = append([]RiskFlag(nil), as.Flags...)
	return a
}

// Assessment is the output of the risk scorer.
type Assessment struct {
	Score int        `json:"risk_score"`
	Flags []RiskFlag `json:"flags"`
}

// HistoryEntry is one recorded attempt for an identity.
type HistoryEntry struct {
	Timestamp time.Time
	Amount    decimal.Decimal
	Origin    string
}

// HistorySnapshot is the recent-history view the risk scorer consumes.
type HistorySnapshot struct {
	RecentAttempts int
	HasHistory     bool
	SeenFromOrigin bool
}

// RateDecision is the outcome of a rate limit check.
type RateDecision struct {
	Allowed    bool          `json:"allowed"`
	Remaining  int           `json:"remaining"`
	RetryAfter time.Duration `json:"-"`
	ResetAt    time.Time     `json:"reset_at"`
	LimitedBy  string        `json:"limited_by,omitempty"`
}

const (
	LimitedByIdentity = "identity"
	LimitedByOrigin   = "origin"
)

// AdmissionRequest is the boundary input of the admission check.
type AdmissionRequest struct {
	Identity  string `json:"identity" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
	TokenRef  string `json:"token_ref" binding:"required"`
	Nonce     string `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

// AdmissionResult is returned for every admission decision.
type AdmissionResult struct {
	Accepted     bool       `json:"accepted"`
	RiskScore    int        `json:"risk_score"`
	Flags        []RiskFlag `json:"flags"`
	ErrorCode    ErrorCode  `json:"error_code,omitempty"`
	RetryAfterMs int64      `json:"retry_after_ms,omitempty"`
}
