package service

import (
	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/mint-gateway/internal/models"
)

// Risk weights. Changing any of these changes admission outcomes.
const (
	WeightBlocked         = 90
	WeightLargeAmount     = 30
	WeightMediumAmount    = 15
	WeightUnusualHour     = 10
	WeightHighFrequency   = 50
	WeightMediumFrequency = 25
	WeightNewOrigin       = 15
	WeightSmallAmount     = 5

	RejectScore = 70
	AuditScore  = 30
)

type RiskConfig struct {
	LargeAmount  decimal.Decimal
	MediumAmount decimal.Decimal
	SmallAmount  decimal.Decimal
	// Business window in UTC hours, inclusive.
	BusinessStartHour int
	BusinessEndHour   int
	HighFrequency     int
	MediumFrequency   int
}

func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		LargeAmount:       decimal.NewFromInt(500),
		MediumAmount:      decimal.NewFromInt(100),
		SmallAmount:       decimal.NewFromInt(1),
		BusinessStartHour: 6,
		BusinessEndHour:   22,
		HighFrequency:     10,
		MediumFrequency:   5,
	}
}

// RiskScorer computes a weighted additive fraud score. It performs no I/O; history
// is supplied by the caller.
type RiskScorer struct {
	cfg       RiskConfig
	blocklist map[string]struct{}
}

func NewRiskScorer(cfg RiskConfig, blocklist map[string]struct{}) *RiskScorer {
	return &RiskScorer{cfg: cfg, blocklist: blocklist}
}

func (s *RiskScorer) Score(attempt models.PaymentAttempt, history models.HistorySnapshot) models.Assessment {
	as := models.Assessment{Flags: []models.RiskFlag{}}
	add := func(weight int, flag models.RiskFlag) {
		as.Score += weight
		as.Flags = append(as.Flags, flag)
	}

	if _, ok := s.blocklist[attempt.Identity]; ok {
		add(WeightBlocked, models.FlagBlocked)
	}

	switch {
	case attempt.Amount.GreaterThan(s.cfg.LargeAmount):
		add(WeightLargeAmount, models.FlagLargeAmount)
	case attempt.Amount.GreaterThan(s.cfg.MediumAmount):
		add(WeightMediumAmount, models.FlagMediumAmount)
	}

	if hour := attempt.Timestamp.UTC().Hour(); hour < s.cfg.BusinessStartHour || hour > s.cfg.BusinessEndHour {
		add(WeightUnusualHour, models.FlagUnusualHour)
	}

	switch {
	case history.RecentAttempts > s.cfg.HighFrequency:
		add(WeightHighFrequency, models.FlagHighFrequency)
	case history.RecentAttempts > s.cfg.MediumFrequency:
		add(WeightMediumFrequency, models.FlagMediumFrequency)
	}

	// A brand-new identity has no baseline, so only known identities get this flag.
	if history.HasHistory && !history.SeenFromOrigin {
		add(WeightNewOrigin, models.FlagNewOrigin)
	}

	if attempt.Amount.LessThan(s.cfg.SmallAmount) {
		add(WeightSmallAmount, models.FlagSmallAmount)
	}

	return as
}

// RiskLevel classifies a score against the admission policy.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskAudit
	RiskReject
)

func ClassifyScore(score int) RiskLevel {
	switch {
	case score >= RejectScore:
		return RiskReject
	case score >= AuditScore:
		return RiskAudit
	default:
		return RiskLow
	}
}
