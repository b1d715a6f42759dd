package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/mint-gateway/internal/interfaces"
	"github.com/akylbek/payment-system/mint-gateway/internal/models"
	"github.com/akylbek/payment-system/mint-gateway/internal/telemetry"
)

type AdmissionConfig struct {
	MinAmount     decimal.Decimal
	MaxAmount     decimal.Decimal
	AllowedTokens []string
	Blocklist     []string
	// MaxClockSkew bounds how far a client timestamp may drift from server time.
	MaxClockSkew time.Duration
	Risk         RiskConfig
}

// AdmissionController is the single admission path: rate limits, hard gates, replay
// protection and risk scoring, in that order.
type AdmissionController struct {
	limiter *RateLimiter
	replay  *ReplayGuard
	scorer  *RiskScorer
	history interfaces.AttemptHistory

	minAmount decimal.Decimal
	maxAmount decimal.Decimal
	tokens    map[string]struct{}
	blocked   map[string]struct{}
	maxSkew   time.Duration
	now       func() time.Time
}

func NewAdmissionController(
	cfg AdmissionConfig,
	limiter *RateLimiter,
	replay *ReplayGuard,
	history interfaces.AttemptHistory,
) *AdmissionController {
	blocked := addressSet(cfg.Blocklist)
	return &AdmissionController{
		limiter:   limiter,
		replay:    replay,
		scorer:    NewRiskScorer(cfg.Risk, blocked),
		history:   history,
		minAmount: cfg.MinAmount,
		maxAmount: cfg.MaxAmount,
		tokens:    addressSet(cfg.AllowedTokens),
		blocked:   blocked,
		maxSkew:   cfg.MaxClockSkew,
		now:       time.Now,
	}
}

// Admit decides whether a payment-backed request may proceed. On rejection the
// returned error is a *models.Error; the attempt is returned either way once it has
// been parsed so callers can report the score.
func (a *AdmissionController) Admit(ctx context.Context, req models.AdmissionRequest, origin, userAgent string) (models.PaymentAttempt, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "admission.Admit")
	defer span.End()

	attempt, err := a.parse(req, origin, userAgent)
	if err != nil {
		return attempt, a.reject(span, attempt, err)
	}
	span.SetAttributes(attribute.String("payer", attempt.Identity), attribute.String("origin", origin))

	decision, err := a.limiter.Allow(ctx, attempt.Identity, origin)
	if err != nil {
		return attempt, a.fail(span, err)
	}
	if !decision.Allowed {
		return attempt, a.reject(span, attempt, models.NewRateLimitError(decision.LimitedBy, decision.RetryAfter))
	}

	if err := a.checkGates(attempt); err != nil {
		return attempt, a.reject(span, attempt, err)
	}

	if err := a.replay.Check(ctx, attempt.Nonce); err != nil {
		return attempt, a.rejectOrFail(span, attempt, err)
	}
	if err := a.replay.Record(ctx, attempt.Nonce); err != nil {
		return attempt, a.rejectOrFail(span, attempt, err)
	}

	snap, err := a.history.Snapshot(ctx, attempt.Identity, origin, attempt.Timestamp.Add(-time.Hour))
	if err != nil {
		return attempt, a.fail(span, err)
	}
	assessment := a.scorer.Score(attempt, snap)
	attempt = attempt.WithAssessment(assessment)
	telemetry.RiskScores.Observe(float64(assessment.Score))

	if err := a.history.Record(ctx, attempt.Identity, models.HistoryEntry{
		Timestamp: attempt.Timestamp,
		Amount:    attempt.Amount,
		Origin:    origin,
	}); err != nil {
		telemetry.Logger.Warn("Failed to record attempt history",
			zap.String("payer", attempt.Identity),
			zap.Error(err),
		)
	}

	switch ClassifyScore(assessment.Score) {
	case RiskReject:
		rejectErr := models.NewSecurityError(models.CodeHighRisk, "transaction flagged as high risk")
		rejectErr.Assessment = &assessment
		return attempt, a.reject(span, attempt, rejectErr)
	case RiskAudit:
		telemetry.Logger.Warn("Medium risk transaction admitted",
			zap.Bool("audit", true),
			zap.String("payer", attempt.Identity),
			zap.String("amount", attempt.Amount.String()),
			zap.Int("risk_score", assessment.Score),
			zap.Any("flags", assessment.Flags),
			zap.String("origin", origin),
			zap.String("user_agent", userAgent),
		)
	}

	span.SetAttributes(attribute.Int("risk_score", assessment.Score))
	telemetry.AdmissionDecisions.WithLabelValues("accepted", "").Inc()
	return attempt, nil
}

// Throttle is the admission step for submissions that carry no payment: identity
// must be an address, and the request consumes one slot from both rate windows. It
// returns the checksummed identity.
func (a *AdmissionController) Throttle(ctx context.Context, identity, origin string) (string, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "admission.Throttle")
	defer span.End()

	attempt := models.PaymentAttempt{Origin: origin}
	normalized, ok := NormalizeIdentity(identity)
	if !ok {
		return "", a.reject(span, attempt, models.NewValidationError("identity must be a hex address", nil))
	}
	attempt.Identity = normalized

	decision, err := a.limiter.Allow(ctx, normalized, origin)
	if err != nil {
		return "", a.fail(span, err)
	}
	if !decision.Allowed {
		return "", a.reject(span, attempt, models.NewRateLimitError(decision.LimitedBy, decision.RetryAfter))
	}
	return normalized, nil
}

// NormalizeIdentity returns the checksummed form of a hex address.
func NormalizeIdentity(identity string) (string, bool) {
	identity = strings.TrimSpace(identity)
	if !common.IsHexAddress(identity) {
		return "", false
	}
	return common.HexToAddress(identity).Hex(), true
}

func (a *AdmissionController) parse(req models.AdmissionRequest, origin, userAgent string) (models.PaymentAttempt, error) {
	now := a.now()
	attempt := models.PaymentAttempt{
		Nonce:     strings.TrimSpace(req.Nonce),
		Timestamp: now,
		Origin:    origin,
		UserAgent: userAgent,
		Signature: req.Signature,
		Flags:     []models.RiskFlag{},
	}

	identity, ok := NormalizeIdentity(req.Identity)
	if !ok {
		return attempt, models.NewValidationError("identity must be a hex address", nil)
	}
	attempt.Identity = identity

	if !common.IsHexAddress(req.TokenRef) {
		return attempt, models.NewValidationError("token_ref must be a hex address", nil)
	}
	attempt.TokenRef = common.HexToAddress(req.TokenRef).Hex()

	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		return attempt, models.NewValidationError("amount is not a decimal number", err)
	}
	attempt.Amount = amount

	if attempt.Nonce == "" {
		return attempt, models.NewValidationError("nonce is required", nil)
	}

	if req.Timestamp != 0 && a.maxSkew > 0 {
		skew := now.Sub(time.UnixMilli(req.Timestamp))
		if skew < 0 {
			skew = -skew
		}
		if skew > a.maxSkew {
			return attempt, models.NewValidationError(fmt.Sprintf("timestamp outside allowed skew of %s", a.maxSkew), nil)
		}
	}

	return attempt, nil
}

// checkGates applies the hard rejections that precede scoring.
func (a *AdmissionController) checkGates(attempt models.PaymentAttempt) error {
	if _, ok := a.tokens[attempt.TokenRef]; !ok {
		return models.NewSecurityError(models.CodeUnsupportedToken, "unsupported token contract")
	}
	if attempt.Amount.LessThan(a.minAmount) {
		return models.NewSecurityError(models.CodeAmountTooLow,
			fmt.Sprintf("payment amount below minimum of %s", a.minAmount))
	}
	if attempt.Amount.GreaterThan(a.maxAmount) {
		return models.NewSecurityError(models.CodeAmountTooHigh,
			fmt.Sprintf("payment amount above maximum of %s", a.maxAmount))
	}
	if _, ok := a.blocked[attempt.Identity]; ok {
		return models.NewSecurityError(models.CodeBlockedAddress, "payment from blocked address")
	}
	return nil
}

func (a *AdmissionController) reject(span trace.Span, attempt models.PaymentAttempt, err error) error {
	code := models.CodeOf(err)
	span.SetStatus(codes.Error, string(code))
	telemetry.AdmissionDecisions.WithLabelValues("rejected", string(code)).Inc()
	telemetry.Logger.Info("Payment attempt rejected",
		zap.String("payer", attempt.Identity),
		zap.String("code", string(code)),
		zap.String("origin", attempt.Origin),
		zap.Error(err),
	)
	return err
}

// rejectOrFail keeps structured rejections and treats anything else as a store failure.
func (a *AdmissionController) rejectOrFail(span trace.Span, attempt models.PaymentAttempt, err error) error {
	if _, ok := models.AsError(err); ok {
		return a.reject(span, attempt, err)
	}
	return a.fail(span, err)
}

func (a *AdmissionController) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "admission store failure")
	telemetry.AdmissionDecisions.WithLabelValues("error", "").Inc()
	telemetry.Logger.Error("Admission state store failure", zap.Error(err))
	return err
}

// ResultFor maps an admission outcome to its wire representation.
func ResultFor(attempt models.PaymentAttempt, err error) models.AdmissionResult {
	res := models.AdmissionResult{
		Accepted:  err == nil,
		RiskScore: attempt.RiskScore,
		Flags:     attempt.Flags,
	}
	if res.Flags == nil {
		res.Flags = []models.RiskFlag{}
	}
	if e, ok := models.AsError(err); ok {
		res.ErrorCode = e.Code
		res.RetryAfterMs = e.RetryAfter.Milliseconds()
		if e.Assessment != nil {
			res.RiskScore = e.Assessment.Score
			res.Flags = e.Assessment.Flags
		}
	}
	return res
}

func addressSet(addrs []string) map[string]struct{} {
	set := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if common.IsHexAddress(a) {
			set[common.HexToAddress(a).Hex()] = struct{}{}
		}
	}
	return set
}
