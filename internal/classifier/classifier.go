// Package classifier turns failed delivery results into decisions.
//
// Classification is two-tier: an optional remote advisor is consulted first,
// and its verdict is adopted only when it parses and clears the confidence
// threshold. The prioritised rule engine always backs it up.
package classifier

import (
	"context"
	"strings"

	"github.com/hookhub/relay/internal/advisor"
	"github.com/hookhub/relay/internal/deliveryclient"
	"github.com/hookhub/relay/internal/logging"
	"github.com/hookhub/relay/internal/models"
	"go.uber.org/zap"
)

// Context carries the webhook-health evidence for one classification.
type Context struct {
	WebhookID           string
	RetryCount          int
	RecentFailureRate   float64
	TotalFailures       int64
	TotalSuccesses      int64
	ConsecutiveFailures int
	CircuitState        models.CircuitState
}

// Classification is the classifier verdict. RuleName is empty when no rule
// matched (default RETRY) or when the advisor was adopted.
type Classification struct {
	Decision    models.Decision
	Explanation string
	ErrorType   models.ErrorType
	RuleName    string
	AdvisorUsed bool
}

// AdvisorClient is satisfied by advisor.Client.
type AdvisorClient interface {
	Advise(ctx context.Context, request *advisor.Request) (*advisor.Response, error)
}

type Classifier struct {
	engine          *Engine
	advisor         AdvisorClient
	advisorFallback bool
	minConfidence   float64
	logger          *logging.Logger
}

type Option func(*Classifier)

// WithAdvisor enables the remote tier. Verdicts below minConfidence are
// discarded.
func WithAdvisor(client AdvisorClient, minConfidence float64) Option {
	return func(c *Classifier) {
		c.advisor = client
		if minConfidence > 0 {
			c.minConfidence = minConfidence
		}
	}
}

// WithAdvisorFallback controls what happens when the advisor is enabled but
// yields no usable verdict. Enabled (the default) hands over to the rule
// engine; disabled settles for RETRY.
func WithAdvisorFallback(enabled bool) Option {
	return func(c *Classifier) {
		c.advisorFallback = enabled
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(c *Classifier) {
		c.logger = logger
	}
}

func New(engine *Engine, opts ...Option) *Classifier {
	c := &Classifier{
		engine:          engine,
		advisorFallback: true,
		minConfidence:   advisor.DefaultMinConfidence,
		logger:          logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify maps a failed delivery result to a decision. It never fails; the
// rule engine guarantees a verdict.
func (c *Classifier) Classify(ctx context.Context, result *deliveryclient.DeliveryResult, evidence Context) Classification {
	errorType := DeriveErrorType(result.StatusCode, result.ErrorMessage)

	if c.advisor != nil {
		if classification, ok := c.consultAdvisor(ctx, result, evidence, errorType); ok {
			return classification
		}
		if !c.advisorFallback {
			return Classification{
				Decision:    models.DecisionRetry,
				Explanation: "advisor yielded no verdict and rule fallback is disabled, defaulting to retry",
				ErrorType:   errorType,
			}
		}
	}

	decision, explanation, ruleName := c.engine.Evaluate(result.StatusCode, result.ErrorMessage, errorType)
	return Classification{
		Decision:    decision,
		Explanation: explanation,
		ErrorType:   errorType,
		RuleName:    ruleName,
	}
}

func (c *Classifier) consultAdvisor(ctx context.Context, result *deliveryclient.DeliveryResult, evidence Context, errorType models.ErrorType) (Classification, bool) {
	response, err := c.advisor.Advise(ctx, &advisor.Request{
		ErrorSignature: advisor.ErrorSignature{
			HTTPStatusCode:      result.StatusCode,
			ErrorType:           string(errorType),
			ErrorMessagePattern: result.ErrorMessage,
		},
		RetryCount:        evidence.RetryCount,
		RecentFailureRate: evidence.RecentFailureRate,
		WebhookHealth: advisor.WebhookHealth{
			WebhookID:           evidence.WebhookID,
			TotalFailures:       evidence.TotalFailures,
			TotalSuccesses:      evidence.TotalSuccesses,
			ConsecutiveFailures: evidence.ConsecutiveFailures,
			CircuitBreakerState: string(evidence.CircuitState),
		},
	})
	if err != nil {
		c.logger.Ctx(ctx).Debug("advisor unavailable, falling back to rules",
			zap.String("webhook_id", evidence.WebhookID),
			zap.Error(err))
		return Classification{}, false
	}

	decision, err := models.ParseDecision(response.Decision)
	if err != nil || response.ConfidenceScore < c.minConfidence {
		c.logger.Ctx(ctx).Debug("advisor verdict rejected",
			zap.String("webhook_id", evidence.WebhookID),
			zap.String("decision", response.Decision),
			zap.Float64("confidence_score", response.ConfidenceScore))
		return Classification{}, false
	}

	return Classification{
		Decision:    decision,
		Explanation: response.Explanation,
		ErrorType:   errorType,
		AdvisorUsed: true,
	}, true
}

// DeriveErrorType tags a failure for explanations and advisor requests.
func DeriveErrorType(statusCode int, errorMessage string) models.ErrorType {
	switch {
	case statusCode == 429:
		return models.ErrorTypeRateLimit
	case statusCode >= 500:
		return models.ErrorTypeServer
	case statusCode == 401 || statusCode == 403:
		return models.ErrorTypeAuth
	case statusCode >= 400 && statusCode < 500:
		return models.ErrorTypeClient
	case statusCode <= 0:
		message := strings.ToLower(errorMessage)
		switch {
		case strings.Contains(message, "timeout"):
			return models.ErrorTypeTimeout
		case strings.Contains(message, "dns"):
			return models.ErrorTypeDNS
		default:
			return models.ErrorTypeNetwork
		}
	default:
		return models.ErrorTypeUnknown
	}
}
