package classifier

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/hookhub/relay/internal/models"
	"gopkg.in/yaml.v3"
)

// Rule classifies a failed delivery attempt. A rule may constrain any subset
// of the predicate fields; all specified constraints must hold for a match.
// Rules are evaluated in descending priority order, ties broken by list
// position, first match wins.
type Rule struct {
	Name                string          `yaml:"name" json:"name"`
	ExactStatusCode     *int            `yaml:"exact_status_code,omitempty" json:"exact_status_code,omitempty"`
	StatusCodeMin       *int            `yaml:"status_code_min,omitempty" json:"status_code_min,omitempty"`
	StatusCodeMax       *int            `yaml:"status_code_max,omitempty" json:"status_code_max,omitempty"`
	ErrorTypePattern    string          `yaml:"error_type_pattern,omitempty" json:"error_type_pattern,omitempty"`
	ErrorMessagePattern string          `yaml:"error_message_pattern,omitempty" json:"error_message_pattern,omitempty"`
	Decision            models.Decision `yaml:"decision" json:"decision"`
	ExplanationTemplate string          `yaml:"explanation_template,omitempty" json:"explanation_template,omitempty"`
	Priority            int             `yaml:"priority" json:"priority"`
	Enabled             *bool           `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

func (r *Rule) enabled() bool {
	return r.Enabled == nil || *r.Enabled
}

func intPtr(n int) *int {
	return &n
}

// DefaultRules is the built-in rule table, used when no override is
// configured.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:                "rate-limit",
			ExactStatusCode:     intPtr(429),
			Decision:            models.DecisionRetry,
			ExplanationTemplate: "Your endpoint is rate-limiting requests. We'll retry after the rate limit window expires.",
			Priority:            100,
		},
		{
			Name:                "legal-hold",
			ExactStatusCode:     intPtr(451),
			Decision:            models.DecisionPauseWebhook,
			ExplanationTemplate: "Your endpoint returned 451 – unavailable for legal reasons. Deliveries are paused until the webhook is resumed.",
			Priority:            95,
		},
		{
			Name:                "unauthorized",
			ExactStatusCode:     intPtr(401),
			Decision:            models.DecisionFailPermanent,
			ExplanationTemplate: "Your endpoint returned 401 – authentication credentials may be invalid. Please check your webhook authentication settings.",
			Priority:            90,
		},
		{
			Name:                "forbidden",
			ExactStatusCode:     intPtr(403),
			Decision:            models.DecisionFailPermanent,
			ExplanationTemplate: "Your endpoint returned 403 – access denied. Please verify that your webhook endpoint accepts requests from our service.",
			Priority:            90,
		},
		{
			Name:                "not-found",
			ExactStatusCode:     intPtr(404),
			Decision:            models.DecisionFailPermanent,
			ExplanationTemplate: "Your endpoint returned 404 – endpoint not found. Please verify that the webhook URL is correct and the endpoint exists.",
			Priority:            90,
		},
		{
			Name:                "bad-request",
			ExactStatusCode:     intPtr(400),
			Decision:            models.DecisionFailPermanent,
			ExplanationTemplate: "Your endpoint returned 400 – bad request. The request format may be incorrect. Please check your webhook endpoint's expected payload format.",
			Priority:            90,
		},
		{
			Name:                "request-timeout",
			ExactStatusCode:     intPtr(408),
			Decision:            models.DecisionRetry,
			ExplanationTemplate: "Request timeout – your endpoint did not respond in time. We'll retry automatically.",
			Priority:            80,
		},
		{
			Name:                "network-error",
			StatusCodeMax:       intPtr(0),
			Decision:            models.DecisionRetry,
			ExplanationTemplate: "Network error – connection failed. This may be temporary, and we'll retry automatically.",
			Priority:            70,
		},
		{
			Name:                "server-error",
			StatusCodeMin:       intPtr(500),
			StatusCodeMax:       intPtr(599),
			Decision:            models.DecisionRetry,
			ExplanationTemplate: "Your endpoint returned {statusCode} – server error. This is likely temporary, and we'll retry automatically.",
			Priority:            50,
		},
		{
			Name:                "client-error",
			StatusCodeMin:       intPtr(400),
			StatusCodeMax:       intPtr(499),
			Decision:            models.DecisionFailPermanent,
			ExplanationTemplate: "Your endpoint returned {statusCode} – client error. This error is not retryable. Please check your webhook configuration.",
			Priority:            10,
		},
	}
}

// LoadRulesFile reads a YAML rule override file with a top-level `rules:`
// list. An empty file yields the default rule set.
func LoadRulesFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	if len(doc.Rules) == 0 {
		return DefaultRules(), nil
	}
	return doc.Rules, nil
}

type compiledRule struct {
	Rule
	messagePattern *regexp.Regexp
}

func (r *compiledRule) matches(statusCode int, errorMessage string, errorType models.ErrorType) bool {
	if !r.enabled() {
		return false
	}
	if r.ExactStatusCode != nil && statusCode != *r.ExactStatusCode {
		return false
	}
	if r.StatusCodeMin != nil && statusCode < *r.StatusCodeMin {
		return false
	}
	if r.StatusCodeMax != nil && statusCode > *r.StatusCodeMax {
		return false
	}
	if r.ErrorTypePattern != "" && !strings.EqualFold(r.ErrorTypePattern, string(errorType)) {
		return false
	}
	if r.messagePattern != nil && !r.messagePattern.MatchString(errorMessage) {
		return false
	}
	return true
}

func (r *compiledRule) explain(statusCode int, errorMessage string, errorType models.ErrorType) string {
	if r.ExplanationTemplate == "" {
		return fmt.Sprintf("Delivery failed with status %d", statusCode)
	}
	replacer := strings.NewReplacer(
		"{statusCode}", strconv.Itoa(statusCode),
		"{errorMessage}", errorMessage,
		"{errorType}", string(errorType),
	)
	return replacer.Replace(r.ExplanationTemplate)
}

// Engine evaluates the prioritised rule list. It never fails at evaluation
// time; unmatched failures default to RETRY.
type Engine struct {
	rules []compiledRule
}

func NewEngine(rules []Rule) (*Engine, error) {
	if len(rules) == 0 {
		rules = DefaultRules()
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.Decision.Valid() {
			return nil, fmt.Errorf("rule %q: invalid decision %q", rule.Name, rule.Decision)
		}
		cr := compiledRule{Rule: rule}
		if rule.ErrorMessagePattern != "" {
			pattern, err := regexp.Compile(rule.ErrorMessagePattern)
			if err != nil {
				return nil, fmt.Errorf("rule %q: invalid error message pattern: %w", rule.Name, err)
			}
			cr.messagePattern = pattern
		}
		compiled = append(compiled, cr)
	}

	// Stable sort keeps list order as the tie-break within a priority.
	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Priority > compiled[j].Priority
	})

	return &Engine{rules: compiled}, nil
}

// Evaluate returns the first matching rule's verdict. The empty rule name
// marks the unmatched default.
func (e *Engine) Evaluate(statusCode int, errorMessage string, errorType models.ErrorType) (models.Decision, string, string) {
	for i := range e.rules {
		rule := &e.rules[i]
		if rule.matches(statusCode, errorMessage, errorType) {
			return rule.Decision, rule.explain(statusCode, errorMessage, errorType), rule.Name
		}
	}
	return models.DecisionRetry, fmt.Sprintf("Delivery failed with status %d. Decision: RETRY", statusCode), ""
}
