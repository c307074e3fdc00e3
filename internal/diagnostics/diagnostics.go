// Package diagnostics produces human-readable explanations, health
// summaries, and recommendations from classifications and webhook counters.
// Everything here is a pure function of its inputs.
package diagnostics

import (
	"fmt"
	"strings"
	"time"

	"github.com/hookhub/relay/internal/models"
)

const (
	// recentErrorLines caps the error lines in a health summary.
	recentErrorLines = 5
	// analysisWindow is how many recent classifications Recommend inspects.
	analysisWindow = 10
)

// Explain generates the user-facing explanation for a delivery failure,
// keyed primarily on HTTP status with a decision-keyed fallback.
func Explain(statusCode int, errorMessage string, decision models.Decision) string {
	switch {
	case statusCode == 429:
		return "Your endpoint is rate-limiting requests. We'll retry after the rate limit window expires."
	case statusCode >= 500 && statusCode < 600:
		return fmt.Sprintf("Your endpoint returned %d – server error. This is likely temporary, and we'll retry automatically.", statusCode)
	case statusCode == 401:
		return "Your endpoint returned 401 – authentication credentials may be invalid. Please check your webhook authentication settings."
	case statusCode == 403:
		return "Your endpoint returned 403 – access denied. Please verify that your webhook endpoint accepts requests from our service."
	case statusCode == 404:
		return "Your endpoint returned 404 – endpoint not found. Please verify that the webhook URL is correct and the endpoint exists."
	case statusCode == 400:
		return "Your endpoint returned 400 – bad request. The request format may be incorrect. Please check your webhook endpoint's expected payload format."
	case statusCode <= 0:
		message := strings.ToLower(errorMessage)
		if strings.Contains(message, "timeout") {
			return "Connection timeout – your endpoint did not respond in time. We'll retry automatically."
		}
		if strings.Contains(message, "dns") {
			return "DNS resolution failed – the webhook URL cannot be resolved. Please verify the URL is correct."
		}
		return "Network error – connection failed. This may be temporary, and we'll retry automatically."
	default:
		return fmt.Sprintf("Delivery failed with status %d. %s", statusCode, decisionExplanation(decision))
	}
}

func decisionExplanation(decision models.Decision) string {
	switch decision {
	case models.DecisionRetry:
		return "We'll retry the delivery automatically."
	case models.DecisionFailPermanent:
		return "This error is not retryable. Please check your webhook configuration."
	case models.DecisionPauseWebhook:
		return "Webhook has been temporarily paused due to repeated failures. Please review and resume when ready."
	case models.DecisionEscalate:
		return "This issue requires attention. Our team has been notified."
	default:
		return "Please review the error details."
	}
}

// HealthReport is the structured counterpart of the health summary text.
type HealthReport struct {
	WebhookID           string              `json:"webhook_id"`
	URL                 string              `json:"url"`
	TotalSuccesses      int64               `json:"total_successes"`
	TotalFailures       int64               `json:"total_failures"`
	SuccessRate         float64             `json:"success_rate"`
	CircuitState        models.CircuitState `json:"circuit_state"`
	ConsecutiveFailures int                 `json:"consecutive_failures"`
	PausedUntil         *time.Time          `json:"paused_until,omitempty"`
	RecentErrors        []RecentError       `json:"recent_errors,omitempty"`
}

type RecentError struct {
	CreatedAt   time.Time        `json:"created_at"`
	ErrorType   models.ErrorType `json:"error_type"`
	Explanation string           `json:"explanation"`
}

// HealthSummary builds the structured report and its text rendering from a
// webhook and its recent classifications (newest first).
func HealthSummary(webhook *models.Webhook, recent []models.ErrorClassification) (HealthReport, string) {
	report := HealthReport{
		WebhookID:           webhook.ID,
		URL:                 webhook.URL,
		TotalSuccesses:      webhook.TotalSuccesses,
		TotalFailures:       webhook.TotalFailures,
		SuccessRate:         webhook.SuccessRate(),
		CircuitState:        webhook.CircuitState,
		ConsecutiveFailures: webhook.ConsecutiveFailures,
	}
	if webhook.Paused(time.Now()) {
		report.PausedUntil = webhook.PausedUntil
	}

	var summary strings.Builder
	fmt.Fprintf(&summary, "Webhook Health Summary for %s:\n", webhook.URL)
	fmt.Fprintf(&summary, "  Total Successes: %d\n", webhook.TotalSuccesses)
	fmt.Fprintf(&summary, "  Total Failures: %d\n", webhook.TotalFailures)
	if report.SuccessRate >= 0 {
		fmt.Fprintf(&summary, "  Success Rate: %.1f%%\n", report.SuccessRate)
	}
	fmt.Fprintf(&summary, "  Circuit Breaker State: %s\n", webhook.CircuitState)
	fmt.Fprintf(&summary, "  Consecutive Failures: %d\n", webhook.ConsecutiveFailures)
	if report.PausedUntil != nil {
		fmt.Fprintf(&summary, "  Paused Until: %s\n", report.PausedUntil.Format(time.RFC3339))
	}

	if len(recent) > 0 {
		summary.WriteString("\nRecent Errors:\n")
		for i, classification := range recent {
			if i >= recentErrorLines {
				break
			}
			report.RecentErrors = append(report.RecentErrors, RecentError{
				CreatedAt:   classification.CreatedAt,
				ErrorType:   classification.ErrorType,
				Explanation: classification.Explanation,
			})
			fmt.Fprintf(&summary, "  - [%s] %s: %s\n",
				classification.CreatedAt.Format(time.RFC3339),
				classification.ErrorType,
				classification.Explanation)
		}
	}

	return report, summary.String()
}

// Recommend analyzes the last classifications (newest first, at most 10 are
// considered) and returns actionable recommendations.
func Recommend(webhook *models.Webhook, recent []models.ErrorClassification) []string {
	if len(recent) > analysisWindow {
		recent = recent[:analysisWindow]
	}
	if len(recent) == 0 && webhook.CircuitState != models.CircuitStateOpen {
		return []string{"No recent errors to analyze."}
	}

	var authErrors, rateLimitErrors, serverErrors int
	for _, classification := range recent {
		if strings.Contains(string(classification.ErrorType), "AUTH") {
			authErrors++
		}
		if strings.Contains(string(classification.ErrorType), "RATE_LIMIT") {
			rateLimitErrors++
		}
		if classification.HTTPStatusCode >= 500 {
			serverErrors++
		}
	}

	var recommendations []string
	if authErrors >= 3 {
		recommendations = append(recommendations, "Multiple authentication errors detected. Please verify your webhook credentials.")
	}
	if rateLimitErrors >= 2 {
		recommendations = append(recommendations, "Frequent rate limiting. Consider implementing exponential backoff on your endpoint.")
	}
	if serverErrors >= 5 {
		recommendations = append(recommendations, "High number of server errors. Your endpoint may be experiencing issues.")
	}
	if webhook.CircuitState == models.CircuitStateOpen {
		recommendations = append(recommendations, "Circuit breaker is OPEN. Webhook is temporarily disabled due to repeated failures.")
	}
	if len(recommendations) == 0 {
		recommendations = append(recommendations, "No specific recommendations at this time.")
	}
	return recommendations
}
