package e2e_test

import "time"

func (s *basicSuite) TestRetry_FailedDeliveryAutoRetries() {
	// fail twice with a server error, then succeed
	receiver := newMockReceiver(200, 500, 500)
	defer receiver.Close()

	webhook := s.createWebhook(receiver.URL())
	event := s.createEvent(webhook["id"].(string), map[string]interface{}{
		"type": "invoice.paid",
	})

	delivered := s.waitForEventStatus(event["id"].(string), "SUCCESS", 15*time.Second)
	s.Equal(float64(2), delivered["retry_count"], "two retries before the receiver recovered")
	s.Equal(3, receiver.RequestCount())
}

func (s *basicSuite) TestRetry_ExhaustionFailsEvent() {
	receiver := newMockReceiver(500)
	defer receiver.Close()

	webhook := s.createWebhook(receiver.URL())
	event := s.createEvent(webhook["id"].(string), map[string]interface{}{
		"type": "invoice.paid",
	})

	failed := s.waitForEventStatus(event["id"].(string), "FAILURE", 20*time.Second)
	s.Contains(failed["failure_reason"], "retries exhausted")
	// initial attempt plus the full retry schedule
	s.Equal(4, receiver.RequestCount())
}
