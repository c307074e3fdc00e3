package e2e_test

import (
	"encoding/json"
	"time"
)

func (s *basicSuite) TestDelivery_EndToEnd() {
	receiver := newMockReceiver(200)
	defer receiver.Close()

	webhook := s.createWebhook(receiver.URL())
	event := s.createEvent(webhook["id"].(string), map[string]interface{}{
		"type": "order.created",
		"data": map[string]interface{}{"order_id": "ord_123"},
	})

	delivered := s.waitForEventStatus(event["id"].(string), "SUCCESS", 10*time.Second)
	s.Equal(float64(0), delivered["retry_count"])

	s.Require().GreaterOrEqual(receiver.RequestCount(), 1)
	var received map[string]interface{}
	s.Require().NoError(json.Unmarshal(receiver.LastRequest(), &received))
	s.Equal("order.created", received["type"])

	// delivery outcome is reflected on the webhook health counters
	refreshed := s.getWebhook(webhook["id"].(string))
	s.Equal("CLOSED", refreshed["circuit_state"])
	s.GreaterOrEqual(refreshed["total_successes"], float64(1))
}

func (s *basicSuite) TestDelivery_PermanentFailureIsNotRetried() {
	receiver := newMockReceiver(404)
	defer receiver.Close()

	webhook := s.createWebhook(receiver.URL())
	event := s.createEvent(webhook["id"].(string), map[string]interface{}{
		"type": "order.created",
	})

	failed := s.waitForEventStatus(event["id"].(string), "FAILURE", 10*time.Second)
	s.Equal(float64(0), failed["retry_count"])
	s.Contains(failed["failure_reason"], "404")

	// give the dispatcher a beat to prove no retry is scheduled
	time.Sleep(1500 * time.Millisecond)
	s.Equal(1, receiver.RequestCount())
}
