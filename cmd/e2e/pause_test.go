package e2e_test

import (
	"net/http"
	"time"
)

func (s *basicSuite) TestPause_LegalHoldPausesWebhook() {
	receiver := newMockReceiver(451)
	defer receiver.Close()

	webhook := s.createWebhook(receiver.URL())
	webhookID := webhook["id"].(string)
	event := s.createEvent(webhookID, map[string]interface{}{
		"type": "user.signup",
	})

	paused := s.waitForEventStatus(event["id"].(string), "PAUSED", 10*time.Second)
	s.Contains(paused["failure_reason"], "451")

	refreshed := s.getWebhook(webhookID)
	s.NotEmpty(refreshed["paused_until"], "webhook should carry a pause window")

	// the receiver recovers; resuming replays the paused event
	receiver.SetFallbackStatus(200)

	resp, err := s.client.POST("/api/v1/webhooks/"+webhookID+"/resume", nil)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	body, err := s.client.ParseBody(resp)
	s.Require().NoError(err)
	s.Equal(float64(1), body["resumed_events"])

	s.waitForEventStatus(event["id"].(string), "SUCCESS", 10*time.Second)
}
