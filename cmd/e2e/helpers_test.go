package e2e_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// mockReceiver is a webhook endpoint under test control. Each incoming
// request pops the next status code from the queue; an empty queue answers
// with the fallback status.
type mockReceiver struct {
	server *httptest.Server

	mu             sync.Mutex
	statusQueue    []int
	fallbackStatus int
	requests       [][]byte
}

func newMockReceiver(fallbackStatus int, statusQueue ...int) *mockReceiver {
	r := &mockReceiver{
		statusQueue:    statusQueue,
		fallbackStatus: fallbackStatus,
	}
	r.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)

		r.mu.Lock()
		r.requests = append(r.requests, body)
		status := r.fallbackStatus
		if len(r.statusQueue) > 0 {
			status = r.statusQueue[0]
			r.statusQueue = r.statusQueue[1:]
		}
		r.mu.Unlock()

		w.WriteHeader(status)
	}))
	return r
}

func (r *mockReceiver) URL() string {
	return r.server.URL
}

func (r *mockReceiver) Close() {
	r.server.Close()
}

func (r *mockReceiver) SetFallbackStatus(status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbackStatus = status
}

func (r *mockReceiver) RequestCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

func (r *mockReceiver) LastRequest() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.requests) == 0 {
		return nil
	}
	return r.requests[len(r.requests)-1]
}

func (s *basicSuite) createWebhook(url string) map[string]interface{} {
	resp, err := s.client.POST("/api/v1/webhooks", map[string]interface{}{
		"url": url,
	})
	s.Require().NoError(err)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	body, err := s.client.ParseBody(resp)
	s.Require().NoError(err)
	s.Require().True(body["valid"].(bool), "webhook URL should pass validation")
	return body["webhook"].(map[string]interface{})
}

func (s *basicSuite) createEvent(webhookID string, payload map[string]interface{}) map[string]interface{} {
	resp, err := s.client.POST("/api/v1/events", map[string]interface{}{
		"webhook_id": webhookID,
		"payload":    payload,
	})
	s.Require().NoError(err)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	body, err := s.client.ParseBody(resp)
	s.Require().NoError(err)
	return body
}

func (s *basicSuite) getEvent(eventID string) map[string]interface{} {
	resp, err := s.client.GET("/api/v1/events/" + eventID)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	body, err := s.client.ParseBody(resp)
	s.Require().NoError(err)
	return body
}

func (s *basicSuite) getWebhook(webhookID string) map[string]interface{} {
	resp, err := s.client.GET("/api/v1/webhooks/" + webhookID)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	body, err := s.client.ParseBody(resp)
	s.Require().NoError(err)
	return body
}

// waitForEventStatus polls until the event reaches the wanted status or the
// timeout expires, returning the final event representation.
func (s *basicSuite) waitForEventStatus(eventID, status string, timeout time.Duration) map[string]interface{} {
	deadline := time.Now().Add(timeout)
	var event map[string]interface{}
	for time.Now().Before(deadline) {
		event = s.getEvent(eventID)
		if event["status"] == status {
			return event
		}
		time.Sleep(100 * time.Millisecond)
	}
	s.T().Fatalf("event %s did not reach status %s in time, last status: %v", eventID, status, event["status"])
	return nil
}
