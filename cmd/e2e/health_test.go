package e2e_test

import "net/http"

func (s *basicSuite) TestHealth_ServerReportsHealthy() {
	resp, err := s.client.GET("/healthz")
	s.Require().NoError(err)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	body, err := s.client.ParseBody(resp)
	s.Require().NoError(err)
	s.Equal("healthy", body["status"])
	s.NotEmpty(body["timestamp"], "timestamp should be present")
	s.NotNil(body["workers"], "workers should be present")
}

func (s *basicSuite) TestHealth_APIRequiresAuth() {
	request, err := http.NewRequest("GET", s.client.url("/api/v1/webhooks"), nil)
	s.Require().NoError(err)

	resp, err := http.DefaultClient.Do(request)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}
