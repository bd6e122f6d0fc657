package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ssot/internal/platform/config"
)

const adminToken = "test-admin-token"

type AppSuite struct {
	suite.Suite
	app        *App
	server     *httptest.Server
	enginePath string
}

func TestAppSuite(t *testing.T) {
	suite.Run(t, new(AppSuite))
}

func (s *AppSuite) SetupTest() {
	enginePath := filepath.Join(s.T().TempDir(), "engine.yaml")
	s.Require().NoError(os.WriteFile(enginePath, []byte("auto_resolve: {accept: false, merge: false}\n"), 0o600))

	s.enginePath = enginePath
	cfg := config.Server{
		AdminToken:   adminToken,
		EngineConfig: enginePath,
		TxTimeout:    time.Second,
		LockTTL:      time.Second,
	}
	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Require().NoError(err)
	s.app = a
	s.server = httptest.NewServer(a.Router)
}

func (s *AppSuite) TearDownTest() {
	s.server.Close()
	s.app.Close()
}

func (s *AppSuite) do(method, path, body string, operator bool) (int, map[string]any) {
	req, err := http.NewRequest(method, s.server.URL+path, strings.NewReader(body))
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if operator {
		req.Header.Set("X-Admin-Token", adminToken)
		req.Header.Set("X-Actor-ID", "operator-7")
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	var out map[string]any
	data, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	if len(data) > 0 {
		s.Require().NoError(json.Unmarshal(data, &out), string(data))
	}
	return resp.StatusCode, out
}

func (s *AppSuite) TestQuarantineWorkflowOverHTTP() {
	status, _ := s.do(http.MethodPost, "/calibration/initialize", "", true)
	s.Require().Equal(http.StatusCreated, status)

	status, first := s.do(http.MethodPost, "/submissions", `{"nama_lengkap":"Siti Nurhaliza","tanggal_lahir":"1990-04-12","id_wijk":"W-07"}`, false)
	s.Require().Equal(http.StatusCreated, status)
	firstID := first["submission"].(map[string]any)["id"].(string)
	s.Equal("registration", first["submission"].(map[string]any)["submitted_by"])

	status, out := s.do(http.MethodPost, "/submissions/"+firstID+"/resolve", `{"decision":"accept"}`, true)
	s.Require().Equal(http.StatusOK, status, out)
	masterID := out["master"].(map[string]any)["id"].(string)

	status, second := s.do(http.MethodPost, "/submissions", `{"full_name":"Siti Nurhaliza","birth_date":"12/04/1990","region":"W-07","phone":"0812-3456-7890"}`, false)
	s.Require().Equal(http.StatusCreated, status)
	secondID := second["submission"].(map[string]any)["id"].(string)
	cands := second["candidates"].([]any)
	s.Require().Len(cands, 1)
	s.Equal("possible", cands[0].(map[string]any)["classification"])

	status, queue := s.do(http.MethodGet, "/review-queue", "", true)
	s.Require().Equal(http.StatusOK, status)
	s.Equal(float64(1), queue["count"])

	status, out = s.do(http.MethodPost, "/submissions/"+secondID+"/resolve",
		`{"decision":"merge","target_master_id":"`+masterID+`"}`, true)
	s.Require().Equal(http.StatusOK, status, out)
	s.Equal("merged", out["status"])

	status, out = s.do(http.MethodPost, "/submissions/"+secondID+"/resolve",
		`{"decision":"merge","target_master_id":"`+masterID+`"}`, true)
	s.Equal(http.StatusConflict, status)
	s.Equal("conflict", out["error"])

	status, master := s.do(http.MethodGet, "/masters/"+masterID, "", true)
	s.Require().Equal(http.StatusOK, status)
	s.Equal("0812-3456-7890", master["phone"])

	status, trail := s.do(http.MethodGet, "/audit?entity_type=master_identity&entity_id="+masterID, "", true)
	s.Require().Equal(http.StatusOK, status)
	s.Equal(float64(2), trail["count"], "accept and merge both reference the master")
}

func (s *AppSuite) TestOperatorRoutesNeedTheAdminToken() {
	status, out := s.do(http.MethodGet, "/review-queue", "", false)
	s.Equal(http.StatusUnauthorized, status)
	s.Equal("unauthorized", out["error"])
}

func (s *AppSuite) TestSubmitBeforeCalibrationWithoutCandidates() {
	status, _ := s.do(http.MethodPost, "/submissions", `{"full_name":"Ahmad Fauzi"}`, false)
	s.Equal(http.StatusCreated, status)
}

func (s *AppSuite) TestHealthAndMetrics() {
	status, out := s.do(http.MethodGet, "/healthz", "", false)
	s.Equal(http.StatusOK, status)
	s.Equal("ok", out["status"])

	resp, err := http.Get(s.server.URL + "/metrics")
	s.Require().NoError(err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	s.Contains(string(body), "ssot_http_requests_total")
}

func (s *AppSuite) metricsBody() string {
	resp, err := http.Get(s.server.URL + "/metrics")
	s.Require().NoError(err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	return string(body)
}

func (s *AppSuite) TestEngineReloadUpdatesThresholdGauge() {
	s.Contains(s.metricsBody(), `ssot_decision_threshold{bound="upper"} 8`)

	s.Require().NoError(os.WriteFile(s.enginePath, []byte("thresholds: {upper: 6, lower: -5}\n"), 0o600))
	_, err := s.app.Engine.Reload()
	s.Require().NoError(err)

	body := s.metricsBody()
	s.Contains(body, `ssot_decision_threshold{bound="upper"} 6`)
	s.Contains(body, `ssot_decision_threshold{bound="lower"} -5`)
}
