package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TestContext holds the HTTP state of one scenario against a running server.
type TestContext struct {
	BaseURL    string
	AdminToken string
	Actor      string

	client     *http.Client
	status     int
	body       []byte
	remembered map[string]string
}

func NewTestContext(baseURL, adminToken string) *TestContext {
	return &TestContext{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		AdminToken: adminToken,
		client:     &http.Client{Timeout: 10 * time.Second},
		remembered: map[string]string{},
	}
}

// Reset clears per-scenario state.
func (tc *TestContext) Reset() {
	tc.Actor = ""
	tc.status = 0
	tc.body = nil
	tc.remembered = map[string]string{}
}

func (tc *TestContext) SetActor(actor string) { tc.Actor = actor }

func (tc *TestContext) POST(path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return tc.do(http.MethodPost, path, bytes.NewReader(payload))
}

func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil)
}

func (tc *TestContext) do(method, path string, body io.Reader) error {
	req, err := http.NewRequest(method, tc.BaseURL+tc.Expand(path), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if tc.AdminToken != "" {
		req.Header.Set("X-Admin-Token", tc.AdminToken)
	}
	if tc.Actor != "" {
		req.Header.Set("X-Actor-ID", tc.Actor)
	}
	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	tc.status = resp.StatusCode
	tc.body, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) StatusCode() int { return tc.status }

func (tc *TestContext) Body() []byte { return tc.body }

// GetResponseField reads a dotted path ("master.phone") from the last JSON response.
func (tc *TestContext) GetResponseField(field string) (interface{}, error) {
	var doc interface{}
	if err := json.Unmarshal(tc.body, &doc); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	cur := doc
	for _, part := range strings.Split(field, ".") {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("field %q: %q is not an object", field, part)
		}
		cur, ok = obj[part]
		if !ok {
			return nil, fmt.Errorf("field %q not in response: %s", field, tc.body)
		}
	}
	return cur, nil
}

// Remember stores a value for later {name} substitution in paths.
func (tc *TestContext) Remember(name, value string) { tc.remembered[name] = value }

func (tc *TestContext) Recall(name string) string { return tc.remembered[name] }

// Expand replaces {name} placeholders with remembered values.
func (tc *TestContext) Expand(s string) string {
	for k, v := range tc.remembered {
		s = strings.ReplaceAll(s, "{"+k+"}", v)
	}
	return s
}
