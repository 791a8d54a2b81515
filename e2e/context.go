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

// TestContext holds the HTTP client and the last response of a scenario.
type TestContext struct {
	BaseURL    string
	AdminToken string

	client       *http.Client
	lastStatus   int
	lastHeaders  http.Header
	lastBody     []byte
	lastResponse map[string]any
}

// NewTestContext creates a context for one scenario.
func NewTestContext(baseURL, adminToken string) *TestContext {
	return &TestContext{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		AdminToken: adminToken,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (tc *TestContext) GET(path string, headers map[string]string) error {
	return tc.do(http.MethodGet, path, nil, headers)
}

func (tc *TestContext) POST(path string, body any, headers map[string]string) error {
	return tc.do(http.MethodPost, path, body, headers)
}

func (tc *TestContext) PATCH(path string, body any, headers map[string]string) error {
	return tc.do(http.MethodPatch, path, body, headers)
}

func (tc *TestContext) DELETE(path string, headers map[string]string) error {
	return tc.do(http.MethodDelete, path, nil, headers)
}

// AdminHeaders returns the headers that authorize admin API calls.
func (tc *TestContext) AdminHeaders() map[string]string {
	return map[string]string{"X-Admin-Token": tc.AdminToken}
}

func (tc *TestContext) do(method, path string, body any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, tc.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	tc.lastStatus = resp.StatusCode
	tc.lastHeaders = resp.Header
	tc.lastBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	tc.lastResponse = nil
	if len(tc.lastBody) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var parsed map[string]any
		if json.Unmarshal(tc.lastBody, &parsed) == nil {
			tc.lastResponse = parsed
		}
	}
	return nil
}

func (tc *TestContext) GetLastResponseStatus() int {
	return tc.lastStatus
}

func (tc *TestContext) GetLastResponseHeader(name string) string {
	if tc.lastHeaders == nil {
		return ""
	}
	return tc.lastHeaders.Get(name)
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.lastBody
}

// GetResponseField returns a top-level field of the last JSON object response.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	if tc.lastResponse == nil {
		return nil, fmt.Errorf("last response is not a JSON object: %s", tc.lastBody)
	}
	value, ok := tc.lastResponse[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response: %s", field, tc.lastBody)
	}
	return value, nil
}
