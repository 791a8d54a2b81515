package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string, headers map[string]string) error
	PATCH(path string, body any, headers map[string]string) error
	DELETE(path string, headers map[string]string) error
	AdminHeaders() map[string]string
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseHeader(name string) string
	GetLastResponseBody() []byte
}

// RegisterSteps registers rate-limiting step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}

	ctx.Step(`^the gateway is running$`, steps.gatewayIsRunning)
	ctx.Step(`^the rate limit is (\d+) requests per (\d+) milliseconds$`, steps.rateLimitIs)
	ctx.Step(`^the rate limit message is "([^"]*)"$`, steps.rateLimitMessageIs)

	ctx.Step(`^client "([^"]*)" sends (\d+) requests? to "([^"]*)"$`, steps.clientSendsRequests)
	ctx.Step(`^I wait (\d+) milliseconds$`, steps.waitMilliseconds)
	ctx.Step(`^the admin resets the window for client "([^"]*)"$`, steps.adminResetsWindow)

	ctx.Step(`^the last response status should be (\d+)$`, steps.lastStatusShouldBe)
	ctx.Step(`^the responses should have statuses "([^"]*)"$`, steps.responsesShouldHaveStatuses)
	ctx.Step(`^the last response header "([^"]*)" should be "([^"]*)"$`, steps.lastHeaderShouldBe)
	ctx.Step(`^the last response should have a "([^"]*)" header$`, steps.lastResponseShouldHaveHeader)
	ctx.Step(`^the last response should contain message "([^"]*)"$`, steps.lastResponseMessageShouldBe)
}

type ratelimitSteps struct {
	tc       TestContext
	statuses []int
}

func (s *ratelimitSteps) gatewayIsRunning(ctx context.Context) error {
	if err := s.tc.GET("/healthz", nil); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != 200 {
		return fmt.Errorf("health check returned %d", status)
	}
	return nil
}

func (s *ratelimitSteps) rateLimitIs(ctx context.Context, maxRequests, windowMs int) error {
	body := map[string]any{"maxRequests": maxRequests, "windowMs": windowMs}
	return s.updateConfig(body)
}

func (s *ratelimitSteps) rateLimitMessageIs(ctx context.Context, message string) error {
	return s.updateConfig(map[string]any{"message": message})
}

func (s *ratelimitSteps) updateConfig(body map[string]any) error {
	if err := s.tc.PATCH("/admin/rate-limit/config", body, s.tc.AdminHeaders()); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != 200 {
		return fmt.Errorf("config update returned %d: %s", status, s.tc.GetLastResponseBody())
	}
	return nil
}

// clientSendsRequests simulates a client behind a proxy via X-Forwarded-For
func (s *ratelimitSteps) clientSendsRequests(ctx context.Context, ip string, count int, path string) error {
	s.statuses = s.statuses[:0]
	headers := map[string]string{"X-Forwarded-For": ip}
	for range count {
		if err := s.tc.GET(path, headers); err != nil {
			return err
		}
		s.statuses = append(s.statuses, s.tc.GetLastResponseStatus())
	}
	return nil
}

func (s *ratelimitSteps) waitMilliseconds(ctx context.Context, ms int) error {
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ratelimitSteps) adminResetsWindow(ctx context.Context, ip string) error {
	if err := s.tc.DELETE("/admin/rate-limit/windows/"+ip, s.tc.AdminHeaders()); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != 200 {
		return fmt.Errorf("window reset returned %d: %s", status, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *ratelimitSteps) lastStatusShouldBe(ctx context.Context, expected int) error {
	if actual := s.tc.GetLastResponseStatus(); actual != expected {
		return fmt.Errorf("expected status %d, got %d: %s", expected, actual, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *ratelimitSteps) responsesShouldHaveStatuses(ctx context.Context, expected string) error {
	parts := strings.Split(expected, ",")
	if len(parts) != len(s.statuses) {
		return fmt.Errorf("expected %d responses, got %d", len(parts), len(s.statuses))
	}
	for i, part := range parts {
		want, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return fmt.Errorf("invalid status %q: %w", part, err)
		}
		if s.statuses[i] != want {
			return fmt.Errorf("response %d: expected %d, got %d", i+1, want, s.statuses[i])
		}
	}
	return nil
}

func (s *ratelimitSteps) lastHeaderShouldBe(ctx context.Context, name, expected string) error {
	if actual := s.tc.GetLastResponseHeader(name); actual != expected {
		return fmt.Errorf("expected header %s=%q, got %q", name, expected, actual)
	}
	return nil
}

func (s *ratelimitSteps) lastResponseShouldHaveHeader(ctx context.Context, name string) error {
	if s.tc.GetLastResponseHeader(name) == "" {
		return fmt.Errorf("expected header %s to be set", name)
	}
	return nil
}

func (s *ratelimitSteps) lastResponseMessageShouldBe(ctx context.Context, expected string) error {
	value, err := s.tc.GetResponseField("message")
	if err != nil {
		return err
	}
	if value != expected {
		return fmt.Errorf("expected message %q, got %v", expected, value)
	}
	return nil
}
