package handler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"gatekeeper/internal/ratelimit/config"
	"gatekeeper/internal/ratelimit/models"
	"gatekeeper/internal/ratelimit/ports/mocks"
	"gatekeeper/internal/ratelimit/service/requestlimit"
	"gatekeeper/internal/ratelimit/store/window"
	"gatekeeper/pkg/testutil"
)

type stubHealth struct {
	err error
}

func (s stubHealth) Health(context.Context) error {
	return s.err
}

// HandlerSuite drives the admin API through a chi router backed by a real
// limiter service and local store.
type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	remote  *mocks.MockRemoteClient
	logger  *slog.Logger
	service *requestlimit.Service
	router  http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.remote = mocks.NewMockRemoteClient(s.ctrl)
	s.logger = slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	var err error
	s.service, err = requestlimit.New(window.New(), config.NewHolder(config.Config{
		Window:      time.Minute,
		MaxRequests: 1,
		Message:     "Too many requests, please try again later.",
	}))
	s.Require().NoError(err)

	s.router = s.newRouter(WithRemote(s.remote, stubHealth{}))
}

func (s *HandlerSuite) newRouter(opts ...Option) http.Handler {
	r := chi.NewRouter()
	New(s.service, s.logger, opts...).RegisterAdmin(r)
	return r
}

func (s *HandlerSuite) TestGetConfig() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/admin/rate-limit/config"))

	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[models.ConfigResponse](s.T(), rr)
	s.Equal(int64(60000), resp.WindowMs)
	s.Equal(1, resp.MaxRequests)
	s.Equal("Too many requests, please try again later.", resp.Message)
}

func (s *HandlerSuite) TestUpdateConfig() {
	s.Run("present fields are applied", func() {
		body := map[string]any{"windowMs": 1000, "maxRequests": 5}
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPatch, "/admin/rate-limit/config", body))

		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[models.ConfigResponse](s.T(), rr)
		s.Equal(int64(1000), resp.WindowMs)
		s.Equal(5, resp.MaxRequests)
		s.Equal("Too many requests, please try again later.", resp.Message)
		s.Equal(time.Second, s.service.GetConfig().Window)
	})

	s.Run("zero and empty values are ignored", func() {
		body := map[string]any{"windowMs": 0, "maxRequests": -3, "message": ""}
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPatch, "/admin/rate-limit/config", body))

		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[models.ConfigResponse](s.T(), rr)
		s.Equal(int64(1000), resp.WindowMs)
		s.Equal(5, resp.MaxRequests)
	})

	s.Run("window beyond duration range is rejected", func() {
		body := map[string]any{"windowMs": int64(9_300_000_000_000), "maxRequests": 7}
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPatch, "/admin/rate-limit/config", body))

		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
		s.Equal(time.Second, s.service.GetConfig().Window)
		s.Equal(5, s.service.GetConfig().MaxRequests)
	})

	s.Run("largest representable window is accepted", func() {
		body := map[string]any{"windowMs": maxWindowMs}
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPatch, "/admin/rate-limit/config", body))

		testutil.AssertStatusOK(s.T(), rr)
		s.Equal(time.Duration(maxWindowMs)*time.Millisecond, s.service.GetConfig().Window)
	})

	s.Run("invalid json is rejected", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPatch, "/admin/rate-limit/config", "not valid json")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})
}

func (s *HandlerSuite) TestBackendSwitching() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/admin/rate-limit/backend"))
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "backend", "local")

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, "/admin/rate-limit/backend/remote"))
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "backend", "remote")
	s.Equal(models.BackendRemote, s.service.Backend())

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, "/admin/rate-limit/backend/local"))
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "backend", "local")
	s.Equal(models.BackendLocal, s.service.Backend())
}

func (s *HandlerSuite) TestUseRemoteUnavailable() {
	s.Run("no remote configured", func() {
		router := s.newRouter()
		rr := testutil.DoRequest(router, testutil.NewRequest(s.T(), http.MethodPost, "/admin/rate-limit/backend/remote"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusServiceUnavailable, "remote_unavailable")
	})

	s.Run("health check fails", func() {
		router := s.newRouter(WithRemote(s.remote, stubHealth{err: errors.New("dial tcp: refused")}))
		rr := testutil.DoRequest(router, testutil.NewRequest(s.T(), http.MethodPost, "/admin/rate-limit/backend/remote"))
		testutil.AssertStatus(s.T(), rr, http.StatusServiceUnavailable)
		s.Equal(models.BackendLocal, s.service.Backend())
	})
}

func (s *HandlerSuite) TestResetWindow() {
	ctx := context.Background()
	s.service.Evaluate(ctx, "10.0.0.1")
	s.Require().False(s.service.Evaluate(ctx, "10.0.0.1").Allowed)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodDelete, "/admin/rate-limit/windows/10.0.0.1"))

	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[models.ResetWindowResponse](s.T(), rr)
	s.Equal("10.0.0.1", resp.Identifier)
	s.True(resp.Reset)
	s.True(s.service.Evaluate(ctx, "10.0.0.1").Allowed)
}
