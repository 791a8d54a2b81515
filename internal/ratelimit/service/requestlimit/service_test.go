package requestlimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"gatekeeper/internal/ratelimit/config"
	"gatekeeper/internal/ratelimit/metrics"
	"gatekeeper/internal/ratelimit/models"
	"gatekeeper/internal/ratelimit/ports/mocks"
	"gatekeeper/internal/ratelimit/store/window"
	"gatekeeper/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	remote  *mocks.MockRemoteClient
	local   *window.InMemoryWindowStore
	holder  *config.Holder
	metrics *metrics.Metrics
	service *Service
	now     time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.remote = mocks.NewMockRemoteClient(s.ctrl)
	s.local = window.New()
	s.holder = config.NewHolder(config.Config{
		Window:      time.Second,
		MaxRequests: 2,
		Message:     "slow down",
	})
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	var err error
	s.service, err = New(s.local, s.holder, WithMetrics(s.metrics))
	s.Require().NoError(err)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) at(offset time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.now.Add(offset))
}

func (s *ServiceSuite) TestNew() {
	s.Run("local store is required", func() {
		svc, err := New(nil, s.holder)
		s.Error(err)
		s.Nil(svc)
	})

	s.Run("config holder is required", func() {
		svc, err := New(s.local, nil)
		s.Error(err)
		s.Nil(svc)
	})

	s.Run("starts on the local backend", func() {
		s.Equal(models.BackendLocal, s.service.Backend())
	})
}

func (s *ServiceSuite) TestEvaluateLocal() {
	first := s.service.Evaluate(s.at(0), "10.0.0.1")
	s.True(first.Allowed)
	s.Equal(2, first.Limit)
	s.Equal(1, first.Remaining)
	s.Equal(models.BackendLocal, first.Backend)

	second := s.service.Evaluate(s.at(100*time.Millisecond), "10.0.0.1")
	s.True(second.Allowed)
	s.Equal(0, second.Remaining)

	third := s.service.Evaluate(s.at(200*time.Millisecond), "10.0.0.1")
	s.False(third.Allowed)
	s.Equal(0, third.Remaining)
	s.Equal(1, third.RetryAfter)
	s.Equal(s.now.Add(time.Second), third.ResetAt)

	fourth := s.service.Evaluate(s.at(1100*time.Millisecond), "10.0.0.1")
	s.True(fourth.Allowed)
	s.Equal(1, fourth.Remaining)

	s.Equal(float64(3), promtestutil.ToFloat64(s.metrics.Decisions.WithLabelValues("local", metrics.OutcomeAllowed)))
	s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.Decisions.WithLabelValues("local", metrics.OutcomeRejected)))
}

func (s *ServiceSuite) TestEvaluateRemote() {
	s.Require().NoError(s.service.RegisterRemoteStore(s.remote))
	s.Equal(models.BackendRemote, s.service.Backend())

	key := models.NewWindowKey("10.0.0.2").String()
	s.remote.EXPECT().Get(gomock.Any(), key).Return(int64(2), true, nil)
	s.remote.EXPECT().TTL(gomock.Any(), key).Return(400*time.Millisecond, true, nil)

	d := s.service.Evaluate(s.at(0), "10.0.0.2")
	s.False(d.Allowed)
	s.Equal(models.BackendRemote, d.Backend)
	s.Equal(2, d.Limit)
	s.Equal(1, d.RetryAfter)
	s.Equal(0, s.local.Len(), "local store must not be touched on the remote path")
}

func (s *ServiceSuite) TestRemoteFailureFallsBackToLocal() {
	s.Require().NoError(s.service.RegisterRemoteStore(s.remote))
	s.remote.EXPECT().Get(gomock.Any(), gomock.Any()).Return(int64(0), false, errors.New("connection reset")).Times(1)

	d := s.service.Evaluate(s.at(0), "10.0.0.3")
	s.True(d.Allowed)
	s.Equal(models.BackendLocal, d.Backend)
	s.Equal(1, d.Remaining)
	s.Equal(models.BackendLocal, s.service.Backend())
	s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.Failovers))

	s.Run("later requests stay local without retrying remote", func() {
		d := s.service.Evaluate(s.at(10*time.Millisecond), "10.0.0.3")
		s.Equal(models.BackendLocal, d.Backend)
		s.Equal(0, d.Remaining)
	})
}

func (s *ServiceSuite) TestReRegisterAfterFailover() {
	s.Require().NoError(s.service.RegisterRemoteStore(s.remote))
	s.remote.EXPECT().Get(gomock.Any(), gomock.Any()).Return(int64(0), false, errors.New("down"))
	s.service.Evaluate(s.at(0), "10.0.0.4")
	s.Require().Equal(models.BackendLocal, s.service.Backend())

	s.Require().NoError(s.service.RegisterRemoteStore(s.remote))
	s.Equal(models.BackendRemote, s.service.Backend())
}

func (s *ServiceSuite) TestStaleFailoverKeepsNewerRegistration() {
	s.Require().NoError(s.service.RegisterRemoteStore(s.remote))
	stale := s.service.selection.Load()

	s.Require().NoError(s.service.RegisterRemoteStore(s.remote))
	s.service.failover(context.Background(), stale, "10.0.0.5", errors.New("timeout"))

	s.Equal(models.BackendRemote, s.service.Backend())
	s.Equal(float64(0), promtestutil.ToFloat64(s.metrics.Failovers))
}

func (s *ServiceSuite) TestConcurrentFailuresFailOverOnce() {
	s.Require().NoError(s.service.RegisterRemoteStore(s.remote))
	s.remote.EXPECT().Get(gomock.Any(), gomock.Any()).Return(int64(0), false, errors.New("down")).AnyTimes()

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			d := s.service.Evaluate(s.at(0), "10.0.0.6")
			s.NotNil(d)
		})
	}
	wg.Wait()

	s.Equal(models.BackendLocal, s.service.Backend())
	s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.Failovers))
}

func (s *ServiceSuite) TestRegisterRemoteStoreRequiresClient() {
	s.Error(s.service.RegisterRemoteStore(nil))
	s.Equal(models.BackendLocal, s.service.Backend())
}

func (s *ServiceSuite) TestForceFallbackToLocal() {
	s.Require().NoError(s.service.RegisterRemoteStore(s.remote))
	s.service.ForceFallbackToLocal()
	s.Equal(models.BackendLocal, s.service.Backend())

	d := s.service.Evaluate(s.at(0), "10.0.0.7")
	s.Equal(models.BackendLocal, d.Backend)
}

func (s *ServiceSuite) TestLocalStoreErrorAdmits() {
	local := mocks.NewMockLocalWindowStore(s.ctrl)
	svc, err := New(local, s.holder)
	s.Require().NoError(err)

	local.EXPECT().Check(gomock.Any(), "ratelimit:10.0.0.8", gomock.Any()).Return(nil, errors.New("corrupt"))

	d := svc.Evaluate(s.at(0), "10.0.0.8")
	s.True(d.Allowed)
	s.Equal(2, d.Limit)
	s.Equal(0, d.RetryAfter)
}

func (s *ServiceSuite) TestUpdateConfig() {
	maxRequests := 1
	cfg := s.service.UpdateConfig(config.Update{MaxRequests: &maxRequests})
	s.Equal(1, cfg.MaxRequests)
	s.Equal(time.Second, cfg.Window)
	s.Equal("slow down", cfg.Message)
	s.Equal(cfg, s.service.GetConfig())

	allowed := s.service.Evaluate(s.at(0), "10.0.0.9")
	s.True(allowed.Allowed)
	s.Empty(allowed.Message)

	rejected := s.service.Evaluate(s.at(time.Millisecond), "10.0.0.9")
	s.False(rejected.Allowed)
	s.Equal("slow down", rejected.Message)
	s.Equal(1, rejected.Limit)
}

func (s *ServiceSuite) TestResetWindow() {
	s.service.Evaluate(s.at(0), "10.0.0.10")
	s.service.Evaluate(s.at(0), "10.0.0.10")
	s.False(s.service.Evaluate(s.at(0), "10.0.0.10").Allowed)

	s.Require().NoError(s.service.ResetWindow(context.Background(), "10.0.0.10"))
	s.True(s.service.Evaluate(s.at(0), "10.0.0.10").Allowed)
}

func (s *ServiceSuite) TestUnknownIdentifierIsShared() {
	s.service.Evaluate(s.at(0), "unknown")
	s.service.Evaluate(s.at(0), "unknown")
	s.False(s.service.Evaluate(s.at(0), "unknown").Allowed)
}

func (s *ServiceSuite) TestLookalikeIdentifiersUseSeparateWindows() {
	s.True(s.service.Evaluate(s.at(0), "2001:db8::1").Allowed)
	s.True(s.service.Evaluate(s.at(0), "2001:db8::1").Allowed)
	s.False(s.service.Evaluate(s.at(0), "2001:db8::1").Allowed)

	d := s.service.Evaluate(s.at(0), "2001_db8__1")
	s.True(d.Allowed)
	s.Equal(1, d.Remaining)
}
