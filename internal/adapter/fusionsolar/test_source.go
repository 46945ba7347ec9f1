package fusionsolar

import (
	"context"
	"sync"
	"time"

	"github.com/sebadal-solar/fusionsolar2json/internal/core/domain"
	"github.com/sebadal-solar/fusionsolar2json/internal/core/port"
)

// TestSource is a scripted telemetry source. Fetch errors are consumed in
// order, one per fetch; once exhausted every fetch returns Telemetry.
type TestSource struct {
	Telemetry domain.RawTelemetry
	LoginErr  error
	// FetchDelay simulates a slow portal, the fetch honors ctx.
	FetchDelay time.Duration

	mu        sync.Mutex
	fetchErrs []error
	logins    int
	closes    int
	fetches   int
}

func NewTestSource() *TestSource {
	return &TestSource{
		Telemetry: domain.RawTelemetry{
			CurrentPowerKw:      domain.Known(4.75),
			EnergyTodayKwh:      domain.Known(21.4),
			EnergyTotalKwh:      domain.Known(10234.5),
			StationName:         "El Sebadal",
			StationCurrentPower: domain.Known(3.25),
			ProductPowerValue:   domain.Known(1.2),
			ProductPowerTime:    "2024-06-21 13:35",
			TotalUsePower:       domain.Known(2.6),
			TotalSelfUsePower:   domain.Known(1.9),
			BuyPowerRatio:       domain.Known(0.25),
		},
	}
}

func (s *TestSource) FailFetches(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchErrs = append(s.fetchErrs, errs...)
}

func (s *TestSource) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

func (s *TestSource) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func (s *TestSource) Fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func (s *TestSource) Login(ctx context.Context) (port.TelemetrySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoginErr != nil {
		return nil, s.LoginErr
	}
	s.logins++
	return &testSession{source: s}, nil
}

type testSession struct {
	source *TestSource
}

func (ts *testSession) FetchTelemetry(ctx context.Context, plantIndex uint) (*domain.RawTelemetry, error) {
	s := ts.source
	if s.FetchDelay > 0 {
		select {
		case <-time.After(s.FetchDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if len(s.fetchErrs) > 0 {
		err := s.fetchErrs[0]
		s.fetchErrs = s.fetchErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	raw := s.Telemetry
	return &raw, nil
}

func (ts *testSession) Close(ctx context.Context) error {
	ts.source.mu.Lock()
	defer ts.source.mu.Unlock()
	ts.source.closes++
	return nil
}

// ensure interface compliance
var _ port.TelemetrySource = (*TestSource)(nil)
