package actor

import (
	"errors"
	"testing"
	"time"

	adactor "github.com/sebadal-solar/fusionsolar2json/internal/adapter/actor"
	adfusion "github.com/sebadal-solar/fusionsolar2json/internal/adapter/fusionsolar"
	"github.com/sebadal-solar/fusionsolar2json/internal/core/domain"
	"github.com/sebadal-solar/fusionsolar2json/internal/core/service"
	"github.com/sebadal-solar/fusionsolar2json/internal/util"
	"github.com/sebadal-solar/fusionsolar2json/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type pollerFixture struct {
	root    *actor.RootContext
	poller  *actor.PID
	source  *adfusion.TestSource
	results chan domain.PollCycleResult
	sensors chan domain.SensorUpdateEvent
}

func newPollerFixture(t *testing.T) *pollerFixture {
	cfg := util.LoadTestConfig()
	cfg.Poll.TimeoutSeconds = 2

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	t.Cleanup(as.Shutdown)

	f := &pollerFixture{
		root:    as.Root,
		source:  adfusion.NewTestSource(),
		results: make(chan domain.PollCycleResult, 16),
		sensors: make(chan domain.SensorUpdateEvent, 256),
	}

	es := &eventstream.EventStream{}
	es.Subscribe(func(value any) {
		switch ev := value.(type) {
		case domain.PollCycleResult:
			f.results <- ev
		case domain.SensorUpdateEvent:
			f.sensors <- ev
		}
	})

	telemetry := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewTelemetryActor(&cfg, f.source, logger)
	}))
	f.poller = as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewPollerActor(&cfg, telemetry, service.NewPowerBalanceReconciler(), es, logger)
	}))
	return f
}

func (f *pollerFixture) cycle(t *testing.T) domain.PollCycleResult {
	f.root.Send(f.poller, domain.PollTick{})
	return f.nextResult(t)
}

func (f *pollerFixture) nextResult(t *testing.T) domain.PollCycleResult {
	select {
	case r := <-f.results:
		return r
	case <-time.After(5 * time.Second):
		require.FailNow(t, "no poll cycle result")
		return domain.PollCycleResult{}
	}
}

func (f *pollerFixture) health(t *testing.T) domain.ActorHealthResponse {
	res, err := f.root.RequestFuture(f.poller, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)
	return res.(domain.ActorHealthResponse)
}

func (f *pollerFixture) latest(t *testing.T) domain.GetLatestBalanceResponse {
	res, err := f.root.RequestFuture(f.poller, domain.GetLatestBalanceRequest{}, time.Second).Result()
	require.NoError(t, err)
	return res.(domain.GetLatestBalanceResponse)
}

func TestPollerCycle(t *testing.T) {

	f := newPollerFixture(t)

	latest := f.latest(t)
	assert.Nil(t, latest.Balance, "nothing before the first cycle")
	assert.Nil(t, latest.LastCycle)

	r := f.cycle(t)
	require.True(t, r.Ok(), "%v", r.Err)
	assert.NotEmpty(t, r.CycleId)
	assert.Equal(t, 3.25, r.Balance.SolarKw)
	assert.Equal(t, 2.6, r.Balance.LoadKw)
	assert.Equal(t, 0.65, r.Balance.GridImportKw)
	assert.Equal(t, "El Sebadal", r.Balance.StationName)

	select {
	case ev := <-f.sensors:
		assert.NotEmpty(t, ev.SensorId())
	case <-time.After(time.Second):
		assert.Fail(t, "no sensor events published")
	}

	latest = f.latest(t)
	require.NotNil(t, latest.Balance)
	assert.Equal(t, *r.Balance, *latest.Balance)
	assert.Equal(t, r.CycleId, latest.LastCycle.CycleId)

	r2 := f.cycle(t)
	assert.NotEqual(t, r.CycleId, r2.CycleId)
	assert.Equal(t, 1, f.source.Logins(), "session reused across cycles")
}

func TestPollerDropsTicksWhilePolling(t *testing.T) {

	f := newPollerFixture(t)
	f.source.FetchDelay = 300 * time.Millisecond

	f.root.Send(f.poller, domain.PollTick{})
	f.root.Send(f.poller, domain.PollTick{})
	f.root.Send(f.poller, domain.PollTick{})

	assert.True(t, f.nextResult(t).Ok())
	select {
	case r := <-f.results:
		assert.Failf(t, "unexpected cycle", "%s", r.CycleId)
	case <-time.After(500 * time.Millisecond):
	}
	assert.Equal(t, 1, f.source.Fetches())
	assert.Equal(t, "idle", f.health(t).State)
}

func TestPollerHealthAfterFailures(t *testing.T) {

	f := newPollerFixture(t)
	portalDown := errors.New("portal down")
	f.source.FailFetches(portalDown, portalDown, portalDown)

	first := f.cycle(t)
	assert.ErrorIs(t, first.Err, portalDown)

	for i := 1; i < UNHEALTHY_AFTER_FAILURES; i++ {
		assert.True(t, f.health(t).Healthy, "healthy after %d failures", i)
		r := f.cycle(t)
		assert.ErrorIs(t, r.Err, portalDown)
		assert.Nil(t, r.Balance)
	}
	assert.False(t, f.health(t).Healthy)
	assert.Nil(t, f.latest(t).Balance)

	r := f.cycle(t)
	assert.True(t, r.Ok())
	assert.True(t, f.health(t).Healthy, "one success resets the failure count")
}
