package actor

import (
	"testing"
	"time"

	adfusion "github.com/sebadal-solar/fusionsolar2json/internal/adapter/fusionsolar"
	"github.com/sebadal-solar/fusionsolar2json/internal/core/domain"
	"github.com/sebadal-solar/fusionsolar2json/internal/util"
	"github.com/sebadal-solar/fusionsolar2json/internal/util/actorutil"
	"github.com/sebadal-solar/fusionsolar2json/pkg/fusionsolar"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func spawnTelemetryActor(t *testing.T, keepSession bool, timeoutSeconds uint, source *adfusion.TestSource) (*actor.RootContext, *actor.PID) {
	cfg := util.LoadTestConfig()
	cfg.Fusion.KeepSession = keepSession
	cfg.Poll.TimeoutSeconds = timeoutSeconds

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	t.Cleanup(as.Shutdown)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewTelemetryActor(&cfg, source, logger)
	})
	return as.Root, as.Root.Spawn(props)
}

func requestTelemetry(t *testing.T, root *actor.RootContext, pid *actor.PID, cycleId string) domain.GetTelemetryResponse {
	res, err := root.RequestFuture(pid, domain.GetTelemetryRequest{CycleId: cycleId}, 5*time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(domain.GetTelemetryResponse)
	require.True(t, ok)
	assert.Equal(t, cycleId, resp.CycleId)
	return resp
}

func TestTelemetryActorReusesSession(t *testing.T) {

	source := adfusion.NewTestSource()
	root, pid := spawnTelemetryActor(t, true, 5, source)

	for _, id := range []string{"c1", "c2", "c3"} {
		resp := requestTelemetry(t, root, pid, id)
		require.False(t, resp.HasResponseError())
		require.NotNil(t, resp.Telemetry)
		assert.Equal(t, "El Sebadal", resp.Telemetry.StationName)
	}

	assert.Equal(t, 1, source.Logins())
	assert.Equal(t, 3, source.Fetches())
	assert.Equal(t, 0, source.Closes())

	require.NoError(t, root.StopFuture(pid).Wait())
	assert.Equal(t, 1, source.Closes(), "logout on stop")
}

func TestTelemetryActorDropsSessionOnError(t *testing.T) {

	source := adfusion.NewTestSource()
	source.FailFetches(fusionsolar.ErrSessionExpired)
	root, pid := spawnTelemetryActor(t, true, 5, source)

	resp := requestTelemetry(t, root, pid, "c1")
	assert.ErrorIs(t, resp.GetResponseError(), fusionsolar.ErrSessionExpired)
	assert.Nil(t, resp.Telemetry)
	assert.Eventually(t, func() bool { return source.Closes() == 1 }, time.Second, 10*time.Millisecond)

	resp = requestTelemetry(t, root, pid, "c2")
	assert.False(t, resp.HasResponseError())
	assert.Equal(t, 2, source.Logins(), "fresh login after a failure")
}

func TestTelemetryActorKeepsSessionWithoutPlants(t *testing.T) {

	source := adfusion.NewTestSource()
	source.FailFetches(domain.ErrNoPlants)
	root, pid := spawnTelemetryActor(t, true, 5, source)

	resp := requestTelemetry(t, root, pid, "c1")
	assert.ErrorIs(t, resp.GetResponseError(), domain.ErrNoPlants)

	resp = requestTelemetry(t, root, pid, "c2")
	assert.False(t, resp.HasResponseError())
	assert.Equal(t, 1, source.Logins())
	assert.Equal(t, 0, source.Closes())
}

func TestTelemetryActorLogoutEveryCycle(t *testing.T) {

	source := adfusion.NewTestSource()
	root, pid := spawnTelemetryActor(t, false, 5, source)

	requestTelemetry(t, root, pid, "c1")
	requestTelemetry(t, root, pid, "c2")

	assert.Equal(t, 2, source.Logins())
	assert.Eventually(t, func() bool { return source.Closes() == 2 }, time.Second, 10*time.Millisecond)
}

func TestTelemetryActorLoginError(t *testing.T) {

	source := adfusion.NewTestSource()
	source.LoginErr = fusionsolar.ErrBadCredentials
	root, pid := spawnTelemetryActor(t, true, 5, source)

	resp := requestTelemetry(t, root, pid, "c1")
	assert.ErrorIs(t, resp.GetResponseError(), fusionsolar.ErrBadCredentials)
	assert.Equal(t, 0, source.Fetches())
}

func TestTelemetryActorTimeout(t *testing.T) {

	source := adfusion.NewTestSource()
	source.FetchDelay = 3 * time.Second
	root, pid := spawnTelemetryActor(t, true, 1, source)

	start := time.Now()
	resp := requestTelemetry(t, root, pid, "c1")
	assert.True(t, resp.HasResponseError())
	assert.Less(t, time.Since(start), 3*time.Second)

	res, err := root.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)
	health := res.(domain.ActorHealthResponse)
	assert.True(t, health.Healthy)
	assert.Equal(t, domain.ACTOR_ID_TELEMETRY, health.Id)
}

func TestTelemetryActorTimeoutClosesFreshSession(t *testing.T) {

	source := adfusion.NewTestSource()
	source.FetchDelay = 3 * time.Second
	root, pid := spawnTelemetryActor(t, true, 1, source)

	resp := requestTelemetry(t, root, pid, "c1")
	assert.True(t, resp.HasResponseError())
	assert.Equal(t, 1, source.Logins())

	// whichever side of the timeout wins, the session opened for c1 is closed once
	assert.Eventually(t, func() bool { return source.Closes() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool { return source.Closes() > 1 }, 300*time.Millisecond, 20*time.Millisecond)
}
