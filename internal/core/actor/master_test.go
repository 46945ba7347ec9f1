package actor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	adactor "github.com/sebadal-solar/fusionsolar2json/internal/adapter/actor"
	adfusion "github.com/sebadal-solar/fusionsolar2json/internal/adapter/fusionsolar"
	"github.com/sebadal-solar/fusionsolar2json/internal/core/domain"
	"github.com/sebadal-solar/fusionsolar2json/internal/core/service"
	"github.com/sebadal-solar/fusionsolar2json/internal/metrics"
	"github.com/sebadal-solar/fusionsolar2json/internal/util"
	"github.com/sebadal-solar/fusionsolar2json/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMasterActor(t *testing.T) {

	dir := t.TempDir()
	cfg := util.LoadTestConfig()
	cfg.Output.JSONFile = filepath.Join(dir, "datos.json")
	cfg.MQTT.Enable = true
	cfg.MQTT.HADiscoveryEnable = true

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()
	context := as.Root

	source := adfusion.NewTestSource()
	m := metrics.New()
	mqttActors := make(chan *adactor.MQTTActor, 4)

	props := MasterProps(func() *MasterActor {
		return NewMasterActor(cfg, service.NewPowerBalanceReconciler(), m, func() *adactor.TelemetryActor {
			return adactor.NewTelemetryActor(&cfg, source, logger)
		}, func(es *eventstream.EventStream) *adactor.MQTTActor {
			a := adactor.NewTestMQTTActor(&cfg, es, logger)
			mqttActors <- a
			return a
		}, logger)
	})
	pid, err := context.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(t, err)

	// the startup tick runs a first cycle without waiting for the schedule
	assert.Eventually(t, func() bool {
		res, err := context.RequestFuture(pid, domain.GetLatestBalanceRequest{}, time.Second).Result()
		if err != nil {
			return false
		}
		return res.(domain.GetLatestBalanceResponse).Balance != nil
	}, 5*time.Second, 50*time.Millisecond)

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	healthResp, ok := res.(domain.ActorHealthResponse)
	require.True(t, ok)
	assert.True(t, healthResp.Healthy, healthResp.State)

	assert.Eventually(t, func() bool {
		_, err := os.Stat(cfg.Output.JSONFile)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)

	mqttActor := <-mqttActors
	assert.Eventually(t, func() bool {
		return len(mqttActor.Published()) > 0 && len(mqttActor.Discovered()) > 0
	}, 2*time.Second, 20*time.Millisecond)

	series, err := testutil.GatherAndCount(m.Registry, "fusionsolar_poll_cycles_total")
	require.NoError(t, err)
	assert.Equal(t, 1, series, "cycles observed by the metrics subscription")

	require.NoError(t, context.StopFuture(pid).Wait())
	assert.Equal(t, 1, source.Closes(), "telemetry logs out on shutdown")
}
