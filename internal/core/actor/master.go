package actor

import (
	"context"
	"fmt"
	"time"

	adactor "github.com/sebadal-solar/fusionsolar2json/internal/adapter/actor"
	"github.com/sebadal-solar/fusionsolar2json/internal/config"
	"github.com/sebadal-solar/fusionsolar2json/internal/core/domain"
	"github.com/sebadal-solar/fusionsolar2json/internal/core/port"
	"github.com/sebadal-solar/fusionsolar2json/internal/metrics"
	. "github.com/sebadal-solar/fusionsolar2json/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

const (
	POLL_JOB_KEY         = "poll"
	HEALTH_CHECK_TIMEOUT = 1 * time.Second
)

type TelemetryActorProvider func() *adactor.TelemetryActor

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

// MasterActor spawns and supervises the pipeline actors, owns the event
// stream and drives the poll schedule.
type MasterActor struct {
	ActorWithStates
	config     config.Config
	stash      *Stash
	reconciler port.PowerBalanceReconciler
	metrics    *metrics.Metrics
	scheduler  quartz.Scheduler

	eventStream            *eventstream.EventStream
	metricsSub             *eventstream.Subscription
	telemetryActor         *actor.PID
	pollerActor            *actor.PID
	writerActor            *actor.PID
	mqttActor              *actor.PID
	telemetryActorProvider TelemetryActorProvider
	mqttActorProvider      MQTTActorProvider

	logger *zap.Logger
}

func NewMasterActor(config config.Config, reconciler port.PowerBalanceReconciler, m *metrics.Metrics,
	telemetryActorProvider TelemetryActorProvider, mqttActorProvider MQTTActorProvider, logger *zap.Logger) *MasterActor {
	act := &MasterActor{
		config:                 config,
		stash:                  &Stash{Limit: 32},
		reconciler:             reconciler,
		metrics:                m,
		logger:                 ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:            &eventstream.EventStream{},
		telemetryActorProvider: telemetryActorProvider,
		mqttActorProvider:      mqttActorProvider,
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(MasterStartingState{actor: act})
	return act
}

// MasterProps builds the master with the strategy applied to its children:
// a failing child (MQTT broker gone, panicking actor) is restarted with
// exponential backoff.
func MasterProps(producer func() *MasterActor) *actor.Props {
	return actor.PropsFromProducer(func() actor.Actor {
		return producer()
	}, actor.WithSupervisor(actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)))
}

func (state *MasterActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

func (state *MasterActor) children() []*actor.PID {
	pids := []*actor.PID{state.telemetryActor, state.pollerActor, state.writerActor}
	if state.mqttActor != nil {
		pids = append(pids, state.mqttActor)
	}
	return pids
}

func (state *MasterActor) startChildren(ctx actor.Context) error {
	var err error

	telemetryProps := actor.PropsFromProducer(func() actor.Actor {
		return state.telemetryActorProvider()
	})
	if state.telemetryActor, err = ctx.SpawnNamed(telemetryProps, domain.ACTOR_ID_TELEMETRY); err != nil {
		return err
	}

	writerProps := actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewWriterActor(&state.config, state.eventStream, state.logger)
	})
	if state.writerActor, err = ctx.SpawnNamed(writerProps, domain.ACTOR_ID_WRITER); err != nil {
		return err
	}

	if state.config.MQTT.Enable && state.mqttActorProvider != nil {
		mqttProps := actor.PropsFromProducer(func() actor.Actor {
			return state.mqttActorProvider(state.eventStream)
		})
		if state.mqttActor, err = ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT); err != nil {
			return err
		}

		if state.config.MQTT.HADiscoveryEnable {
			discoveryProps := actor.PropsFromProducer(func() actor.Actor {
				return NewHADiscoveryActor(&state.config, state.mqttActor, state.eventStream, state.logger)
			})
			if _, err = ctx.SpawnNamed(discoveryProps, domain.ACTOR_ID_DISCOVERY); err != nil {
				return err
			}
		}
	}

	// subscribers first, the poller publishes as soon as it gets a tick
	pollerProps := actor.PropsFromProducer(func() actor.Actor {
		return NewPollerActor(&state.config, state.telemetryActor, state.reconciler, state.eventStream, state.logger)
	})
	if state.pollerActor, err = ctx.SpawnNamed(pollerProps, domain.ACTOR_ID_POLLER); err != nil {
		return err
	}
	return nil
}

func (state *MasterActor) startSchedule(ctx actor.Context) error {
	sched, err := quartz.NewStdScheduler()
	if err != nil {
		return err
	}
	root := ctx.ActorSystem().Root
	poller := state.pollerActor
	pollJob := job.NewFunctionJob(func(_ context.Context) (bool, error) {
		root.Send(poller, domain.PollTick{})
		return true, nil
	})
	sched.Start(context.Background())
	err = sched.ScheduleJob(quartz.NewJobDetail(pollJob, quartz.NewJobKey(POLL_JOB_KEY)),
		quartz.NewSimpleTrigger(state.config.Poll.Interval()))
	if err != nil {
		sched.Stop()
		return err
	}
	state.scheduler = sched
	return nil
}

func (state *MasterActor) stop() {
	if state.scheduler != nil {
		state.scheduler.Stop()
		state.scheduler = nil
	}
	if state.metricsSub != nil {
		state.eventStream.Unsubscribe(state.metricsSub)
		state.metricsSub = nil
	}
}

// Starting state

type MasterStartingState struct {
	ActorState
	actor *MasterActor
}

func (state MasterStartingState) Name() string {
	return "starting"
}

func (state MasterStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("master@starting started")

		if m := state.actor.metrics; m != nil {
			state.actor.metricsSub = state.actor.eventStream.SubscribeWithPredicate(func(value any) {
				m.Observe(value.(domain.PollCycleResult))
			}, func(value any) bool {
				_, ok := value.(domain.PollCycleResult)
				return ok
			})
		}

		if err := state.actor.startChildren(ctx); err != nil {
			panic(err)
		}
		if err := state.actor.startSchedule(ctx); err != nil {
			panic(err)
		}
		// first cycle right away, the schedule fires after one interval
		ctx.Send(state.actor.pollerActor, domain.PollTick{})

		state.actor.Become(MasterDefaultState{actor: state.actor})
		state.actor.stash.UnstashAll(ctx)
	default:
		state.actor.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Default state

type MasterDefaultState struct {
	ActorState
	actor *MasterActor
}

func (state MasterDefaultState) Name() string {
	return "default"
}

func (state MasterDefaultState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Stopping, *actor.Restarting:
		state.actor.stop()
	case domain.ActorHealthRequest:
		state.actor.logger.Debug("master@default ActorHealthRequest")
		check := &healthCheckResult{
			respondTo: ctx.Sender(),
			expected:  len(state.actor.children()),
			unhealthy: map[string]string{},
		}
		for _, pid := range state.actor.children() {
			id := pid.Id
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, HEALTH_CHECK_TIMEOUT/2), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      id,
					Healthy: false,
					State:   err.Error(),
				}
			})
		}
		ctx.SetReceiveTimeout(HEALTH_CHECK_TIMEOUT)
		state.actor.BecomeStacked(MasterHealthCheckState{actor: state.actor, check: check})
	case domain.GetLatestBalanceRequest:
		ctx.Forward(state.actor.pollerActor)
	case domain.PollTick:
		// manual trigger
		ctx.Forward(state.actor.pollerActor)
	case *actor.Terminated:
		state.actor.logger.Error("master@default child terminated", zap.String("pid", msg.Who.Id))
	default:
		state.actor.logger.Debug("master@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Health check state

type MasterHealthCheckState struct {
	ActorState
	actor *MasterActor
	check *healthCheckResult
}

func (state MasterHealthCheckState) Name() string {
	return "healthcheck"
}

func (state MasterHealthCheckState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Stopping, *actor.Restarting:
		state.actor.stop()
	case *actor.ReceiveTimeout:
		// children that did not answer are not healthy
		state.done(ctx)
	case domain.ActorHealthResponse:
		state.actor.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.check.received++
		if !msg.Healthy {
			state.check.unhealthy[msg.Id] = msg.State
		}
		if state.check.allReceived() {
			state.done(ctx)
		}
	default:
		state.actor.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

func (state MasterHealthCheckState) done(ctx actor.Context) {
	ctx.CancelReceiveTimeout()
	state.check.respond(ctx)
	state.actor.UnbecomeStacked()
	state.actor.stash.UnstashAll(ctx)
}

type healthCheckResult struct {
	expected  int
	received  int
	unhealthy map[string]string
	respondTo *actor.PID
}

func (r *healthCheckResult) allReceived() bool {
	return r.received >= r.expected
}

func (r *healthCheckResult) healthy() bool {
	return r.allReceived() && len(r.unhealthy) == 0
}

func (r *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: r.healthy(),
	}
	if !resp.Healthy {
		resp.State = fmt.Sprintf("received %d/%d, unhealthy: %v", r.received, r.expected, r.unhealthy)
	}
	if r.respondTo != nil {
		ctx.Send(r.respondTo, resp)
	}
}
