package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/sebadal-solar/fusionsolar2json/internal/config"
	"github.com/sebadal-solar/fusionsolar2json/internal/core/domain"
	"github.com/sebadal-solar/fusionsolar2json/internal/core/events"
	"github.com/sebadal-solar/fusionsolar2json/internal/core/port"
	. "github.com/sebadal-solar/fusionsolar2json/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	UNHEALTHY_AFTER_FAILURES = 3
	// extra time the poller waits for the telemetry actor beyond the fetch timeout
	TELEMETRY_REPLY_GRACE = 2 * time.Second
)

var ErrNoTelemetry = errors.New("telemetry response without data")

// PollerActor runs one poll cycle per PollTick. Cycles never overlap: ticks
// received while a cycle is in flight are dropped.
type PollerActor struct {
	ActorWithStates
	config         *config.Config
	telemetryActor *actor.PID
	reconciler     port.PowerBalanceReconciler
	eventStream    *eventstream.EventStream
	now            func() time.Time

	latest              *domain.PowerBalance
	lastCycle           *domain.PollCycleResult
	consecutiveFailures uint
	droppedTicks        uint

	logger *zap.Logger
}

func NewPollerActor(config *config.Config, telemetryActor *actor.PID, reconciler port.PowerBalanceReconciler,
	eventStream *eventstream.EventStream, logger *zap.Logger) *PollerActor {
	act := &PollerActor{
		config:         config,
		telemetryActor: telemetryActor,
		reconciler:     reconciler,
		eventStream:    eventStream,
		now:            time.Now,
		logger:         ActorLogger(domain.ACTOR_ID_POLLER, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(PollerIdleState{actor: act})
	return act
}

func (state *PollerActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

func (state *PollerActor) healthy() bool {
	return state.consecutiveFailures < UNHEALTHY_AFTER_FAILURES
}

// handleQuery answers the requests both states serve the same way.
func (state *PollerActor) handleQuery(ctx actor.Context, stateName string) bool {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_POLLER,
			Healthy: state.healthy(),
			State:   stateName,
		})
	case domain.GetLatestBalanceRequest:
		ForRequest(msg).Respond(ctx, domain.GetLatestBalanceResponse{
			Balance:   state.latest,
			LastCycle: state.lastCycle,
		})
	default:
		return false
	}
	return true
}

func (state *PollerActor) startCycle(ctx actor.Context) {
	cycleId := uuid.NewString()
	timeout := state.config.Poll.Timeout() + TELEMETRY_REPLY_GRACE
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.telemetryActor, domain.GetTelemetryRequest{
		CycleId:    cycleId,
		PlantIndex: state.config.Poll.PlantIndex,
	}, timeout), func(err error) any {
		return domain.GetTelemetryResponse{
			ActorResponseMixIn: domain.FailedResponse(err),
			CycleId:            cycleId,
		}
	})
	state.logger.Debug("poller@idle cycle started", zap.String("cycle", cycleId))
	state.Become(PollerPollingState{
		actor:     state,
		cycleId:   cycleId,
		startedAt: state.now(),
	})
}

func (state *PollerActor) finishCycle(cycleId string, startedAt time.Time, resp domain.GetTelemetryResponse) {
	result := domain.PollCycleResult{
		CycleId:   cycleId,
		StartedAt: startedAt,
		Err:       resp.GetResponseError(),
	}
	if result.Err == nil && resp.Telemetry == nil {
		result.Err = ErrNoTelemetry
	}
	if result.Err == nil {
		pb := state.reconciler.Reconcile(*resp.Telemetry, state.now())
		result.Balance = &pb
	}
	result.Duration = state.now().Sub(startedAt)
	state.lastCycle = &result

	if result.Ok() {
		state.latest = result.Balance
		state.consecutiveFailures = 0
		state.logger.Info("poll cycle done",
			zap.String("cycle", cycleId),
			zap.Duration("duration", result.Duration),
			zap.Float64("solar_kw", result.Balance.SolarKw),
			zap.Float64("load_kw", result.Balance.LoadKw),
			zap.Float64("grid_import_kw", result.Balance.GridImportKw))
	} else {
		state.consecutiveFailures++
		logFn := state.logger.Warn
		if !state.healthy() {
			logFn = state.logger.Error
		}
		logFn("poll cycle failed",
			zap.String("cycle", cycleId),
			zap.Uint("consecutive_failures", state.consecutiveFailures),
			zap.Error(result.Err))
	}

	state.eventStream.Publish(result)
	if result.Ok() {
		for _, ev := range events.BalanceToUpdateEvents(*result.Balance) {
			state.eventStream.Publish(ev)
		}
	}
}

// Idle state

type PollerIdleState struct {
	ActorState
	actor *PollerActor
}

func (state PollerIdleState) Name() string {
	return "idle"
}

func (state PollerIdleState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("poller@idle started", zap.Duration("interval", state.actor.config.Poll.Interval()))
	case domain.PollTick:
		state.actor.startCycle(ctx)
	case domain.GetTelemetryResponse:
		state.actor.logger.Debug("poller@idle late telemetry response dropped", zap.String("cycle", msg.CycleId))
	default:
		if !state.actor.handleQuery(ctx, state.Name()) {
			state.actor.logger.Debug("poller@idle unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
		}
	}
}

// Polling state

type PollerPollingState struct {
	ActorState
	actor     *PollerActor
	cycleId   string
	startedAt time.Time
}

func (state PollerPollingState) Name() string {
	return "polling"
}

func (state PollerPollingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.PollTick:
		state.actor.droppedTicks++
		state.actor.logger.Debug("poller@polling tick dropped, cycle in flight", zap.String("cycle", state.cycleId), zap.Uint("dropped", state.actor.droppedTicks))
	case domain.GetTelemetryResponse:
		if msg.CycleId != state.cycleId {
			state.actor.logger.Debug("poller@polling stale telemetry response dropped", zap.String("cycle", msg.CycleId))
			return
		}
		state.actor.finishCycle(state.cycleId, state.startedAt, msg)
		state.actor.Become(PollerIdleState{actor: state.actor})
	default:
		if !state.actor.handleQuery(ctx, state.Name()) {
			state.actor.logger.Debug("poller@polling unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
		}
	}
}
