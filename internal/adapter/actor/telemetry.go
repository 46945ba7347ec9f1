package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sebadal-solar/fusionsolar2json/internal/config"
	"github.com/sebadal-solar/fusionsolar2json/internal/core/domain"
	"github.com/sebadal-solar/fusionsolar2json/internal/core/port"
	. "github.com/sebadal-solar/fusionsolar2json/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const (
	SESSION_CLOSE_TIMEOUT = 5 * time.Second
)

// TelemetryActor owns the portal session. Requests are served one at a time,
// the ones arriving during a fetch are stashed.
type TelemetryActor struct {
	ActorWithStates
	config  *config.Config
	source  port.TelemetrySource
	session port.TelemetrySession
	stash   *Stash
	logger  *zap.Logger
}

type telemetryFetched struct {
	replyTo   *actor.PID
	cycleId   string
	session   port.TelemetrySession
	telemetry *domain.RawTelemetry
	err       error
}

func NewTelemetryActor(config *config.Config, source port.TelemetrySource, logger *zap.Logger) *TelemetryActor {
	act := &TelemetryActor{
		config: config,
		source: source,
		stash:  &Stash{Limit: 4},
		logger: ActorLogger(domain.ACTOR_ID_TELEMETRY, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(TelemetryIdleState{actor: act})
	return act
}

func (state *TelemetryActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

func (state *TelemetryActor) health(ctx actor.Context, stateName string) {
	ctx.Respond(domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_TELEMETRY,
		Healthy: true,
		State:   stateName,
	})
}

func (state *TelemetryActor) fetch(ctx actor.Context, msg domain.GetTelemetryRequest) {
	session := state.session
	source := state.source
	plantIndex := msg.PlantIndex
	replyTo := ForRequest(msg).ReplyTo(ctx)
	cycleId := msg.CycleId
	logger := state.logger

	NewBackgroundTaskCtx(ctx, func(c context.Context) (*telemetryFetched, error) {
		res := &telemetryFetched{replyTo: replyTo, cycleId: cycleId, session: session}
		if res.session == nil {
			s, err := source.Login(c)
			if err != nil {
				res.err = fmt.Errorf("login: %w", err)
				return res, nil
			}
			res.session = s
		}
		res.telemetry, res.err = res.session.FetchTelemetry(c, plantIndex)
		if c.Err() != nil && session == nil {
			// the result may be dropped by the timeout, nobody else can close this session
			closeCtx, cancel := context.WithTimeout(context.Background(), SESSION_CLOSE_TIMEOUT)
			defer cancel()
			if err := res.session.Close(closeCtx); err != nil {
				logger.Debug("telemetry: expired session close failed", zap.String("cycle", cycleId), zap.Error(err))
			}
			res.session = nil
		}
		return res, nil
	}).WithTimeout(state.config.Poll.Timeout()).Recover(func(err error) telemetryFetched {
		// a session opened by the timed out task is closed by the task itself
		return telemetryFetched{replyTo: replyTo, cycleId: cycleId, session: session, err: err}
	}).PipeTo(ctx.Self())
}

func (state *TelemetryActor) closeSession(ctx actor.Context) {
	session := state.session
	state.session = nil
	if session == nil {
		return
	}
	logger := state.logger
	go NewBackgroundTaskCtx(ctx, func(c context.Context) (*struct{}, error) {
		return &struct{}{}, session.Close(c)
	}).WithTimeout(SESSION_CLOSE_TIMEOUT).OnError(func(err error) {
		logger.Debug("telemetry: session close failed", zap.Error(err))
	}).Run()
}

func (state *TelemetryActor) stop() {
	if state.session == nil {
		return
	}
	c, cancel := context.WithTimeout(context.Background(), SESSION_CLOSE_TIMEOUT)
	defer cancel()
	if err := state.session.Close(c); err != nil {
		state.logger.Warn("telemetry: logout failed", zap.Error(err))
	}
	state.session = nil
}

// Idle state

type TelemetryIdleState struct {
	ActorState
	actor *TelemetryActor
}

func (state TelemetryIdleState) Name() string {
	return "idle"
}

func (state TelemetryIdleState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("telemetry@idle started")
	case *actor.Stopping, *actor.Restarting:
		state.actor.stop()
	case domain.ActorHealthRequest:
		state.actor.health(ctx, state.Name())
	case domain.GetTelemetryRequest:
		state.actor.logger.Debug("telemetry@idle GetTelemetryRequest", zap.String("cycle", msg.CycleId), zap.Bool("session", state.actor.session != nil))
		state.actor.fetch(ctx, msg)
		state.actor.Become(TelemetryFetchingState{actor: state.actor})
	default:
		state.actor.logger.Debug("telemetry@idle unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Fetching state

type TelemetryFetchingState struct {
	ActorState
	actor *TelemetryActor
}

func (state TelemetryFetchingState) Name() string {
	return "fetching"
}

func (state TelemetryFetchingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Stopping, *actor.Restarting:
		state.actor.stop()
	case domain.ActorHealthRequest:
		state.actor.health(ctx, state.Name())
	case telemetryFetched:
		act := state.actor
		act.session = msg.session
		// an empty account is not a session problem
		keep := act.config.Fusion.KeepSession
		if msg.err != nil {
			if errors.Is(msg.err, domain.ErrNoPlants) {
				act.logger.Warn("telemetry@fetching no plants in account", zap.String("cycle", msg.cycleId))
			} else {
				act.logger.Error("telemetry@fetching failed, dropping session", zap.String("cycle", msg.cycleId), zap.Error(msg.err))
				keep = false
			}
		}
		if !keep {
			act.closeSession(ctx)
		}

		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, domain.GetTelemetryResponse{
				ActorResponseMixIn: domain.FailedResponse(msg.err),
				CycleId:            msg.cycleId,
				Telemetry:          msg.telemetry,
			})
		}
		act.Become(TelemetryIdleState{actor: act})
		act.stash.UnstashOldest(ctx)
	default:
		state.actor.logger.Debug("telemetry@fetching stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}
