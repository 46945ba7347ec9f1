package actor

import (
	"fmt"

	"github.com/sebadal-solar/fusionsolar2json/internal/config"
	"github.com/sebadal-solar/fusionsolar2json/internal/core/domain"
	"github.com/sebadal-solar/fusionsolar2json/internal/snapshot"
	"github.com/sebadal-solar/fusionsolar2json/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// WriterActor persists the snapshot of every successful cycle published on
// the event stream.
type WriterActor struct {
	config         *config.Config
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	lastErr        error
	writes         uint
	logger         *zap.Logger
}

type onPollCycleResult struct {
	result domain.PollCycleResult
}

func NewWriterActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *WriterActor {
	return &WriterActor{
		config:      config,
		eventStream: eventStream,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_WRITER, logger),
	}
}

func (state *WriterActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("writer@default started", zap.String("json", state.config.Output.JSONFile), zap.String("html", state.config.Output.HTMLFile))
		self := ctx.Self()
		root := ctx.ActorSystem().Root
		state.eventStreamSub = state.eventStream.SubscribeWithPredicate(func(value any) {
			root.Send(self, onPollCycleResult{result: value.(domain.PollCycleResult)})
		}, func(value any) bool {
			_, ok := value.(domain.PollCycleResult)
			return ok
		})
	case *actor.Stopping, *actor.Restarting:
		state.unsubscribe()
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_WRITER,
			Healthy: state.lastErr == nil,
			State:   "idle",
		})
	case onPollCycleResult:
		if !msg.result.Ok() {
			return
		}
		state.lastErr = state.write(*msg.result.Balance)
		if state.lastErr != nil {
			state.logger.Error("writer@default could not write snapshot", zap.String("cycle", msg.result.CycleId), zap.Error(state.lastErr))
			return
		}
		state.writes++
		state.logger.Debug("writer@default snapshot written", zap.String("cycle", msg.result.CycleId), zap.Uint("writes", state.writes))
	default:
		state.logger.Debug("writer@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *WriterActor) write(pb domain.PowerBalance) error {
	if err := snapshot.WriteJSON(state.config.Output.JSONFile, pb.Snapshot()); err != nil {
		return fmt.Errorf("json snapshot: %w", err)
	}
	if state.config.Output.HTMLFile != "" {
		d := snapshot.NewDashboard(pb, state.config.Poll.RefreshSeconds)
		if err := snapshot.WriteDashboard(state.config.Output.HTMLFile, d); err != nil {
			return fmt.Errorf("html dashboard: %w", err)
		}
	}
	return nil
}

func (state *WriterActor) unsubscribe() {
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
}
