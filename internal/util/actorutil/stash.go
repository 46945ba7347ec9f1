package actorutil

import (
	"github.com/asynkron/protoactor-go/actor"
)

// Stash keeps messages an actor cannot handle in its current state, to be
// replayed with their original sender once it can. A stash with a positive
// Limit drops its oldest message when full.
type Stash struct {
	Limit int

	stash   []stashElem
	dropped uint64
}

type stashElem struct {
	msg    any
	sender *actor.PID
}

func (stash *Stash) Stash(ctx actor.Context, msg any) {
	if stash.Limit > 0 && len(stash.stash) >= stash.Limit {
		stash.stash = stash.stash[1:]
		stash.dropped++
	}
	stash.stash = append(stash.stash, stashElem{
		msg:    msg,
		sender: ctx.Sender(),
	})
}

func (stash *Stash) UnstashAll(ctx actor.Context) {
	for _, elem := range stash.stash {
		ctx.RequestWithCustomSender(ctx.Self(), elem.msg, elem.sender)
	}
	stash.stash = nil
}

func (stash *Stash) UnstashOldest(ctx actor.Context) {
	if len(stash.stash) > 0 {
		first := stash.stash[0]
		ctx.RequestWithCustomSender(ctx.Self(), first.msg, first.sender)
		stash.stash = stash.stash[1:]
	}
}

func (stash *Stash) Len() int {
	return len(stash.stash)
}

// Dropped counts the messages discarded because the stash was full.
func (stash *Stash) Dropped() uint64 {
	return stash.dropped
}
