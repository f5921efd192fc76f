package app

import (
	"log/slog"

	"go.aimuz.me/voxtype/gesture"
	"go.aimuz.me/voxtype/internal/dictation"
	"go.aimuz.me/voxtype/internal/reply"
)

type dictator interface {
	State() dictation.State
	HoldStart()
	HoldStop()
}

type replier interface {
	State() reply.State
	Active() bool
	Trigger()
	HoldStart()
	HoldStop()
}

// router hands gestures to the orchestrator that owns them. Both
// orchestrators share the microphone, so a hold belongs to the reply while
// one is in progress and to dictation otherwise. Runs on the loop.
type router struct {
	dictation dictator
	reply     replier
}

func (r *router) handle(ev gesture.Event) {
	slog.Debug("gesture", "event", ev)

	switch ev {
	case gesture.HoldStart:
		switch {
		case r.reply.State() == reply.Ready:
			r.reply.HoldStart()
		case r.reply.Active():
			slog.Debug("hold ignored during reply", "state", r.reply.State())
		default:
			r.dictation.HoldStart()
		}

	case gesture.HoldStop:
		if r.reply.State() == reply.Recording {
			r.reply.HoldStop()
			return
		}
		r.dictation.HoldStop()

	case gesture.SingleShotTrigger:
		if s := r.dictation.State(); s != dictation.Idle {
			slog.Debug("reply trigger ignored during dictation", "state", s)
			return
		}
		r.reply.Trigger()
	}
}
