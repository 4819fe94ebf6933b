package app

import (
	"context"
	"log"
	"sync"
	"time"

	"rostrum/api/internal/resolution"
	"rostrum/api/internal/store"
	"rostrum/api/internal/subscription"
	"rostrum/api/internal/timer"
)

// Event is one server-push frame. Type names the stream slot; Data is the
// full replacement snapshot for that slot, never a diff.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type committeeEvent struct {
	IsEditingLocked bool        `json:"isEditingLocked"`
	Timer           timer.Timer `json:"timer"`
}

type timerEvent struct {
	Remaining int  `json:"remaining"`
	IsRunning bool `json:"isRunning"`
}

type blocEvent struct {
	Exists bool `json:"exists"`
	ResolutionView
}

// watcher fans one session's subscriptions into a single event channel.
// Slot callbacks and the tick loop all emit through the same guarded send, so
// the channel is closed exactly once and never written after close.
type watcher struct {
	mu     sync.Mutex
	closed bool
	events chan Event

	timerMu sync.Mutex
	latest  timer.Timer
}

func (w *watcher) emit(e Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.events <- e:
	default:
		// Snapshots are full replacements, so a dropped frame is repaired by
		// the next one. A slow consumer must not stall the store callbacks.
		log.Printf("watch: dropping %s event, slow consumer", e.Type)
	}
}

func (w *watcher) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.events)
}

func (w *watcher) setTimer(t timer.Timer) {
	w.timerMu.Lock()
	w.latest = t
	w.timerMu.Unlock()
}

func (w *watcher) currentTimer() timer.Timer {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	return w.latest
}

// Watch subscribes the session to its committee, the bloc list, and (when a
// bloc is active) the bloc document and its comments. The returned channel
// carries full-snapshot events until ctx is cancelled, then closes. Remaining
// timer seconds are computed locally every second from the persisted triple;
// on expiry the idle(0) transition is written back through the store.
func (s *Service) Watch(ctx context.Context, sess Session) (<-chan Event, error) {
	if sess.Committee == "" {
		return nil, errNoActiveCommittee()
	}

	w := &watcher{events: make(chan Event, 64)}
	manager := subscription.NewManager()

	onError := func(err error) {
		log.Printf("watch: subscription error (committee=%s): %v", sess.Committee, err)
	}

	cancel, err := s.store.SubscribeCommittee(sess.Committee, func(record store.Committee, exists bool) {
		if !exists {
			return
		}
		w.setTimer(record.Timer)
		w.emit(Event{Type: "committee", Data: committeeEvent{
			IsEditingLocked: record.IsEditingLocked,
			Timer:           record.Timer,
		}})
	}, onError)
	if err != nil {
		return nil, s.storeErr("subscribe committee", err)
	}
	manager.Replace(subscription.SlotCommittee, cancel)

	cancel, err = s.store.SubscribeBlocList(sess.Committee, func(summaries []store.BlocSummary) {
		w.emit(Event{Type: "blocList", Data: summaries})
	}, onError)
	if err != nil {
		manager.CancelAll()
		return nil, s.storeErr("subscribe bloc list", err)
	}
	manager.Replace(subscription.SlotBlocList, cancel)

	if name := sess.ActiveBloc(); name != "" {
		cancel, err = s.store.SubscribeBloc(sess.Committee, name, func(bloc store.Bloc, exists bool) {
			if !exists {
				w.emit(Event{Type: "bloc", Data: blocEvent{Exists: false}})
				return
			}
			w.emit(Event{Type: "bloc", Data: blocEvent{
				Exists:         true,
				ResolutionView: s.resolutionView(name, bloc),
			}})
		}, onError)
		if err != nil {
			manager.CancelAll()
			return nil, s.storeErr("subscribe bloc", err)
		}
		manager.Replace(subscription.SlotBloc, cancel)

		cancel, err = s.store.SubscribeComments(sess.Committee, name, func(comments []store.Comment) {
			w.emit(Event{Type: "comments", Data: comments})
		}, onError)
		if err != nil {
			manager.CancelAll()
			return nil, s.storeErr("subscribe comments", err)
		}
		manager.Replace(subscription.SlotComments, cancel)
	}

	go s.tickTimer(ctx, sess.Committee, w)

	go func() {
		<-ctx.Done()
		manager.CancelAll()
		w.close()
	}()

	return w.events, nil
}

// tickTimer pushes a timer frame every second while the stream is open. The
// frame is computed locally; the only write is the expiry transition, which
// the store re-checks transactionally so racing streams are harmless.
func (s *Service) tickTimer(ctx context.Context, committee string, w *watcher) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t := w.currentTimer()
			w.emit(Event{Type: "timer", Data: timerEvent{
				Remaining: timer.Remaining(t, now),
				IsRunning: t.IsRunning,
			}})
			if timer.Expired(t, now) {
				if _, err := s.store.ExpireTimer(ctx, committee, now); err != nil {
					log.Printf("watch: expire timer (committee=%s): %v", committee, err)
				}
			}
		}
	}
}

func (s *Service) resolutionView(name string, bloc store.Bloc) ResolutionView {
	return ResolutionView{
		Bloc:       name,
		Resolution: bloc.Resolution,
		Rendered:   resolution.Render(bloc.Resolution),
		Members:    bloc.Members,
	}
}
