// Package store is the typed boundary over the generic document store. It
// decodes and validates raw documents into Committee, Bloc and Comment
// records, so nothing above it ever handles untyped maps.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"rostrum/api/internal/docstore"
	"rostrum/api/internal/resolution"
	"rostrum/api/internal/timer"
	"rostrum/api/internal/util"
)

var (
	ErrNotFound   = docstore.ErrNotFound
	ErrBlocExists = errors.New("bloc name already exists")
)

type Store struct {
	docs docstore.Store
}

func New(docs docstore.Store) *Store {
	return &Store{docs: docs}
}

func CommitteePath(committee string) string {
	return "committees/" + committee
}

func BlocPath(committee, bloc string) string {
	return CommitteePath(committee) + "/blocs/" + bloc
}

func BlocsPrefix(committee string) string {
	return CommitteePath(committee) + "/blocs"
}

func CommentPath(committee, bloc, id string) string {
	return BlocPath(committee, bloc) + "/comments/" + id
}

func CommentsPrefix(committee, bloc string) string {
	return BlocPath(committee, bloc) + "/comments"
}

// EnsureCommittee lazily creates the committee record on first access. The
// merge write means a concurrent initializer cannot clobber fields that
// appeared in between.
func (s *Store) EnsureCommittee(ctx context.Context, committee string) error {
	snap, err := s.docs.Get(ctx, CommitteePath(committee))
	if err != nil {
		return err
	}
	if snap.Exists {
		return nil
	}
	initial := Committee{Timer: timer.Timer{}}
	return s.docs.Set(ctx, CommitteePath(committee), initial, true)
}

func (s *Store) GetCommittee(ctx context.Context, committee string) (Committee, error) {
	snap, err := s.docs.Get(ctx, CommitteePath(committee))
	if err != nil {
		return Committee{}, err
	}
	return decodeCommittee(snap)
}

func (s *Store) SetEditingLocked(ctx context.Context, committee string, locked bool) error {
	return s.docs.Update(ctx, CommitteePath(committee), map[string]any{
		"isEditingLocked": locked,
	})
}

func (s *Store) PutTimer(ctx context.Context, committee string, t timer.Timer) error {
	return s.docs.Update(ctx, CommitteePath(committee), map[string]any{
		"timer": t,
	})
}

func (s *Store) ServerTime(ctx context.Context) (time.Time, error) {
	return s.docs.ServerTime(ctx)
}

// ExpireTimer writes the idle(0) transition for a timer that has run out. The
// re-check inside the transaction makes racing observers harmless: only the
// first write changes anything, and a timer restarted in between is left
// alone. Returns whether this call performed the transition.
func (s *Store) ExpireTimer(ctx context.Context, committee string, now time.Time) (bool, error) {
	expired := false
	err := s.docs.RunTransaction(ctx, CommitteePath(committee), func(tx docstore.Tx) error {
		snap, err := tx.Get()
		if err != nil {
			return err
		}
		if !snap.Exists {
			return nil
		}
		record, err := decodeCommittee(snap)
		if err != nil {
			return err
		}
		if !timer.Expired(record.Timer, now) {
			return nil
		}
		expired = true
		return tx.Update(map[string]any{"timer": timer.Reset()})
	})
	if err != nil {
		return false, err
	}
	return expired, nil
}

// CreateBloc initializes a bloc with empty membership and a blank
// resolution. The existence check is a plain read immediately before the
// write: bloc creation is a low-frequency action, not a hot path needing
// transactional exclusivity.
func (s *Store) CreateBloc(ctx context.Context, committee, name, password string) error {
	snap, err := s.docs.Get(ctx, BlocPath(committee, name))
	if err != nil {
		return err
	}
	if snap.Exists {
		return ErrBlocExists
	}
	bloc := Bloc{
		Password:   password,
		Members:    []string{},
		Resolution: resolution.Blank(),
	}
	return s.docs.Set(ctx, BlocPath(committee, name), bloc, false)
}

func (s *Store) GetBloc(ctx context.Context, committee, name string) (Bloc, error) {
	snap, err := s.docs.Get(ctx, BlocPath(committee, name))
	if err != nil {
		return Bloc{}, err
	}
	if !snap.Exists {
		return Bloc{}, fmt.Errorf("bloc %s: %w", name, ErrNotFound)
	}
	return decodeBloc(snap)
}

// AddMember records membership idempotently: joining twice leaves a single
// entry.
func (s *Store) AddMember(ctx context.Context, committee, name, userID string) error {
	return s.docs.AppendToSet(ctx, BlocPath(committee, name), "members", userID)
}

// AppendPreambulatory appends an already-formatted preambulatory clause.
func (s *Store) AppendPreambulatory(ctx context.Context, committee, name, formatted string) error {
	return s.docs.AppendToSet(ctx, BlocPath(committee, name), "resolution.preambulatoryClauses", formatted)
}

// AppendOperative numbers and appends an operative clause inside a single
// transaction: the number is one plus the list length at the atomic read, so
// concurrent inserters get gap-free, collision-free numbering. Returns the
// assigned number.
func (s *Store) AppendOperative(ctx context.Context, committee, name, clause string) (int, error) {
	assigned := 0
	err := s.docs.RunTransaction(ctx, BlocPath(committee, name), func(tx docstore.Tx) error {
		snap, err := tx.Get()
		if err != nil {
			return err
		}
		if !snap.Exists {
			return fmt.Errorf("bloc %s: %w", name, ErrNotFound)
		}
		bloc, err := decodeBloc(snap)
		if err != nil {
			return err
		}
		assigned = len(bloc.Resolution.OperativeClauses) + 1
		clauses := append(bloc.Resolution.OperativeClauses, resolution.FormatOperative(assigned, clause))
		return tx.Update(map[string]any{
			"resolution.operativeClauses": clauses,
		})
	})
	if err != nil {
		return 0, err
	}
	return assigned, nil
}

// UpdateHeaders replaces the four header fields whole-value; concurrent saves
// race with last-writer-wins, an accepted property of the design.
func (s *Store) UpdateHeaders(ctx context.Context, committee, name string, h resolution.Headers) error {
	return s.docs.Update(ctx, BlocPath(committee, name), map[string]any{
		"resolution.forum":         h.Forum,
		"resolution.questionOf":    h.QuestionOf,
		"resolution.submittedBy":   h.SubmittedBy,
		"resolution.coSubmittedBy": h.CoSubmittedBy,
	})
}

// AddComment appends to the bloc's comment log with a server-assigned
// timestamp.
func (s *Store) AddComment(ctx context.Context, committee, name, text, chair string) (Comment, error) {
	now, err := s.docs.ServerTime(ctx)
	if err != nil {
		return Comment{}, err
	}
	comment := Comment{
		ID:        util.NewID("cmt"),
		Text:      text,
		Chair:     chair,
		Timestamp: now,
	}
	if err := s.docs.Set(ctx, CommentPath(committee, name, comment.ID), comment, false); err != nil {
		return Comment{}, err
	}
	return comment, nil
}

func (s *Store) ListBlocs(ctx context.Context, committee string) ([]BlocSummary, error) {
	children, err := s.docs.List(ctx, BlocsPrefix(committee))
	if err != nil {
		return nil, err
	}
	return summarizeBlocs(children)
}

func (s *Store) ListComments(ctx context.Context, committee, name string) ([]Comment, error) {
	children, err := s.docs.List(ctx, CommentsPrefix(committee, name))
	if err != nil {
		return nil, err
	}
	return decodeComments(children)
}

// SubscribeCommittee delivers the decoded committee record on every change.
// exists=false means the record has not been initialized yet.
func (s *Store) SubscribeCommittee(committee string, onChange func(Committee, bool), onError func(error)) (docstore.CancelFunc, error) {
	return s.docs.Subscribe(CommitteePath(committee), func(snap docstore.Snapshot) {
		if !snap.Exists {
			onChange(Committee{}, false)
			return
		}
		record, err := decodeCommittee(snap)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(record, true)
	}, onError)
}

// SubscribeBloc delivers the decoded bloc record on every change.
// exists=false signals external deletion; views must revert to a blank state.
func (s *Store) SubscribeBloc(committee, name string, onChange func(Bloc, bool), onError func(error)) (docstore.CancelFunc, error) {
	return s.docs.Subscribe(BlocPath(committee, name), func(snap docstore.Snapshot) {
		if !snap.Exists {
			onChange(Bloc{}, false)
			return
		}
		record, err := decodeBloc(snap)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(record, true)
	}, onError)
}

func (s *Store) SubscribeBlocList(committee string, onChange func([]BlocSummary), onError func(error)) (docstore.CancelFunc, error) {
	return s.docs.CollectionSubscribe(BlocsPrefix(committee), func(children []docstore.Snapshot) {
		summaries, err := summarizeBlocs(children)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(summaries)
	}, onError)
}

func (s *Store) SubscribeComments(committee, name string, onChange func([]Comment), onError func(error)) (docstore.CancelFunc, error) {
	return s.docs.CollectionSubscribe(CommentsPrefix(committee, name), func(children []docstore.Snapshot) {
		comments, err := decodeComments(children)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(comments)
	}, onError)
}

func decodeCommittee(snap docstore.Snapshot) (Committee, error) {
	if !snap.Exists {
		return Committee{}, fmt.Errorf("committee %s: %w", snap.Path, ErrNotFound)
	}
	var record Committee
	if err := snap.Decode(&record); err != nil {
		return Committee{}, err
	}
	if !timer.Valid(record.Timer) {
		return Committee{}, fmt.Errorf("committee %s: corrupt timer state", snap.Path)
	}
	return record, nil
}

func decodeBloc(snap docstore.Snapshot) (Bloc, error) {
	var record Bloc
	if err := snap.Decode(&record); err != nil {
		return Bloc{}, err
	}
	if record.Members == nil {
		record.Members = []string{}
	}
	if record.Resolution.PreambulatoryClauses == nil {
		record.Resolution.PreambulatoryClauses = []string{}
	}
	if record.Resolution.OperativeClauses == nil {
		record.Resolution.OperativeClauses = []string{}
	}
	return record, nil
}

func decodeComments(children []docstore.Snapshot) ([]Comment, error) {
	comments := make([]Comment, 0, len(children))
	for _, snap := range children {
		var comment Comment
		if err := snap.Decode(&comment); err != nil {
			return nil, err
		}
		comments = append(comments, comment)
	}
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].Timestamp.Before(comments[j].Timestamp)
	})
	return comments, nil
}

func summarizeBlocs(children []docstore.Snapshot) ([]BlocSummary, error) {
	summaries := make([]BlocSummary, 0, len(children))
	for _, snap := range children {
		bloc, err := decodeBloc(snap)
		if err != nil {
			return nil, err
		}
		name := snap.Path[len(parentPrefix(snap.Path))+1:]
		summaries = append(summaries, BlocSummary{Name: name, MemberCount: len(bloc.Members)})
	}
	return summaries, nil
}

func parentPrefix(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return ""
}
