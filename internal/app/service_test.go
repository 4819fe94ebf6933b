package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"rostrum/api/internal/config"
	"rostrum/api/internal/docstore"
	"rostrum/api/internal/resolution"
	"rostrum/api/internal/session"
)

func newTestService(t *testing.T) (*Service, *docstore.MemoryStore) {
	t.Helper()
	mem := docstore.NewMemoryStore()
	cfg := config.Config{
		TokenSecret:     "test-secret",
		SessionTTL:      time.Hour,
		ChairPassphrase: "resolutions@26",
	}
	svc := NewService(cfg, Deps{Docs: mem, Sessions: session.NewMemoryRegistry()})
	return svc, mem
}

func loginChair(t *testing.T, svc *Service) Session {
	t.Helper()
	sess, err := svc.Login(context.Background(), LoginInput{
		Committee:  "unep",
		Code:       "un#p26",
		Role:       "chair",
		Passphrase: "resolutions@26",
	})
	if err != nil {
		t.Fatalf("chair login: %v", err)
	}
	return sess
}

func loginDelegate(t *testing.T, svc *Service) Session {
	t.Helper()
	sess, err := svc.Login(context.Background(), LoginInput{
		Committee: "unep",
		Code:      "un#p26",
		Role:      "delegate",
	})
	if err != nil {
		t.Fatalf("delegate login: %v", err)
	}
	return sess
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var domain *DomainError
	if !errors.As(err, &domain) {
		t.Fatalf("expected %s error, got %v", code, err)
	}
	if domain.Code != code {
		t.Fatalf("error code = %s, want %s", domain.Code, code)
	}
}

func TestLoginRejectsBadCommitteeOrCode(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Login(ctx, LoginInput{Committee: "unep", Code: "wrong", Role: "delegate"})
	assertCode(t, err, "INVALID_CREDENTIALS")

	_, err = svc.Login(ctx, LoginInput{Committee: "nosuch", Code: "un#p26", Role: "delegate"})
	assertCode(t, err, "INVALID_CREDENTIALS")
}

func TestChairLoginRequiresPassphrase(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Login(context.Background(), LoginInput{
		Committee:  "unep",
		Code:       "un#p26",
		Role:       "chair",
		Passphrase: "wrong",
	})
	assertCode(t, err, "INVALID_CREDENTIALS")
}

func TestSessionRoundTripAndLogout(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	sess := loginChair(t, svc)

	loaded, err := svc.SessionFromToken(ctx, sess.Token)
	if err != nil {
		t.Fatalf("session from token: %v", err)
	}
	if loaded.UserID != sess.UserID || loaded.Role != "chair" || loaded.Committee != "unep" {
		t.Errorf("loaded session = %+v", loaded)
	}

	if err := svc.Logout(ctx, sess); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.SessionFromToken(ctx, sess.Token); err == nil {
		t.Error("expected revoked token to be rejected")
	}
}

func TestCreateBlocNameTakenKeepsOriginal(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first := loginDelegate(t, svc)
	if _, err := svc.CreateBloc(ctx, first, "Coastal Alliance", "tide"); err != nil {
		t.Fatalf("create bloc: %v", err)
	}

	second := loginDelegate(t, svc)
	_, err := svc.CreateBloc(ctx, second, "Coastal Alliance", "other")
	assertCode(t, err, "NAME_TAKEN")

	// The original password still admits joiners.
	if _, err := svc.JoinBloc(ctx, second, "Coastal Alliance", "tide"); err != nil {
		t.Fatalf("join with original password: %v", err)
	}
	_, err = svc.JoinBloc(ctx, loginDelegate(t, svc), "Coastal Alliance", "other")
	assertCode(t, err, "INVALID_CREDENTIALS")
}

func TestJoinBlocIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	creator := loginDelegate(t, svc)
	creator, err := svc.CreateBloc(ctx, creator, "Coastal Alliance", "tide")
	if err != nil {
		t.Fatalf("create bloc: %v", err)
	}

	joiner := loginDelegate(t, svc)
	for i := 0; i < 3; i++ {
		if joiner, err = svc.JoinBloc(ctx, joiner, "Coastal Alliance", "tide"); err != nil {
			t.Fatalf("join %d: %v", i, err)
		}
	}
	if joiner.Bloc != "Coastal Alliance" {
		t.Errorf("joiner bloc = %q", joiner.Bloc)
	}

	view, err := svc.Resolution(ctx, joiner)
	if err != nil {
		t.Fatalf("resolution: %v", err)
	}
	if len(view.Members) != 2 {
		t.Errorf("members = %v, want creator and joiner once each", view.Members)
	}
}

func TestDelegateLoginJoinsBlocInOneStep(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	creator := loginDelegate(t, svc)
	if _, err := svc.CreateBloc(ctx, creator, "Coastal Alliance", "tide"); err != nil {
		t.Fatalf("create bloc: %v", err)
	}

	sess, err := svc.Login(ctx, LoginInput{
		Committee: "unep",
		Code:      "un#p26",
		Role:      "delegate",
		Bloc:      "Coastal Alliance",
		Password:  "tide",
	})
	if err != nil {
		t.Fatalf("login with bloc: %v", err)
	}
	if sess.Bloc != "Coastal Alliance" {
		t.Errorf("bloc = %q", sess.Bloc)
	}

	_, err = svc.Login(ctx, LoginInput{
		Committee: "unep",
		Code:      "un#p26",
		Role:      "delegate",
		Bloc:      "Coastal Alliance",
		Password:  "wrong",
	})
	assertCode(t, err, "INVALID_CREDENTIALS")
}

func TestInsertClauseFormatsAndNumbers(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sess := loginDelegate(t, svc)
	sess, err := svc.CreateBloc(ctx, sess, "Coastal Alliance", "tide")
	if err != nil {
		t.Fatalf("create bloc: %v", err)
	}

	if _, err := svc.InsertClause(ctx, sess, "Deeply concerned about rising sea levels", "preambulatory"); err != nil {
		t.Fatalf("insert preambulatory: %v", err)
	}
	n, err := svc.InsertClause(ctx, sess, "Calls upon member states to act", "operative")
	if err != nil {
		t.Fatalf("insert operative: %v", err)
	}
	if n != 1 {
		t.Errorf("first operative number = %d, want 1", n)
	}
	n, err = svc.InsertClause(ctx, sess, "Requests annual progress reports", "operative")
	if err != nil {
		t.Fatalf("insert second operative: %v", err)
	}
	if n != 2 {
		t.Errorf("second operative number = %d, want 2", n)
	}

	view, err := svc.Resolution(ctx, sess)
	if err != nil {
		t.Fatalf("resolution: %v", err)
	}
	if got := view.Resolution.PreambulatoryClauses[0]; got != "*Deeply concerned about rising sea levels*" {
		t.Errorf("preambulatory = %q", got)
	}
	if got := view.Resolution.OperativeClauses[1]; got != "2. _Requests annual progress reports_" {
		t.Errorf("operative = %q", got)
	}
	if !strings.HasSuffix(view.Rendered, "2. _Requests annual progress reports_.") {
		t.Errorf("rendered = %q", view.Rendered)
	}
}

func TestInsertClauseRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sess := loginDelegate(t, svc)
	sess, err := svc.CreateBloc(ctx, sess, "Coastal Alliance", "tide")
	if err != nil {
		t.Fatalf("create bloc: %v", err)
	}

	_, err = svc.InsertClause(ctx, sess, "text", "sideways")
	assertCode(t, err, "INVALID_INPUT")
	_, err = svc.InsertClause(ctx, sess, "   ", "operative")
	assertCode(t, err, "INVALID_INPUT")
}

func TestLockBlocksDelegateWritesOnly(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	delegate := loginDelegate(t, svc)
	delegate, err := svc.CreateBloc(ctx, delegate, "Coastal Alliance", "tide")
	if err != nil {
		t.Fatalf("create bloc: %v", err)
	}

	chair := loginChair(t, svc)
	chair, err = svc.SelectBloc(ctx, chair, "Coastal Alliance")
	if err != nil {
		t.Fatalf("select bloc: %v", err)
	}
	locked, err := svc.ToggleLock(ctx, chair)
	if err != nil {
		t.Fatalf("toggle lock: %v", err)
	}
	if !locked {
		t.Fatal("expected lock on")
	}

	_, err = svc.InsertClause(ctx, delegate, "Calls upon member states to act", "operative")
	assertCode(t, err, "EDITING_LOCKED")

	view, err := svc.Resolution(ctx, delegate)
	if err != nil {
		t.Fatalf("resolution: %v", err)
	}
	if len(view.Resolution.OperativeClauses) != 0 {
		t.Errorf("rejected write left a clause behind: %v", view.Resolution.OperativeClauses)
	}

	// The chair edits through the lock.
	if _, err := svc.InsertClause(ctx, chair, "Calls upon member states to act", "operative"); err != nil {
		t.Fatalf("chair insert while locked: %v", err)
	}

	locked, err = svc.ToggleLock(ctx, chair)
	if err != nil {
		t.Fatalf("toggle lock off: %v", err)
	}
	if locked {
		t.Fatal("expected lock off")
	}
	if _, err := svc.InsertClause(ctx, delegate, "Requests annual progress reports", "operative"); err != nil {
		t.Fatalf("delegate insert after unlock: %v", err)
	}
}

func TestHeaderSaveDroppedSilentlyWhenLocked(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	delegate := loginDelegate(t, svc)
	delegate, err := svc.CreateBloc(ctx, delegate, "Coastal Alliance", "tide")
	if err != nil {
		t.Fatalf("create bloc: %v", err)
	}
	chair := loginChair(t, svc)
	if _, err := svc.ToggleLock(ctx, chair); err != nil {
		t.Fatalf("toggle lock: %v", err)
	}

	err = svc.SaveHeaders(ctx, delegate, resolution.Headers{Forum: "Environmental Assembly"})
	if err != nil {
		t.Fatalf("locked header save should be silent, got %v", err)
	}

	view, err := svc.Resolution(ctx, delegate)
	if err != nil {
		t.Fatalf("resolution: %v", err)
	}
	if view.Resolution.Forum != "" {
		t.Errorf("forum = %q, want unchanged", view.Resolution.Forum)
	}
}

func TestSelectBlocChairOnly(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	delegate := loginDelegate(t, svc)
	if _, err := svc.CreateBloc(ctx, delegate, "Coastal Alliance", "tide"); err != nil {
		t.Fatalf("create bloc: %v", err)
	}

	_, err := svc.SelectBloc(ctx, delegate, "Coastal Alliance")
	assertCode(t, err, "FORBIDDEN")

	chair := loginChair(t, svc)
	chair, err = svc.SelectBloc(ctx, chair, "Coastal Alliance")
	if err != nil {
		t.Fatalf("chair select: %v", err)
	}
	if chair.ActiveBloc() != "Coastal Alliance" {
		t.Errorf("active bloc = %q", chair.ActiveBloc())
	}

	_, err = svc.SelectBloc(ctx, chair, "No Such Bloc")
	assertCode(t, err, "INVALID_INPUT")
}

func TestChairOnlyActions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	delegate := loginDelegate(t, svc)
	delegate, err := svc.CreateBloc(ctx, delegate, "Coastal Alliance", "tide")
	if err != nil {
		t.Fatalf("create bloc: %v", err)
	}

	_, err = svc.ToggleLock(ctx, delegate)
	assertCode(t, err, "FORBIDDEN")
	_, err = svc.AddComment(ctx, delegate, "Needs a stronger preamble")
	assertCode(t, err, "FORBIDDEN")
	_, err = svc.SetTimer(ctx, delegate, 5, 0)
	assertCode(t, err, "FORBIDDEN")
	_, err = svc.Search(ctx, delegate, "sea levels", 10, 0)
	assertCode(t, err, "FORBIDDEN")
}

func TestCommentsFlow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	delegate := loginDelegate(t, svc)
	if _, err := svc.CreateBloc(ctx, delegate, "Coastal Alliance", "tide"); err != nil {
		t.Fatalf("create bloc: %v", err)
	}
	chair := loginChair(t, svc)
	chair, err := svc.SelectBloc(ctx, chair, "Coastal Alliance")
	if err != nil {
		t.Fatalf("select bloc: %v", err)
	}

	first, err := svc.AddComment(ctx, chair, "Needs a stronger preamble")
	if err != nil {
		t.Fatalf("add comment: %v", err)
	}
	if first.Chair != chair.UserID || first.ID == "" {
		t.Errorf("comment = %+v", first)
	}
	if _, err := svc.AddComment(ctx, chair, "Operative 1 is too vague"); err != nil {
		t.Fatalf("add second comment: %v", err)
	}

	comments, err := svc.Comments(ctx, chair)
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("comments = %d, want 2", len(comments))
	}

	_, err = svc.AddComment(ctx, chair, "   ")
	assertCode(t, err, "INVALID_INPUT")
}

func TestTimerFlow(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	now := time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC)
	mem.SetClock(func() time.Time { return now })

	chair := loginChair(t, svc)

	state, err := svc.SetTimer(ctx, chair, 1, 30)
	if err != nil {
		t.Fatalf("set timer: %v", err)
	}
	if state.Remaining != 90 {
		t.Errorf("remaining after set = %d, want 90", state.Remaining)
	}

	if _, err := svc.StartTimer(ctx, chair); err != nil {
		t.Fatalf("start timer: %v", err)
	}
	_, err = svc.StartTimer(ctx, chair)
	assertCode(t, err, "ALREADY_RUNNING")

	now = now.Add(40 * time.Second)
	state, err = svc.GetTimer(ctx, chair)
	if err != nil {
		t.Fatalf("get timer: %v", err)
	}
	if state.Remaining != 50 {
		t.Errorf("remaining after 40s = %d, want 50", state.Remaining)
	}

	state, err = svc.PauseTimer(ctx, chair)
	if err != nil {
		t.Fatalf("pause timer: %v", err)
	}
	if state.Timer.IsRunning || state.Timer.TotalSeconds != 50 {
		t.Errorf("paused timer = %+v, want idle 50s", state.Timer)
	}

	state, err = svc.ResetTimer(ctx, chair)
	if err != nil {
		t.Fatalf("reset timer: %v", err)
	}
	if state.Timer.TotalSeconds != 0 || state.Timer.IsRunning {
		t.Errorf("reset timer = %+v", state.Timer)
	}

	_, err = svc.StartTimer(ctx, chair)
	assertCode(t, err, "NO_DURATION_SET")
	_, err = svc.SetTimer(ctx, chair, -1, 0)
	assertCode(t, err, "INVALID_INPUT")
}

func TestNoActiveBloc(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	delegate := loginDelegate(t, svc)
	_, err := svc.Resolution(ctx, delegate)
	assertCode(t, err, "NO_ACTIVE_BLOC")
	_, err = svc.InsertClause(ctx, delegate, "Calls upon member states to act", "operative")
	assertCode(t, err, "NO_ACTIVE_BLOC")
}

func TestStaleBlocSelectionCleared(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	delegate := loginDelegate(t, svc)
	delegate, err := svc.CreateBloc(ctx, delegate, "Coastal Alliance", "tide")
	if err != nil {
		t.Fatalf("create bloc: %v", err)
	}

	if err := mem.Delete(ctx, "committees/unep/blocs/Coastal Alliance"); err != nil {
		t.Fatalf("delete bloc: %v", err)
	}

	_, err = svc.Resolution(ctx, delegate)
	assertCode(t, err, "NO_ACTIVE_BLOC")

	// The stale selection is cleared from the registry on first touch.
	reloaded, err := svc.SessionFromToken(ctx, delegate.Token)
	if err != nil {
		t.Fatalf("session from token: %v", err)
	}
	if reloaded.Bloc != "" {
		t.Errorf("bloc = %q, want cleared", reloaded.Bloc)
	}
}

func TestWatchDeliversSnapshotsAndCloses(t *testing.T) {
	svc, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chair := loginChair(t, svc)
	events, err := svc.Watch(ctx, chair)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	seen := map[string]bool{}
	deadline := time.After(3 * time.Second)
	for !seen["committee"] || !seen["blocList"] {
		select {
		case event, ok := <-events:
			if !ok {
				t.Fatal("stream closed before initial snapshots")
			}
			seen[event.Type] = true
		case <-deadline:
			t.Fatalf("timed out waiting for initial snapshots, saw %v", seen)
		}
	}

	cancel()
	for {
		if _, ok := <-events; !ok {
			return
		}
	}
}

func TestExportUnavailableWithoutRenderer(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	delegate := loginDelegate(t, svc)
	delegate, err := svc.CreateBloc(ctx, delegate, "Coastal Alliance", "tide")
	if err != nil {
		t.Fatalf("create bloc: %v", err)
	}

	_, err = svc.Export(ctx, delegate, "gopher")
	assertCode(t, err, "INVALID_INPUT")
	_, err = svc.Export(ctx, delegate, "html")
	assertCode(t, err, "STORE_UNAVAILABLE")
}
