package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"rostrum/api/internal/archive"
	"rostrum/api/internal/auth"
	"rostrum/api/internal/config"
	"rostrum/api/internal/docstore"
	"rostrum/api/internal/export"
	"rostrum/api/internal/gitrepo"
	"rostrum/api/internal/rbac"
	"rostrum/api/internal/resolution"
	"rostrum/api/internal/search"
	"rostrum/api/internal/session"
	"rostrum/api/internal/store"
	"rostrum/api/internal/timer"
	"rostrum/api/internal/util"
)

// Session is the authenticated caller's view for one request: token claims
// merged with the live registry record, so bloc membership and the chair's
// selection survive across requests without reissuing the token.
type Session struct {
	Token        string
	UserID       string
	Role         string
	Committee    string
	Bloc         string
	SelectedBloc string
	JTI          string
	ExpiresAt    time.Time
}

// ActiveBloc is the bloc this session operates on: the chair's selection when
// present, the delegate's own bloc otherwise.
func (s Session) ActiveBloc() string {
	if s.SelectedBloc != "" {
		return s.SelectedBloc
	}
	return s.Bloc
}

// committeeCodes is the closed committee table: committee id to its access
// code. Codes are shared plaintext secrets handed out on paper at the
// conference.
var committeeCodes = map[string]string{
	"unep":     "un#p26",
	"security": "$ecur!ty",
	"ecosoc":   "ec0s0c",
	"unesco":   "un3sco2026",
	"nato":     "n@t0",
	"who":      "wh022",
	"hrc":      "#rc24",
	"unwomen":  "wom(26)",
	"disec":    "d!sec26",
}

type LoginInput struct {
	Committee  string `json:"committee"`
	Code       string `json:"code"`
	Role       string `json:"role"`
	Passphrase string `json:"passphrase"`
	Bloc       string `json:"bloc"`
	Password   string `json:"password"`
}

// Deps are the service's collaborators. Export, History, Search and Archive
// are optional; nil disables the corresponding surface.
type Deps struct {
	Docs     docstore.Store
	Sessions session.Registry
	Export   *export.Service
	History  *gitrepo.Service
	Search   *search.Service
	Archive  *archive.Service
}

type Service struct {
	cfg      config.Config
	docs     docstore.Store
	store    *store.Store
	sessions session.Registry
	export   *export.Service
	history  *gitrepo.Service
	search   *search.Service
	archive  *archive.Service
}

func NewService(cfg config.Config, deps Deps) *Service {
	return &Service{
		cfg:      cfg,
		docs:     deps.Docs,
		store:    store.New(deps.Docs),
		sessions: deps.Sessions,
		export:   deps.Export,
		history:  deps.History,
		search:   deps.Search,
		archive:  deps.Archive,
	}
}

// Store exposes the typed store, used by the watch stream.
func (s *Service) Store() *store.Store {
	return s.store
}

func (s *Service) Ping(ctx context.Context) error {
	_, err := s.docs.ServerTime(ctx)
	return err
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// storeErr logs the underlying store failure and returns the opaque
// STORE_UNAVAILABLE domain error. Derived state is never touched on failure.
func (s *Service) storeErr(op string, err error) error {
	log.Printf("app: %s: %v", op, err)
	return errStoreUnavailable()
}

// Login authenticates against the closed committee table. Chairs present the
// shared passphrase; delegates may join a bloc in the same step by naming it
// with its password. All comparisons are plaintext on purpose: the secrets
// are conference handouts, not user accounts.
func (s *Service) Login(ctx context.Context, input LoginInput) (Session, error) {
	committee := strings.ToLower(strings.TrimSpace(input.Committee))
	code, ok := committeeCodes[committee]
	if !ok || code != input.Code {
		return Session{}, errInvalidCredentials()
	}

	role := rbac.Normalize(input.Role)
	if role == rbac.RoleChair && input.Passphrase != s.cfg.ChairPassphrase {
		return Session{}, errInvalidCredentials()
	}

	if err := s.store.EnsureCommittee(ctx, committee); err != nil {
		return Session{}, s.storeErr("ensure committee", err)
	}

	userID := auth.SignInAnonymously()
	bloc := ""
	if role == rbac.RoleDelegate && strings.TrimSpace(input.Bloc) != "" {
		name := strings.TrimSpace(input.Bloc)
		if err := s.verifyAndJoin(ctx, committee, name, input.Password, userID); err != nil {
			return Session{}, err
		}
		bloc = name
	}

	now := time.Now()
	expiresAt := now.Add(s.cfg.SessionTTL)
	claims := auth.Claims{
		Sub:       userID,
		Role:      string(role),
		Committee: committee,
		JTI:       util.NewID("jti"),
		Exp:       expiresAt.Unix(),
	}
	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), claims)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}

	sess := Session{
		Token:     token,
		UserID:    userID,
		Role:      string(role),
		Committee: committee,
		Bloc:      bloc,
		JTI:       claims.JTI,
		ExpiresAt: expiresAt,
	}
	if err := s.saveSession(ctx, sess); err != nil {
		return Session{}, s.storeErr("save session", err)
	}
	return sess, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	record, err := s.sessions.Lookup(ctx, auth.HashToken(token))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, fmt.Errorf("lookup session: %w", err)
	}
	return Session{
		Token:        token,
		UserID:       claims.Sub,
		Role:         claims.Role,
		Committee:    claims.Committee,
		Bloc:         record.Bloc,
		SelectedBloc: record.SelectedBloc,
		JTI:          claims.JTI,
		ExpiresAt:    time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, sess Session) error {
	if err := s.sessions.Revoke(ctx, auth.HashToken(sess.Token)); err != nil {
		return s.storeErr("revoke session", err)
	}
	return nil
}

func (s *Service) saveSession(ctx context.Context, sess Session) error {
	return s.sessions.Save(ctx, auth.HashToken(sess.Token), session.Session{
		UserID:       sess.UserID,
		Role:         sess.Role,
		Committee:    sess.Committee,
		Bloc:         sess.Bloc,
		SelectedBloc: sess.SelectedBloc,
		ExpiresAt:    sess.ExpiresAt,
	})
}

func (s *Service) ListBlocs(ctx context.Context, sess Session) ([]store.BlocSummary, error) {
	summaries, err := s.store.ListBlocs(ctx, sess.Committee)
	if err != nil {
		return nil, s.storeErr("list blocs", err)
	}
	return summaries, nil
}

// CreateBloc registers a new bloc and enrolls the creator. A taken name is
// rejected without touching the existing bloc or its password.
func (s *Service) CreateBloc(ctx context.Context, sess Session, name, password string) (Session, error) {
	if !s.Can(sess.Role, rbac.ActionCreateBloc) {
		return Session{}, errForbidden()
	}
	name = strings.TrimSpace(name)
	if name == "" || password == "" {
		return Session{}, errInvalidInput("bloc name and password are required")
	}

	err := s.store.CreateBloc(ctx, sess.Committee, name, password)
	if errors.Is(err, store.ErrBlocExists) {
		return Session{}, errNameTaken(name)
	}
	if err != nil {
		return Session{}, s.storeErr("create bloc", err)
	}
	if err := s.store.AddMember(ctx, sess.Committee, name, sess.UserID); err != nil {
		return Session{}, s.storeErr("add member", err)
	}

	if rbac.Normalize(sess.Role) == rbac.RoleChair {
		sess.SelectedBloc = name
	} else {
		sess.Bloc = name
	}
	if err := s.saveSession(ctx, sess); err != nil {
		return Session{}, s.storeErr("save session", err)
	}
	return sess, nil
}

// JoinBloc authenticates a delegate into an existing bloc. Joining a bloc the
// delegate already belongs to is a no-op.
func (s *Service) JoinBloc(ctx context.Context, sess Session, name, password string) (Session, error) {
	if rbac.Normalize(sess.Role) != rbac.RoleDelegate {
		return Session{}, errForbidden()
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Session{}, errInvalidInput("bloc name is required")
	}
	if err := s.verifyAndJoin(ctx, sess.Committee, name, password, sess.UserID); err != nil {
		return Session{}, err
	}
	sess.Bloc = name
	if err := s.saveSession(ctx, sess); err != nil {
		return Session{}, s.storeErr("save session", err)
	}
	return sess, nil
}

func (s *Service) verifyAndJoin(ctx context.Context, committee, name, password, userID string) error {
	bloc, err := s.store.GetBloc(ctx, committee, name)
	if errors.Is(err, store.ErrNotFound) {
		return errInvalidCredentials()
	}
	if err != nil {
		return s.storeErr("get bloc", err)
	}
	if bloc.Password != password {
		return errInvalidCredentials()
	}
	if err := s.store.AddMember(ctx, committee, name, userID); err != nil {
		return s.storeErr("add member", err)
	}
	return nil
}

// SelectBloc switches the chair's review target. The previous selection is
// simply replaced; the watch stream re-targets on its next connection.
func (s *Service) SelectBloc(ctx context.Context, sess Session, name string) (Session, error) {
	if !s.Can(sess.Role, rbac.ActionSelectBloc) {
		return Session{}, errForbidden()
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Session{}, errInvalidInput("bloc name is required")
	}
	if _, err := s.store.GetBloc(ctx, sess.Committee, name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, errInvalidInput("bloc does not exist")
		}
		return Session{}, s.storeErr("get bloc", err)
	}
	sess.SelectedBloc = name
	if err := s.saveSession(ctx, sess); err != nil {
		return Session{}, s.storeErr("save session", err)
	}
	return sess, nil
}

// ResolutionView is the resolution payload returned to clients: the raw
// fields plus the rendered projection, recomputed on every read.
type ResolutionView struct {
	Bloc       string                `json:"bloc"`
	Resolution resolution.Resolution `json:"resolution"`
	Rendered   string                `json:"rendered"`
	Members    []string              `json:"members"`
}

func (s *Service) Resolution(ctx context.Context, sess Session) (ResolutionView, error) {
	bloc, name, err := s.activeBloc(ctx, sess)
	if err != nil {
		return ResolutionView{}, err
	}
	return s.resolutionView(name, bloc), nil
}

// activeBloc resolves and loads the session's bloc. When the bloc has been
// deleted externally the stale selection is cleared so the client falls back
// to the bloc screen.
func (s *Service) activeBloc(ctx context.Context, sess Session) (store.Bloc, string, error) {
	name := sess.ActiveBloc()
	if name == "" {
		return store.Bloc{}, "", errNoActiveBloc()
	}
	if sess.Committee == "" {
		return store.Bloc{}, "", errNoActiveCommittee()
	}
	bloc, err := s.store.GetBloc(ctx, sess.Committee, name)
	if errors.Is(err, store.ErrNotFound) {
		cleared := sess
		cleared.Bloc = ""
		cleared.SelectedBloc = ""
		if saveErr := s.saveSession(ctx, cleared); saveErr != nil {
			log.Printf("app: clear stale bloc selection: %v", saveErr)
		}
		return store.Bloc{}, "", errNoActiveBloc()
	}
	if err != nil {
		return store.Bloc{}, "", s.storeErr("get bloc", err)
	}
	return bloc, name, nil
}

// InsertClause appends one clause to the active bloc's resolution. The lock
// gate re-reads the committee document immediately before the write; a stale
// cached lock state is never trusted. Returns the assigned number for
// operative clauses, 0 for preambulatory.
func (s *Service) InsertClause(ctx context.Context, sess Session, clause, kindName string) (int, error) {
	if !s.Can(sess.Role, rbac.ActionEdit) {
		return 0, errForbidden()
	}
	kind, ok := resolution.ParseKind(kindName)
	if !ok {
		return 0, errInvalidInput("kind must be preambulatory or operative")
	}
	clause = strings.TrimSpace(clause)
	if clause == "" {
		return 0, errInvalidInput("clause text is required")
	}

	_, name, err := s.activeBloc(ctx, sess)
	if err != nil {
		return 0, err
	}
	if err := s.checkEditingLock(ctx, sess); err != nil {
		return 0, err
	}

	assigned := 0
	switch kind {
	case resolution.Preambulatory:
		err = s.store.AppendPreambulatory(ctx, sess.Committee, name, resolution.FormatPreambulatory(clause))
	case resolution.Operative:
		assigned, err = s.store.AppendOperative(ctx, sess.Committee, name, clause)
	}
	if err != nil {
		return 0, s.storeErr("append clause", err)
	}

	s.recordRevision(ctx, sess, name, fmt.Sprintf("Insert %s clause", kind))
	return assigned, nil
}

// SaveHeaders replaces the four header fields. A lock-blocked delegate save
// is dropped silently: the editor treats header blurs as best-effort and the
// client view snaps back through the subscription.
func (s *Service) SaveHeaders(ctx context.Context, sess Session, headers resolution.Headers) error {
	if !s.Can(sess.Role, rbac.ActionEdit) {
		return errForbidden()
	}
	_, name, err := s.activeBloc(ctx, sess)
	if err != nil {
		return err
	}

	if rbac.Normalize(sess.Role) == rbac.RoleDelegate {
		committee, err := s.store.GetCommittee(ctx, sess.Committee)
		if err != nil {
			return s.storeErr("get committee", err)
		}
		if committee.IsEditingLocked {
			log.Printf("app: header save dropped, editing locked (committee=%s bloc=%s)", sess.Committee, name)
			return nil
		}
	}

	if err := s.store.UpdateHeaders(ctx, sess.Committee, name, headers); err != nil {
		return s.storeErr("update headers", err)
	}
	s.recordRevision(ctx, sess, name, "Save headers")
	return nil
}

// checkEditingLock rejects delegate writes while the chair lock is on. The
// committee document is re-read every time.
func (s *Service) checkEditingLock(ctx context.Context, sess Session) error {
	if rbac.Normalize(sess.Role) != rbac.RoleDelegate {
		return nil
	}
	committee, err := s.store.GetCommittee(ctx, sess.Committee)
	if err != nil {
		return s.storeErr("get committee", err)
	}
	if committee.IsEditingLocked {
		return errEditingLocked()
	}
	return nil
}

func (s *Service) AddComment(ctx context.Context, sess Session, text string) (store.Comment, error) {
	if !s.Can(sess.Role, rbac.ActionComment) {
		return store.Comment{}, errForbidden()
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return store.Comment{}, errInvalidInput("comment text is required")
	}
	_, name, err := s.activeBloc(ctx, sess)
	if err != nil {
		return store.Comment{}, err
	}
	comment, err := s.store.AddComment(ctx, sess.Committee, name, text, sess.UserID)
	if err != nil {
		return store.Comment{}, s.storeErr("add comment", err)
	}
	if s.search != nil {
		s.search.IndexComment(search.CommentRecord{
			ID:        comment.ID,
			Committee: sess.Committee,
			Bloc:      name,
			Chair:     comment.Chair,
			Text:      comment.Text,
		})
	}
	return comment, nil
}

func (s *Service) Comments(ctx context.Context, sess Session) ([]store.Comment, error) {
	_, name, err := s.activeBloc(ctx, sess)
	if err != nil {
		return nil, err
	}
	comments, err := s.store.ListComments(ctx, sess.Committee, name)
	if err != nil {
		return nil, s.storeErr("list comments", err)
	}
	return comments, nil
}

// ToggleLock flips the committee editing lock and returns the new state.
func (s *Service) ToggleLock(ctx context.Context, sess Session) (bool, error) {
	if !s.Can(sess.Role, rbac.ActionLock) {
		return false, errForbidden()
	}
	committee, err := s.store.GetCommittee(ctx, sess.Committee)
	if err != nil {
		return false, s.storeErr("get committee", err)
	}
	locked := !committee.IsEditingLocked
	if err := s.store.SetEditingLocked(ctx, sess.Committee, locked); err != nil {
		return false, s.storeErr("set editing lock", err)
	}
	return locked, nil
}

// TimerState pairs the persisted triple with the remaining seconds computed
// against server time at read.
type TimerState struct {
	Timer     timer.Timer `json:"timer"`
	Remaining int         `json:"remaining"`
}

func (s *Service) GetTimer(ctx context.Context, sess Session) (TimerState, error) {
	committee, err := s.store.GetCommittee(ctx, sess.Committee)
	if err != nil {
		return TimerState{}, s.storeErr("get committee", err)
	}
	now, err := s.store.ServerTime(ctx)
	if err != nil {
		return TimerState{}, s.storeErr("server time", err)
	}
	return TimerState{Timer: committee.Timer, Remaining: timer.Remaining(committee.Timer, now)}, nil
}

func (s *Service) SetTimer(ctx context.Context, sess Session, minutes, seconds int) (TimerState, error) {
	if !s.Can(sess.Role, rbac.ActionTimer) {
		return TimerState{}, errForbidden()
	}
	t, err := timer.Set(minutes, seconds)
	if errors.Is(err, timer.ErrInvalidInput) {
		return TimerState{}, errInvalidInput("minutes and seconds must be non-negative")
	}
	if err != nil {
		return TimerState{}, err
	}
	if err := s.store.PutTimer(ctx, sess.Committee, t); err != nil {
		return TimerState{}, s.storeErr("put timer", err)
	}
	return TimerState{Timer: t, Remaining: t.TotalSeconds}, nil
}

func (s *Service) StartTimer(ctx context.Context, sess Session) (TimerState, error) {
	if !s.Can(sess.Role, rbac.ActionTimer) {
		return TimerState{}, errForbidden()
	}
	committee, err := s.store.GetCommittee(ctx, sess.Committee)
	if err != nil {
		return TimerState{}, s.storeErr("get committee", err)
	}
	now, err := s.store.ServerTime(ctx)
	if err != nil {
		return TimerState{}, s.storeErr("server time", err)
	}
	started, err := timer.Start(committee.Timer, now)
	if errors.Is(err, timer.ErrAlreadyRunning) {
		return TimerState{}, errAlreadyRunning()
	}
	if errors.Is(err, timer.ErrNoDurationSet) {
		return TimerState{}, errNoDurationSet()
	}
	if err != nil {
		return TimerState{}, err
	}
	if err := s.store.PutTimer(ctx, sess.Committee, started); err != nil {
		return TimerState{}, s.storeErr("put timer", err)
	}
	return TimerState{Timer: started, Remaining: timer.Remaining(started, now)}, nil
}

func (s *Service) PauseTimer(ctx context.Context, sess Session) (TimerState, error) {
	if !s.Can(sess.Role, rbac.ActionTimer) {
		return TimerState{}, errForbidden()
	}
	committee, err := s.store.GetCommittee(ctx, sess.Committee)
	if err != nil {
		return TimerState{}, s.storeErr("get committee", err)
	}
	now, err := s.store.ServerTime(ctx)
	if err != nil {
		return TimerState{}, s.storeErr("server time", err)
	}
	paused, ok := timer.Pause(committee.Timer, now)
	if ok {
		if err := s.store.PutTimer(ctx, sess.Committee, paused); err != nil {
			return TimerState{}, s.storeErr("put timer", err)
		}
	}
	return TimerState{Timer: paused, Remaining: paused.TotalSeconds}, nil
}

func (s *Service) ResetTimer(ctx context.Context, sess Session) (TimerState, error) {
	if !s.Can(sess.Role, rbac.ActionTimer) {
		return TimerState{}, errForbidden()
	}
	t := timer.Reset()
	if err := s.store.PutTimer(ctx, sess.Committee, t); err != nil {
		return TimerState{}, s.storeErr("put timer", err)
	}
	return TimerState{Timer: t}, nil
}

// Phrases returns the clause opener catalogs shown by the editor.
func (s *Service) Phrases() map[string][]string {
	return map[string][]string{
		"preambulatory": resolution.PreambulatoryPhrases,
		"operative":     resolution.OperativePhrases,
	}
}

func (s *Service) Export(ctx context.Context, sess Session, formatName string) (*export.Result, error) {
	if !s.Can(sess.Role, rbac.ActionExport) {
		return nil, errForbidden()
	}
	format, ok := export.ParseFormat(formatName)
	if !ok {
		return nil, errInvalidInput("format must be html, pdf or docx")
	}
	if s.export == nil {
		return nil, domainError(503, "STORE_UNAVAILABLE", "Export not configured", nil)
	}
	bloc, name, err := s.activeBloc(ctx, sess)
	if err != nil {
		return nil, err
	}
	result, err := s.export.Export(export.Request{
		Committee:  sess.Committee,
		Bloc:       name,
		Resolution: bloc.Resolution,
		Format:     format,
	})
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", format, err)
	}
	if s.archive != nil {
		go func(r export.Result) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			key, err := s.archive.Store(ctx, sess.Committee, name, r.Filename, r.MimeType, r.Data)
			if err != nil {
				log.Printf("app: archive export: %v", err)
				return
			}
			log.Printf("app: archived export %s", key)
		}(*result)
	}
	return result, nil
}

func (s *Service) History(ctx context.Context, sess Session, limit int) ([]gitrepo.CommitInfo, error) {
	if s.history == nil {
		return nil, domainError(503, "STORE_UNAVAILABLE", "Revision history not configured", nil)
	}
	_, name, err := s.activeBloc(ctx, sess)
	if err != nil {
		return nil, err
	}
	items, err := s.history.History(sess.Committee, name, limit)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return items, nil
}

func (s *Service) Search(ctx context.Context, sess Session, text string, limit, offset int) (search.Response, error) {
	if !s.Can(sess.Role, rbac.ActionSearch) {
		return search.Response{}, errForbidden()
	}
	if s.search == nil {
		return search.Response{}, domainError(503, "STORE_UNAVAILABLE", "Search not configured", nil)
	}
	return s.search.Search(search.Query{
		Text:      text,
		Committee: sess.Committee,
		Limit:     limit,
		Offset:    offset,
	}), nil
}

// recordRevision commits the current resolution state to the bloc's history
// repo and refreshes the search index. Both are best-effort: failures are
// logged and never fail the triggering write.
func (s *Service) recordRevision(ctx context.Context, sess Session, name, message string) {
	bloc, err := s.store.GetBloc(ctx, sess.Committee, name)
	if err != nil {
		log.Printf("app: record revision read: %v", err)
		return
	}
	if s.history != nil {
		if _, err := s.history.Commit(sess.Committee, name, bloc.Resolution, sess.UserID, message); err != nil {
			log.Printf("app: record revision commit: %v", err)
		}
	}
	if s.search != nil {
		res := bloc.Resolution
		s.search.IndexResolution(search.ResolutionRecord{
			ID:        search.ResolutionID(sess.Committee, name),
			Committee: sess.Committee,
			Bloc:      name,
			Headers:   strings.TrimSpace(strings.Join([]string{res.Forum, res.QuestionOf, res.SubmittedBy, res.CoSubmittedBy}, " ")),
			Text:      strings.Join(append(append([]string{}, res.PreambulatoryClauses...), res.OperativeClauses...), "\n"),
		})
	}
}
