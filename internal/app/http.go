package app

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rostrum/api/internal/auth"
	"rostrum/api/internal/config"
	"rostrum/api/internal/resolution"
)

type Server struct {
	svc *Service
	cfg config.Config
}

func NewServer(svc *Service, cfg config.Config) *Server {
	return &Server{svc: svc, cfg: cfg}
}

func (s *Server) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.route))
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	method := r.Method

	if method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if path == "/api/health" && (method == http.MethodGet || method == http.MethodHead) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	if path == "/api/ready" && (method == http.MethodGet || method == http.MethodHead) {
		s.handleReady(w, r)
		return
	}

	if path == "/api/login" && method == http.MethodPost {
		s.handleLogin(w, r)
		return
	}
	if path == "/api/session" && method == http.MethodGet {
		s.handleSession(w, r)
		return
	}
	if path == "/api/logout" && method == http.MethodPost {
		s.withSession(w, r, s.handleLogout)
		return
	}

	if path == "/api/phrases" && method == http.MethodGet {
		s.withSession(w, r, s.handlePhrases)
		return
	}

	if path == "/api/blocs" && method == http.MethodGet {
		s.withSession(w, r, s.handleListBlocs)
		return
	}
	if path == "/api/blocs" && method == http.MethodPost {
		s.withSession(w, r, s.handleCreateBloc)
		return
	}
	if path == "/api/blocs/join" && method == http.MethodPost {
		s.withSession(w, r, s.handleJoinBloc)
		return
	}
	if path == "/api/blocs/select" && method == http.MethodPost {
		s.withSession(w, r, s.handleSelectBloc)
		return
	}

	if path == "/api/resolution" && method == http.MethodGet {
		s.withSession(w, r, s.handleGetResolution)
		return
	}
	if path == "/api/resolution/clauses" && method == http.MethodPost {
		s.withSession(w, r, s.handleInsertClause)
		return
	}
	if path == "/api/resolution/headers" && method == http.MethodPut {
		s.withSession(w, r, s.handleSaveHeaders)
		return
	}

	if path == "/api/comments" && method == http.MethodGet {
		s.withSession(w, r, s.handleListComments)
		return
	}
	if path == "/api/comments" && method == http.MethodPost {
		s.withSession(w, r, s.handleAddComment)
		return
	}

	if path == "/api/lock/toggle" && method == http.MethodPost {
		s.withSession(w, r, s.handleToggleLock)
		return
	}

	if path == "/api/timer" && method == http.MethodGet {
		s.withSession(w, r, s.handleGetTimer)
		return
	}
	if path == "/api/timer/set" && method == http.MethodPost {
		s.withSession(w, r, s.handleSetTimer)
		return
	}
	if path == "/api/timer/start" && method == http.MethodPost {
		s.withSession(w, r, s.handleStartTimer)
		return
	}
	if path == "/api/timer/pause" && method == http.MethodPost {
		s.withSession(w, r, s.handlePauseTimer)
		return
	}
	if path == "/api/timer/reset" && method == http.MethodPost {
		s.withSession(w, r, s.handleResetTimer)
		return
	}

	if path == "/api/watch" && method == http.MethodGet {
		s.withSession(w, r, s.handleWatch)
		return
	}
	if path == "/api/export" && method == http.MethodGet {
		s.withSession(w, r, s.handleExport)
		return
	}
	if path == "/api/history" && method == http.MethodGet {
		s.withSession(w, r, s.handleHistory)
		return
	}
	if path == "/api/search" && method == http.MethodGet {
		s.withSession(w, r, s.handleSearch)
		return
	}

	writeError(w, domainError(http.StatusNotFound, "NOT_FOUND", "No such endpoint", nil))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ping(r.Context()); err != nil {
		log.Printf("http: readiness check failed: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var input LoginInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.svc.Login(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":   sess.Token,
		"session": sessionPayload(sess),
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	sess, err := s.svc.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"session":       sessionPayload(sess),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, sess Session) {
	if err := s.svc.Logout(r.Context(), sess); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handlePhrases(w http.ResponseWriter, r *http.Request, sess Session) {
	writeJSON(w, http.StatusOK, s.svc.Phrases())
}

func (s *Server) handleListBlocs(w http.ResponseWriter, r *http.Request, sess Session) {
	summaries, err := s.svc.ListBlocs(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"blocs": summaries})
}

func (s *Server) handleCreateBloc(w http.ResponseWriter, r *http.Request, sess Session) {
	var input struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &input); err != nil {
		writeError(w, err)
		return
	}
	updated, err := s.svc.CreateBloc(r.Context(), sess, input.Name, input.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"session": sessionPayload(updated)})
}

func (s *Server) handleJoinBloc(w http.ResponseWriter, r *http.Request, sess Session) {
	var input struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &input); err != nil {
		writeError(w, err)
		return
	}
	updated, err := s.svc.JoinBloc(r.Context(), sess, input.Name, input.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sessionPayload(updated)})
}

func (s *Server) handleSelectBloc(w http.ResponseWriter, r *http.Request, sess Session) {
	var input struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &input); err != nil {
		writeError(w, err)
		return
	}
	updated, err := s.svc.SelectBloc(r.Context(), sess, input.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sessionPayload(updated)})
}

func (s *Server) handleGetResolution(w http.ResponseWriter, r *http.Request, sess Session) {
	view, err := s.svc.Resolution(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleInsertClause(w http.ResponseWriter, r *http.Request, sess Session) {
	var input struct {
		Clause string `json:"clause"`
		Kind   string `json:"kind"`
	}
	if err := decodeBody(r, &input); err != nil {
		writeError(w, err)
		return
	}
	assigned, err := s.svc.InsertClause(r.Context(), sess, input.Clause, input.Kind)
	if err != nil {
		writeError(w, err)
		return
	}
	payload := map[string]any{"ok": true}
	if assigned > 0 {
		payload["number"] = assigned
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (s *Server) handleSaveHeaders(w http.ResponseWriter, r *http.Request, sess Session) {
	var headers resolution.Headers
	if err := decodeBody(r, &headers); err != nil {
		writeError(w, err)
		return
	}
	if err := s.svc.SaveHeaders(r.Context(), sess, headers); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request, sess Session) {
	comments, err := s.svc.Comments(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": comments})
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request, sess Session) {
	var input struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &input); err != nil {
		writeError(w, err)
		return
	}
	comment, err := s.svc.AddComment(r.Context(), sess, input.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (s *Server) handleToggleLock(w http.ResponseWriter, r *http.Request, sess Session) {
	locked, err := s.svc.ToggleLock(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"isEditingLocked": locked})
}

func (s *Server) handleGetTimer(w http.ResponseWriter, r *http.Request, sess Session) {
	state, err := s.svc.GetTimer(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSetTimer(w http.ResponseWriter, r *http.Request, sess Session) {
	var input struct {
		Minutes int `json:"minutes"`
		Seconds int `json:"seconds"`
	}
	if err := decodeBody(r, &input); err != nil {
		writeError(w, err)
		return
	}
	state, err := s.svc.SetTimer(r.Context(), sess, input.Minutes, input.Seconds)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleStartTimer(w http.ResponseWriter, r *http.Request, sess Session) {
	state, err := s.svc.StartTimer(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handlePauseTimer(w http.ResponseWriter, r *http.Request, sess Session) {
	state, err := s.svc.PauseTimer(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleResetTimer(w http.ResponseWriter, r *http.Request, sess Session) {
	state, err := s.svc.ResetTimer(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleWatch streams snapshot events over SSE until the client disconnects.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request, sess Session) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, domainError(http.StatusInternalServerError, "SERVER_ERROR", "Streaming unsupported", nil))
		return
	}

	events, err := s.svc.Watch(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event := range events {
		data, err := json.Marshal(event.Data)
		if err != nil {
			log.Printf("http: marshal %s event: %v", event.Type, err)
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
		flusher.Flush()
	}
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, sess Session) {
	result, err := s.svc.Export(r.Context(), sess, r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, sess Session) {
	limit := queryInt(r, "limit", 50)
	items, err := s.svc.History(r.Context(), sess, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commits": items})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, sess Session) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, errInvalidInput("q is required"))
		return
	}
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)
	response, err := s.svc.Search(r.Context(), sess, q, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func sessionPayload(sess Session) map[string]any {
	return map[string]any{
		"userId":       sess.UserID,
		"role":         sess.Role,
		"committee":    sess.Committee,
		"bloc":         sess.Bloc,
		"selectedBloc": sess.SelectedBloc,
		"activeBloc":   sess.ActiveBloc(),
		"expiresAt":    sess.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

type sessionHandler func(http.ResponseWriter, *http.Request, Session)

// withSession authenticates the bearer token and loads the live session
// record before invoking the handler.
func (s *Server) withSession(w http.ResponseWriter, r *http.Request, next sessionHandler) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, errUnauthorized())
		return
	}
	sess, err := s.svc.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
			writeError(w, errUnauthorized())
			return
		}
		writeError(w, err)
		return
	}
	next(w, r, sess)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	// EventSource cannot set headers, so the watch stream passes the token in
	// the query string.
	return r.URL.Query().Get("token")
}

func decodeBody(r *http.Request, into any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(into); err != nil {
		return errInvalidInput("malformed JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("http: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	var domain *DomainError
	if errors.As(err, &domain) {
		body := map[string]any{
			"error":   domain.Code,
			"message": domain.Message,
		}
		if domain.Details != nil {
			body["details"] = domain.Details
		}
		writeJSON(w, domain.Status, body)
		return
	}
	log.Printf("http: internal error: %v", err)
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error":   "SERVER_ERROR",
		"message": "Internal server error",
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *statusRecorder) Flush() {
	if flusher, ok := rec.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// withMiddleware wraps the mux with request id assignment, CORS headers and
// an access log line per request.
func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)
		s.setCORSHeaders(w)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		log.Printf(`{"request_id":%q,"method":%q,"path":%q,"status":%d,"duration_ms":%d}`,
			requestID, r.Method, r.URL.Path, rec.status, time.Since(start).Milliseconds())
	})
}

func (s *Server) setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", s.cfg.CORSOrigin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
}

func randomRequestID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(buf)
}
