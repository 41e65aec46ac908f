// Package app is the HTTP and socket facade of the broker: the producer
// API, the browser pages, both socket upgrades and their polling
// wrappers, plus login, search, export and history endpoints.
package app

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"panehub/server/internal/auth"
	"panehub/server/internal/broker"
	"panehub/server/internal/env"
	"panehub/server/internal/export"
	"panehub/server/internal/history"
	"panehub/server/internal/pane"
	"panehub/server/internal/search"
	"panehub/server/internal/transport"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

const maxBodySize = 256 << 20

type Options struct {
	// BaseURL is the normalized path prefix ("" or "/x").
	BaseURL                  string
	Debug                    bool
	UseFrontendClientPolling bool
	CORSOrigin               string
}

// Services are the collaborators of the facade. Broker is required. A nil
// Gate disables login, a nil History disables the history endpoints.
type Services struct {
	Broker  *broker.Broker
	Gate    *auth.Gate
	Search  *search.Service
	Export  *export.Service
	History *history.Repo
}

type HTTPServer struct {
	broker   *broker.Broker
	gate     *auth.Gate
	search   *search.Service
	export   *export.Service
	history  *history.Repo
	opts     Options
	upgrader websocket.Upgrader
}

func NewHTTPServer(svc Services, opts Options) *HTTPServer {
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "*"
	}
	s := &HTTPServer{
		broker:  svc.Broker,
		gate:    svc.Gate,
		search:  svc.Search,
		export:  svc.Export,
		history: svc.History,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 << 10,
			WriteBufferSize: 32 << 10,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	if s.search == nil {
		s.search = search.NewService(nil, search.NewScan(svc.Broker))
	}
	if s.export == nil {
		s.export = export.NewService(svc.Broker)
	}
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	var h http.Handler = http.HandlerFunc(s.handle)
	if s.opts.BaseURL != "" {
		h = http.StripPrefix(s.opts.BaseURL, h)
	}
	return s.withMiddleware(h)
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "" {
		path = "/"
	}
	get := r.Method == http.MethodGet || r.Method == http.MethodHead
	post := r.Method == http.MethodPost

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if get && path == "/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if get && path == "/ready" {
		s.handleReady(w, r)
		return
	}

	// Login routes (no session required)
	if post && path == "/login" {
		s.handleLogin(w, r)
		return
	}

	if post && path == "/logout" {
		s.handleLogout(w, r)
		return
	}

	if !s.authorized(r) {
		s.deny(w, r, path)
		return
	}

	if post {
		switch path {
		case "/events":
			s.handleEvents(w, r)
			return
		case "/update":
			s.handleUpdate(w, r)
			return
		case "/close":
			s.handleClose(w, r)
			return
		case "/save":
			s.handleSave(w, r)
			return
		case "/fork_env":
			s.handleFork(w, r)
			return
		case "/delete_env":
			s.handleDeleteEnv(w, r)
			return
		case "/win_exists":
			s.handleWinExists(w, r)
			return
		case "/win_hash":
			s.handleWinHash(w, r)
			return
		case "/win_data":
			s.handleWinData(w, r)
			return
		case "/env_state":
			s.handleEnvState(w, r)
			return
		case "/socket_wrap":
			s.handleSocketWrap(w, r, transport.KindSub)
			return
		case "/vis_socket_wrap":
			s.handleSocketWrap(w, r, transport.KindSource)
			return
		}
	}

	if get && path == "/socket" {
		s.serveSocket(w, r, transport.KindSub)
		return
	}

	if get && path == "/vis_socket" {
		s.serveSocket(w, r, transport.KindSource)
		return
	}

	if get && path == "/search" {
		s.handleSearch(w, r)
		return
	}

	if get && path == "/" {
		s.writeIndex(w, r, env.DefaultID, false)
		return
	}

	parts := splitPath(path)
	if len(parts) >= 2 {
		switch {
		case parts[0] == "env" && get:
			s.writeIndex(w, r, env.EscapeID(strings.Join(parts[1:], "/")), false)
			return
		case parts[0] == "env" && post:
			s.handleBindEnv(w, r, strings.Join(parts[1:], "/"))
			return
		case parts[0] == "compare" && get:
			s.writeIndex(w, r, parts[1], true)
			return
		case parts[0] == "compare" && post:
			s.handleBindCompare(w, r, parts[1])
			return
		case parts[0] == "export" && get && len(parts) == 2:
			s.handleExport(w, r, parts[1])
			return
		case parts[0] == "env_history" && get && len(parts) <= 3:
			s.handleHistory(w, r, parts[1:])
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"snapshots": map[string]any{"status": "ok"},
	}

	if err := s.broker.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["snapshots"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	if s.gate != nil {
		checks["sessions"] = map[string]any{"status": "ok"}
		if err := s.gate.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["sessions"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	var args pane.Args
	if err := decodeProducerBody(r, &args); err != nil {
		s.fail(w, r, err)
		return
	}
	win, err := s.broker.Events(r.Context(), args)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeText(w, http.StatusOK, win)
}

func (s *HTTPServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var args pane.Args
	if err := decodeProducerBody(r, &args); err != nil {
		s.fail(w, r, err)
		return
	}
	win, err := s.broker.Update(r.Context(), args)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeText(w, http.StatusOK, win)
}

func (s *HTTPServer) handleClose(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Eid *string `json:"eid"`
		Win *string `json:"win"`
	}
	if err := decodeProducerBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.broker.Close(r.Context(), body.Eid, body.Win); err != nil {
		s.fail(w, r, err)
		return
	}
	writeText(w, http.StatusOK, "")
}

func (s *HTTPServer) handleSave(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Data []string `json:"data"`
	}
	if err := decodeProducerBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	saved, err := s.broker.Save(r.Context(), body.Data)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if saved == nil {
		saved = []string{}
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *HTTPServer) handleFork(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PrevEid string `json:"prev_eid"`
		Eid     string `json:"eid"`
	}
	if err := decodeProducerBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if body.PrevEid == "" || body.Eid == "" {
		s.fail(w, r, clientError("fork_env needs prev_eid and eid"))
		return
	}
	eid, err := s.broker.Fork(r.Context(), body.PrevEid, body.Eid)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeText(w, http.StatusOK, eid)
}

func (s *HTTPServer) handleDeleteEnv(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Eid string `json:"eid"`
	}
	if err := decodeProducerBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if body.Eid == "" {
		s.fail(w, r, clientError("delete_env needs eid"))
		return
	}
	if err := s.broker.DeleteEnv(r.Context(), body.Eid); err != nil {
		s.fail(w, r, err)
		return
	}
	writeText(w, http.StatusOK, "")
}

type winRequest struct {
	Eid *string `json:"eid"`
	Win string  `json:"win"`
}

func (s *HTTPServer) handleWinExists(w http.ResponseWriter, r *http.Request) {
	var body winRequest
	if err := decodeProducerBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	exists, err := s.broker.WinExists(r.Context(), body.Eid, body.Win)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeText(w, http.StatusOK, strconv.FormatBool(exists))
}

func (s *HTTPServer) handleWinHash(w http.ResponseWriter, r *http.Request) {
	var body winRequest
	if err := decodeProducerBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	hash, ok, err := s.broker.WinHash(r.Context(), body.Eid, body.Win)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		hash = "false"
	}
	writeText(w, http.StatusOK, hash)
}

func (s *HTTPServer) handleWinData(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Eid  *string `json:"eid"`
		Win  *string `json:"win"`
		Data any     `json:"data"`
	}
	if err := decodeProducerBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.broker.WinData(r.Context(), body.Eid, body.Win, body.Data)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *HTTPServer) handleEnvState(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Eid *string `json:"eid"`
	}
	if err := decodeProducerBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if body.Eid == nil {
		writeJSON(w, http.StatusOK, s.broker.EnvIDs(r.Context()))
		return
	}
	ids, err := s.broker.EnvPaneIDs(r.Context(), *body.Eid)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

func (s *HTTPServer) handleBindEnv(w http.ResponseWriter, r *http.Request, pathEid string) {
	var body struct {
		Sid string `json:"sid"`
		Eid string `json:"eid"`
	}
	if err := decodeProducerBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	eid := body.Eid
	if eid == "" {
		eid = pathEid
	}
	if err := s.broker.BindEnv(r.Context(), body.Sid, eid); err != nil {
		s.fail(w, r, err)
		return
	}
	writeText(w, http.StatusOK, "")
}

func (s *HTTPServer) handleBindCompare(w http.ResponseWriter, r *http.Request, joined string) {
	var body struct {
		Sid string `json:"sid"`
	}
	if err := decodeProducerBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.broker.BindCompare(r.Context(), body.Sid, joined); err != nil {
		s.fail(w, r, err)
		return
	}
	writeText(w, http.StatusOK, "")
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	q := search.Query{
		Text:  strings.TrimSpace(query.Get("q")),
		Limit: limit,
	}
	if eid := query.Get("eid"); eid != "" {
		q.Eid = env.EscapeID(eid)
	}
	writeJSON(w, http.StatusOK, s.search.Search(q))
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, eid string) {
	format := export.Format(strings.ToLower(r.URL.Query().Get("format")))
	if format == "" {
		format = export.FormatHTML
	}
	result, err := s.export.Export(r.Context(), export.Request{Eid: eid, Format: format})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request, parts []string) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "env history is not enabled", nil)
		return
	}
	eid := env.EscapeID(parts[0])
	if len(parts) == 1 {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		commits, err := s.history.Log(eid, limit)
		if err != nil {
			status, code, message := mapError(err)
			writeError(w, status, code, message, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"eid": eid, "commits": commits})
		return
	}
	body, err := s.history.Snapshot(eid, parts[1])
	if err != nil {
		status, code, message := mapError(err)
		writeError(w, status, code, message, nil)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.gate == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "login is not enabled", nil)
		return
	}
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	token, expiresAt, err := s.gate.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		status, code, message := mapError(err)
		if status >= http.StatusInternalServerError {
			logRequestError(r, "login failed: %v", err)
		}
		writeError(w, status, code, message, nil)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     s.cookiePath(),
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"username":  body.Username,
		"expiresAt": expiresAt.UTC().Format(time.RFC3339),
	})
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.gate != nil {
		if cookie, err := r.Cookie(auth.CookieName); err == nil {
			if err := s.gate.Logout(r.Context(), cookie.Value); err != nil {
				logRequestError(r, "logout: %v", err)
			}
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     s.cookiePath(),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) cookiePath() string {
	if s.opts.BaseURL == "" {
		return "/"
	}
	return s.opts.BaseURL
}

// authorized reports whether r may use the broker. Every request is
// allowed when login is disabled.
func (s *HTTPServer) authorized(r *http.Request) bool {
	if s.gate == nil {
		return true
	}
	cookie, err := r.Cookie(auth.CookieName)
	if err != nil {
		return false
	}
	if _, err := s.gate.Check(r.Context(), cookie.Value); err != nil {
		if !errors.Is(err, auth.ErrInvalidToken) && !errors.Is(err, auth.ErrExpiredToken) {
			logRequestError(r, "session lookup failed: %v", err)
		}
		return false
	}
	return true
}

// deny answers a request without a valid login cookie: sockets are
// upgraded and closed, pages show the login form, the API gets a 400.
func (s *HTTPServer) deny(w http.ResponseWriter, r *http.Request, path string) {
	get := r.Method == http.MethodGet || r.Method == http.MethodHead
	switch {
	case path == "/socket" || path == "/vis_socket":
		s.rejectSocket(w, r)
	case get && isPage(path):
		s.writeLogin(w)
	default:
		writeError(w, http.StatusBadRequest, broker.CodeUnauthorized, "login required", nil)
	}
}

func isPage(path string) bool {
	return path == "/" || strings.HasPrefix(path, "/env/") || strings.HasPrefix(path, "/compare/")
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.opts.CORSOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		glog.V(1).Infof(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return id
}

func logRequestWarning(r *http.Request, format string, args ...any) {
	glog.Warningf("[%s] %s", requestID(r), fmt.Sprintf(format, args...))
}

func logRequestError(r *http.Request, format string, args ...any) {
	glog.Errorf("[%s] %s", requestID(r), fmt.Sprintf(format, args...))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func clientError(format string, args ...any) *broker.Error {
	return &broker.Error{Status: http.StatusOK, Code: broker.CodeClientRequest, Message: fmt.Sprintf(format, args...)}
}

// decodeBody decodes a strict JSON body. An empty body leaves target
// untouched.
func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// decodeProducerBody decodes a body written by a producer library, which
// may carry bare NaN and Infinity tokens. Malformed JSON is a client
// request error.
func decodeProducerBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return clientError("read body: %v", err)
	}
	body = sanitizeNonFinite(body)
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, target); err != nil {
		return clientError("invalid JSON body: %v", err)
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
