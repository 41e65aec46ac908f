package app

import (
	"encoding/json"
	"net/http"
	"time"

	"panehub/server/internal/transport"
	"panehub/server/internal/util"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

// serveSocket upgrades r and serves one connection of kind until the peer
// leaves.
func (s *HTTPServer) serveSocket(w http.ResponseWriter, r *http.Request, kind transport.Kind) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the request.
		logRequestWarning(r, "%s upgrade failed: %v", kind, err)
		return
	}
	ctx := r.Context()
	c := transport.NewWebSocketConn(util.NewSID(), kind, ws)
	s.broker.OpenConn(ctx, c)
	defer s.broker.CloseConn(kind, c.ID())

	c.ReadLoop(func(frame []byte) {
		if kind == transport.KindSource {
			s.broker.HandleSourceMessage(c.ID(), frame)
			return
		}
		s.broker.HandleSubMessage(ctx, c.ID(), frame)
	})
}

// rejectSocket completes the handshake and closes at once, so browsers see
// a clean close instead of a failed upgrade.
func (s *HTTPServer) rejectSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "login required"),
		time.Now().Add(time.Second))
	_ = ws.Close()
	glog.V(1).Infof("[%s] rejected socket without login", requestID(r))
}

type wrapRequest struct {
	MessageType string          `json:"message_type"`
	Sid         string          `json:"sid"`
	Message     json.RawMessage `json:"message"`
}

// frame returns the posted message. Clients send it as a JSON encoded
// string; a bare object is accepted too.
func (req wrapRequest) frame() ([]byte, error) {
	if len(req.Message) == 0 || req.Message[0] != '"' {
		return req.Message, nil
	}
	var text string
	if err := json.Unmarshal(req.Message, &text); err != nil {
		return nil, err
	}
	return []byte(text), nil
}

var wrapClosed = map[string]any{"success": false, "reason": "closed"}

// handleSocketWrap serves the polling fallback of the socket of kind.
func (s *HTTPServer) handleSocketWrap(w http.ResponseWriter, r *http.Request, kind transport.Kind) {
	var req wrapRequest
	if err := decodeProducerBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	ctx := r.Context()

	switch req.MessageType {
	case "init":
		sid := s.broker.PollInit(ctx, kind)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "sid": sid})
	case "query":
		frames, ok := s.broker.PollQuery(kind, req.Sid)
		if !ok {
			writeJSON(w, http.StatusOK, wrapClosed)
			return
		}
		messages := make([]string, len(frames))
		for i, frame := range frames {
			messages[i] = string(frame)
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "messages": messages})
	case "send":
		frame, err := req.frame()
		if err != nil {
			s.fail(w, r, clientError("invalid message: %v", err))
			return
		}
		if !s.broker.PollSend(ctx, kind, req.Sid, frame) {
			writeJSON(w, http.StatusOK, wrapClosed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	default:
		s.fail(w, r, clientError("unknown message_type %q", req.MessageType))
	}
}
