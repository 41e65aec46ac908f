package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg map[string]any
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return msg
}

func expectCommand(t *testing.T, ws *websocket.Conn, command string) map[string]any {
	t.Helper()
	msg := readMessage(t, ws)
	if msg["command"] != command {
		t.Fatalf("command = %v, want %s (%v)", msg["command"], command, msg)
	}
	return msg
}

func TestSocketRoundTrip(t *testing.T) {
	server, _ := newTestServer(t, Options{}, Services{})
	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	browser := dial(t, srv, "/socket")
	register := expectCommand(t, browser, "register")
	sid, _ := register["data"].(string)
	if sid == "" {
		t.Fatalf("register without sid: %v", register)
	}
	expectCommand(t, browser, "layout_update")
	expectCommand(t, browser, "env_update")

	res, err := http.Post(srv.URL+"/env/main", "application/json", strings.NewReader(`{"sid":"`+sid+`","eid":"main"}`))
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	res.Body.Close()
	expectCommand(t, browser, "layout")

	producer := dial(t, srv, "/vis_socket")
	expectCommand(t, producer, "alive")

	res, err = http.Post(srv.URL+"/events", "application/json", strings.NewReader(textPane))
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	res.Body.Close()
	window := expectCommand(t, browser, "window")
	if window["id"] != "notes" || window["content"] != "hello" {
		t.Fatalf("window = %v", window)
	}
	expectCommand(t, browser, "env_update")

	closeCmd := map[string]any{"cmd": "close", "data": "notes", "eid": "main"}
	if err := browser.WriteJSON(closeCmd); err != nil {
		t.Fatalf("write close: %v", err)
	}
	event := readMessage(t, producer)
	if event["event_type"] != "Close" || event["target"] != "notes" {
		t.Fatalf("producer event = %v", event)
	}
}

func wrap(t *testing.T, server *HTTPServer, path string, body map[string]any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	rr := post(t, server.Handler(), path, string(raw))
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v (%s)", path, err, rr.Body.String())
	}
	return out
}

func TestPollingWrap(t *testing.T) {
	server, _ := newTestServer(t, Options{}, Services{})

	opened := wrap(t, server, "/socket_wrap", map[string]any{"message_type": "init"})
	sid, _ := opened["sid"].(string)
	if opened["success"] != true || sid == "" {
		t.Fatalf("init = %v", opened)
	}

	query := wrap(t, server, "/socket_wrap", map[string]any{"message_type": "query", "sid": sid})
	messages, _ := query["messages"].([]any)
	if len(messages) != 3 {
		t.Fatalf("greeting = %v", query)
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(messages[0].(string)), &first); err != nil || first["command"] != "register" {
		t.Fatalf("first message = %v (%v)", messages[0], err)
	}

	source := wrap(t, server, "/vis_socket_wrap", map[string]any{"message_type": "init"})
	sourceSid, _ := source["sid"].(string)
	wrap(t, server, "/vis_socket_wrap", map[string]any{"message_type": "query", "sid": sourceSid})

	expectText(t, post(t, server.Handler(), "/events", textPane), "notes")
	frame := `{"cmd":"forward_to_vis","data":{"event_type":"KeyPress","target":"notes","eid":"main","key":"a"}}`
	sent := wrap(t, server, "/socket_wrap", map[string]any{"message_type": "send", "sid": sid, "message": frame})
	if sent["success"] != true {
		t.Fatalf("send = %v", sent)
	}

	query = wrap(t, server, "/vis_socket_wrap", map[string]any{"message_type": "query", "sid": sourceSid})
	messages, _ = query["messages"].([]any)
	if len(messages) != 1 {
		t.Fatalf("source messages = %v", query)
	}
	var event map[string]any
	if err := json.Unmarshal([]byte(messages[0].(string)), &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event["event_type"] != "KeyPress" || event["pane_data"] == nil {
		t.Fatalf("event = %v", event)
	}

	closed := wrap(t, server, "/socket_wrap", map[string]any{"message_type": "query", "sid": "unknown"})
	if closed["success"] != false || closed["reason"] != "closed" {
		t.Fatalf("unknown sid = %v", closed)
	}
}
