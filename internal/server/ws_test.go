package server_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/go-voiceclone/internal/facade"
	"github.com/example/go-voiceclone/internal/server"
)

type wsEvent struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Text      string `json:"text"`
	Final     bool   `json:"final"`
	Error     string `json:"error"`
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/speak/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	return conn
}

func TestSpeakWebsocketStreamsUpdates(t *testing.T) {
	speaker := &stubSpeaker{updates: []facade.Update{
		{RequestID: "req-1", Text: "Hello."},
		{RequestID: "req-1", Text: "Hello. Bye.", Final: true},
	}}
	srv := httptest.NewServer(server.NewHandler(nil, nil, server.WithSpeaker(speaker), server.WithMetrics(server.NewMetrics("ws_test"))))
	defer srv.Close()

	conn := dialWS(t, srv)

	if err := conn.WriteJSON(map[string]string{"text": "Hello. Bye."}); err != nil {
		t.Fatal(err)
	}

	var events []wsEvent
	for len(events) < 3 {
		var ev wsEvent
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read after %d events: %v", len(events), err)
		}
		events = append(events, ev)
	}

	if events[0].Type != "accepted" || events[0].RequestID != "req-1" {
		t.Fatalf("first event = %+v", events[0])
	}
	if events[1].Text != "Hello." || events[1].Final {
		t.Fatalf("second event = %+v", events[1])
	}
	if events[2].Text != "Hello. Bye." || !events[2].Final {
		t.Fatalf("third event = %+v", events[2])
	}
}

func TestSpeakWebsocketReportsBusy(t *testing.T) {
	srv := httptest.NewServer(server.NewHandler(nil, nil, server.WithSpeaker(&stubSpeaker{err: facade.ErrBusy})))
	defer srv.Close()

	conn := dialWS(t, srv)

	if err := conn.WriteJSON(map[string]string{"text": "Hello."}); err != nil {
		t.Fatal(err)
	}

	var ev wsEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != "error" || ev.Error != facade.ErrBusy.Error() {
		t.Fatalf("event = %+v", ev)
	}
}

func TestSpeakWebsocketRejectsReference(t *testing.T) {
	speaker := &stubSpeaker{}
	srv := httptest.NewServer(server.NewHandler(nil, nil, server.WithSpeaker(speaker)))
	defer srv.Close()

	conn := dialWS(t, srv)

	if err := conn.WriteJSON(map[string]string{"text": "Hello.", "reference": "/dev/zero"}); err != nil {
		t.Fatal(err)
	}

	var ev wsEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != "error" || !strings.Contains(ev.Error, "voice id") {
		t.Fatalf("event = %+v", ev)
	}
}
