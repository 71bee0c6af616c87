package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/go-voiceclone/internal/facade"
)

const (
	wsReadLimit    = 64 << 10
	wsReadTimeout  = 120 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// wsEvent is a server message on /v1/speak/ws. Type is "accepted",
// "update" or "error".
type wsEvent struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Text      string `json:"text,omitempty"`
	Final     bool   `json:"final,omitempty"`
	Offline   bool   `json:"offline,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleSpeakWS reads speak requests as JSON text messages and streams the
// typing updates of each back, one request at a time.
func (h *handler) handleSpeakWS(w http.ResponseWriter, r *http.Request) {
	if h.opts.speaker == nil {
		writeError(w, http.StatusNotImplemented, "speech playback is not configured")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	logger := h.log.With(slog.String("request_id", RequestID(r.Context())))
	logger.DebugContext(ctx, "speak websocket connected")

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	write := func(ev wsEvent) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(ev); err != nil {
			return err
		}
		h.countWS("outbound")
		return nil
	}

	for {
		var msg ttsRequest
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.DebugContext(ctx, "speak websocket closed", slog.String("error", err.Error()))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		h.countWS("inbound")

		if _, err := h.checkRequest(&msg); err != nil {
			if write(wsEvent{Type: "error", Error: err.Error()}) != nil {
				return
			}
			continue
		}

		updates := make(chan facade.Update, 4)
		id, err := h.opts.speaker.SpeakRequest(msg.toRequest(), updates)
		h.countSpeak(err)
		if err != nil {
			if write(wsEvent{Type: "error", Error: err.Error()}) != nil {
				return
			}
			continue
		}

		if write(wsEvent{Type: "accepted", RequestID: id}) != nil {
			drain(updates)
			return
		}

		for u := range updates {
			ev := wsEvent{Type: "update", RequestID: u.RequestID, Text: u.Text, Final: u.Final, Offline: u.Offline, Error: u.Error}
			if write(ev) != nil {
				drain(updates)
				return
			}
		}
	}
}

func (h *handler) countWS(direction string) {
	if h.opts.metrics != nil {
		h.opts.metrics.WSMessages.WithLabelValues(direction).Inc()
	}
}

// drain consumes the remaining updates in the background so the facade
// worker never blocks on a departed client.
func drain(updates <-chan facade.Update) {
	go func() {
		for range updates {
		}
	}()
}
