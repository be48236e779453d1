package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/romscope/internal/diag"
	"github.com/ayusman/romscope/internal/server/api"
	"github.com/ayusman/romscope/internal/store"
)

const (
	writeWait = 5 * time.Second

	// streamBuffer is how many live lines a client may fall behind by
	// before its stream is closed.
	streamBuffer = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// lineMessage is one diagnostics line sent over the stream.
type lineMessage struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
	Text    string    `json:"text"`
}

// StreamHandler streams the diagnostics of an analysis over WebSocket:
// the backlog first, then live lines until the run finishes.
type StreamHandler struct {
	store  *store.Store
	runner api.Runner
	log    logrus.FieldLogger
	buffer int
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(s *store.Store, runner api.Runner, log logrus.FieldLogger) *StreamHandler {
	return &StreamHandler{store: s, runner: runner, log: log, buffer: streamBuffer}
}

// ServeHTTP handles GET /api/analyses/{id}/stream.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/analyses/"), "/stream")

	var live *diag.Log
	if h.runner != nil {
		live, _ = h.runner.Diagnostics(id)
	}

	var stored []diag.Line
	if live == nil {
		if _, err := h.store.Analyses().GetByID(id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "Analysis not found", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to get analysis", http.StatusInternalServerError)
			return
		}
		lines, err := api.StoredLines(h.store, id)
		if err != nil {
			http.Error(w, "Failed to get log", http.StatusInternalServerError)
			return
		}
		stored = lines
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade error")
		return
	}
	defer conn.Close()

	// Reading detects the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if live == nil {
		h.send(conn, stored)
		h.close(conn)
		return
	}

	backlog, sub := live.Subscribe(h.buffer)
	defer sub.Cancel()

	h.follow(conn, id, backlog, sub, gone)
}

// follow sends the backlog and then live lines until the subscription ends
// or the client goes away.
func (h *StreamHandler) follow(conn *websocket.Conn, id string, backlog []diag.Line, sub *diag.Subscription, gone <-chan struct{}) {
	if !h.send(conn, backlog) {
		return
	}
	for {
		select {
		case line, ok := <-sub.C:
			if !ok {
				if sub.Lagged() {
					h.closeLagged(conn, id)
					return
				}
				h.close(conn)
				return
			}
			if !h.send(conn, []diag.Line{line}) {
				return
			}
		case <-gone:
			return
		}
	}
}

func (h *StreamHandler) send(conn *websocket.Conn, lines []diag.Line) bool {
	for _, l := range lines {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		msg := lineMessage{Time: l.Time, Message: l.Message, Text: l.String()}
		if err := conn.WriteJSON(msg); err != nil {
			return false
		}
	}
	return true
}

func (h *StreamHandler) close(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "analysis finished")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// closeLagged tells a client that fell behind to read the full log instead.
func (h *StreamHandler) closeLagged(conn *websocket.Conn, id string) {
	h.log.WithField("analysis_id", id).Warn("diagnostics stream fell behind, closing")
	msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "lines dropped, read /api/analyses/"+id+"/log")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
