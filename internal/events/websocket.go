package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/devilkun/joplin/internal/model"
)

const writeTimeout = 5 * time.Second

// wireEvent is the JSON shape pushed to subscribers — a flattened, stable
// wire form independent of the Go Event struct's field names.
type wireEvent struct {
	Kind       string        `json:"kind"`
	Report     *model.Report `json:"report,omitempty"`
	ResourceID string        `json:"resourceId,omitempty"`
	IsFullSync bool          `json:"isFullSync,omitempty"`
	WithErrors bool          `json:"withErrors,omitempty"`
}

func toWire(e Event) wireEvent {
	w := wireEvent{Kind: e.Kind.String(), ResourceID: e.ResourceID, IsFullSync: e.IsFullSync, WithErrors: e.WithErrors}
	if e.Kind == KindReportUpdate {
		r := e.Report
		w.Report = &r
	}

	return w
}

// Publisher is a Dispatcher that fans events out to subscribed
// websocket clients. It completes the config flag the teacher reserves
// (internal/config SyncConfig.Websocket) but never implements — here a
// local subscriber (UI shell, CLI --watch) can observe live progress
// without polling onProgress synchronously in-process.
type Publisher struct {
	logger *slog.Logger

	mu          sync.Mutex
	subscribers map[*websocket.Conn]struct{}
}

// NewPublisher returns an empty Publisher.
func NewPublisher(logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Publisher{logger: logger, subscribers: make(map[*websocket.Conn]struct{})}
}

// ServeHTTP upgrades the request to a websocket connection and keeps it
// registered as a subscriber until the client disconnects.
func (p *Publisher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		p.logger.Warn("websocket accept failed", slog.String("error", err.Error()))
		return
	}

	p.mu.Lock()
	p.subscribers[conn] = struct{}{}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.subscribers, conn)
		p.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	// Block on reads only to detect disconnection; subscribers never
	// send anything meaningful to us.
	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

// Dispatch implements Dispatcher, broadcasting e to every connected
// subscriber as JSON. A slow or gone subscriber is dropped rather than
// blocking the sync run.
func (p *Publisher) Dispatch(e Event) {
	payload, err := json.Marshal(toWire(e))
	if err != nil {
		p.logger.Warn("websocket marshal event failed", slog.String("error", err.Error()))
		return
	}

	p.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(p.subscribers))
	for c := range p.subscribers {
		conns = append(conns, c)
	}
	p.mu.Unlock()

	for _, c := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := c.Write(ctx, websocket.MessageText, payload); err != nil {
			p.logger.Debug("websocket subscriber write failed, dropping", slog.String("error", err.Error()))

			p.mu.Lock()
			delete(p.subscribers, c)
			p.mu.Unlock()
		}
		cancel()
	}
}
