package daemon

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/ant981228/research-tracker/internal/classify"
	"github.com/ant981228/research-tracker/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The daemon binds to loopback only; the extension connects with a
	// browser-internal origin that never matches the host.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// browserEvent is one message on the ingest stream. Navigation events are
// classified into searches and page visits here so the extension stays a
// dumb pipe.
type browserEvent struct {
	Type      string           `json:"type"`
	URL       string           `json:"url"`
	Title     string           `json:"title,omitempty"`
	TabID     int              `json:"tabId,omitempty"`
	Timestamp int64            `json:"timestamp,omitempty"`
	Metadata  session.Metadata `json:"metadata,omitempty"`
	Note      string           `json:"note,omitempty"`
}

func (s *Server) handleEvents(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	log.Printf("daemon: extension connected from %s", conn.RemoteAddr())
	done := make(chan struct{})
	go s.pingLoop(conn, done)
	s.readEvents(conn, done)
	return nil
}

// readEvents is the read pump. It closes done on exit so the ping loop
// stops as soon as the stream ends instead of waiting out its ticker.
func (s *Server) readEvents(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("daemon: extension stream error: %v", err)
			}
			return
		}

		var ev browserEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			log.Printf("daemon: dropping malformed event: %v", err)
			continue
		}
		s.ingest(context.Background(), ev)
	}
}

func (s *Server) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ingest routes one browser event into the tracker. Failures are logged
// and never propagate to the extension; background capture is best-effort.
func (s *Server) ingest(ctx context.Context, ev browserEvent) {
	switch ev.Type {
	case "navigation":
		s.ingestNavigation(ctx, ev)
	case "metadata":
		if err := s.tracker.UpdateMetadata(ctx, ev.URL, ev.Metadata); err != nil {
			log.Printf("daemon: metadata update failed: %v", err)
		}
	case "note":
		if err := s.tracker.AddNote(ctx, ev.URL, ev.Note); err != nil {
			log.Printf("daemon: note failed: %v", err)
		}
	default:
		log.Printf("daemon: dropping event of unknown type %q", ev.Type)
	}
}

func (s *Server) ingestNavigation(ctx context.Context, ev browserEvent) {
	if s.excluder.IsExcluded(ev.URL) {
		return
	}

	ts := time.Time{}
	if ev.Timestamp > 0 {
		ts = time.UnixMilli(ev.Timestamp)
	}

	if cl := classify.ClassifySearch(ev.URL); cl.IsSearch {
		err := s.tracker.LogSearch(ctx, session.SearchInput{
			Engine:    cl.Engine,
			Domain:    cl.Domain,
			Query:     cl.Query,
			Params:    cl.Params,
			URL:       ev.URL,
			TabID:     ev.TabID,
			Timestamp: ts,
		})
		if err != nil {
			log.Printf("daemon: search log failed: %v", err)
		}
		return
	}

	err := s.tracker.LogPageVisit(ctx, session.PageVisitInput{
		URL:       ev.URL,
		Title:     ev.Title,
		TabID:     ev.TabID,
		Timestamp: ts,
	})
	if err != nil {
		log.Printf("daemon: page visit log failed: %v", err)
	}
}
