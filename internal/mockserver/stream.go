package mockserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/jobson/jobson-cli/internal/events"
	"github.com/jobson/jobson-cli/internal/models"
)

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	s.stream(w, r, events.EventJobStatus, func(conn *websocket.Conn, ev events.Event) (bool, error) {
		status, ok := ev.(*events.JobStatusEvent)
		if !ok {
			return false, nil
		}
		return true, conn.WriteJSON(models.JobEvent{JobID: status.JobID, NewStatus: status.Status})
	})
}

func (s *Server) handleOutputUpdates(stream string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "jobID")
		if _, err := s.store.Job(r.Context(), id); err != nil {
			s.storeError(w, id, err)
			return
		}
		s.stream(w, r, events.EventJobOutput, func(conn *websocket.Conn, ev events.Event) (bool, error) {
			out, ok := ev.(*events.JobOutputEvent)
			if !ok || out.JobID != id || out.Stream != stream {
				return false, nil
			}
			return true, conn.WriteMessage(websocket.TextMessage, out.Data)
		})
	}
}

// stream forwards bus events of one type to a websocket until the client
// leaves, the bus closes or nothing was sent for the idle timeout. An idle
// connection is closed with 1001 (going away).
func (s *Server) stream(w http.ResponseWriter, r *http.Request, typ events.EventType, send func(*websocket.Conn, events.Event) (bool, error)) {
	// Subscribe before the handshake completes so a client that acts right
	// after connecting sees the result.
	ch := s.bus.Subscribe(typ)
	defer s.bus.Unsubscribe(typ, ch)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("path", r.URL.Path).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	idle := time.NewTimer(s.opts.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				closeWith(conn, websocket.CloseNormalClosure, "server shutting down")
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			sent, err := send(conn, ev)
			if err != nil {
				s.log.Debug().Err(err).Msg("Websocket write failed")
				return
			}
			if sent {
				idle.Reset(s.opts.IdleTimeout)
			}
		case <-idle.C:
			closeWith(conn, websocket.CloseGoingAway, "idle timeout")
			return
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
}
