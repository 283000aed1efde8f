package client

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/rollcall/internal/attendance"
)

const closeGrace = time.Second

// wsSubscription adapts a WebSocket event stream to attendance.Subscription.
type wsSubscription struct {
	conn   *websocket.Conn
	filter attendance.Filter
	ch     chan attendance.ChangeEvent
	done   chan struct{}
	once   sync.Once
}

func newWSSubscription(conn *websocket.Conn, f attendance.Filter, buffer int) *wsSubscription {
	s := &wsSubscription{
		conn:   conn,
		filter: f,
		ch:     make(chan attendance.ChangeEvent, buffer),
		done:   make(chan struct{}),
	}
	go s.read()
	return s
}

// read decodes frames until the connection fails. Events that do not fit in
// the buffer are dropped, matching the publisher's delivery guarantee.
func (s *wsSubscription) read() {
	defer close(s.done)
	defer close(s.ch)

	for {
		var ev attendance.ChangeEvent
		if err := s.conn.ReadJSON(&ev); err != nil {
			slog.Debug("event stream ended", "error", err)
			return
		}
		select {
		case s.ch <- ev:
		default:
			slog.Debug("event dropped, buffer full", "event", ev.ID)
		}
	}
}

// Events implements attendance.Subscription.
func (s *wsSubscription) Events() <-chan attendance.ChangeEvent {
	return s.ch
}

// Filter returns the filter the stream was opened with.
func (s *wsSubscription) Filter() attendance.Filter {
	return s.filter
}

// Close sends a close frame, drops the connection, and waits for the reader.
func (s *wsSubscription) Close() error {
	var err error
	s.once.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		err = s.conn.Close()
		<-s.done
	})
	return err
}

var _ attendance.Subscription = (*wsSubscription)(nil)
