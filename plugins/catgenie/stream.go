package catgenie

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
	streamBuffer     = 4
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// StreamMessage is one frame pushed to websocket subscribers.
type StreamMessage struct {
	Available bool      `json:"available"`
	Devices   Snapshots `json:"devices"`
	SentAt    time.Time `json:"sentAt"`
}

// Stream pushes snapshots to websocket clients after every tick.
type Stream struct {
	coord *Coordinator
	log   zerolog.Logger

	mu     sync.Mutex
	subs   map[chan StreamMessage]struct{}
	closed bool
}

func NewStream(coord *Coordinator, logger zerolog.Logger) *Stream {
	return &Stream{
		coord: coord,
		log:   logger.With().Str("component", "catgenie_stream").Logger(),
		subs:  make(map[chan StreamMessage]struct{}),
	}
}

// Attach registers the stream as a coordinator listener.
func (s *Stream) Attach() func() {
	return s.coord.AddListener(s.broadcast)
}

// Close disconnects every subscriber.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for ch := range s.subs {
		close(ch)
		delete(s.subs, ch)
	}
}

func (s *Stream) message() StreamMessage {
	data, _ := s.coord.Data()
	if data == nil {
		data = Snapshots{}
	}
	return StreamMessage{
		Available: s.coord.LastUpdateSuccess(),
		Devices:   data,
		SentAt:    time.Now().UTC(),
	}
}

func (s *Stream) broadcast() {
	msg := s.message()
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- msg:
		default:
			s.log.Debug().Msg("dropping frame for slow subscriber")
		}
	}
}

func (s *Stream) subscribe() (chan StreamMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	ch := make(chan StreamMessage, streamBuffer)
	s.subs[ch] = struct{}{}
	return ch, true
}

func (s *Stream) unsubscribe(ch chan StreamMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
}

// Subscribers reports the number of connected clients.
func (s *Stream) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ch, ok := s.subscribe()
	if !ok {
		http.Error(w, "stream closed", http.StatusServiceUnavailable)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.unsubscribe(ch)
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	defer s.unsubscribe(ch)

	done := make(chan struct{})
	go s.readPump(conn, done)

	if err := s.write(conn, s.message()); err != nil {
		return
	}

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case msg, ok := <-ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(streamWriteWait))
				return
			}
			if err := s.write(conn, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames so pongs and close frames are processed.
func (s *Stream) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Stream) write(conn *websocket.Conn, msg StreamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := conn.WriteJSON(msg); err != nil {
		s.log.Debug().Err(err).Msg("stream write failed")
		return err
	}
	return nil
}
