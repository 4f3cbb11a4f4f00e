package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"experiment-lab/internal/observability"
)

// WSSourceConfig configures WebSocket source behavior.
type WSSourceConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing control frames.
	WriteTimeout time.Duration
	// Buffer is the capacity of the delivered events channel.
	Buffer int
}

// DefaultWSSourceConfig returns default WebSocket source configuration.
func DefaultWSSourceConfig() WSSourceConfig {
	return WSSourceConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		Buffer:            100,
	}
}

// WSSource streams exposure events from a WebSocket feed. Each text message
// carries one JSON-encoded ExposureEvent. The source reconnects with
// exponential backoff when the connection drops and resumes reading; the
// feed is assumed to be resumable, deduplication happens in the Runner.
type WSSource struct {
	endpoint string
	config   WSSourceConfig

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup
}

// NewWSSource creates a WebSocket source for the given endpoint. The
// connection is established on Subscribe.
func NewWSSource(endpoint string, config *WSSourceConfig) *WSSource {
	cfg := DefaultWSSourceConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultWSSourceConfig().Buffer
	}

	return &WSSource{
		endpoint: endpoint,
		config:   cfg,
		done:     make(chan struct{}),
	}
}

// Subscribe dials the endpoint and returns a channel of exposure events.
// It may be called once per source. The channel is closed when the context
// is cancelled or the source is closed.
func (s *WSSource) Subscribe(ctx context.Context) (<-chan *ExposureEvent, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("source closed")
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	events := make(chan *ExposureEvent, s.config.Buffer)

	s.wg.Add(1)
	go s.readLoop(ctx, events)

	s.wg.Add(1)
	go s.pingLoop(ctx)

	return events, nil
}

// connect establishes the WebSocket connection.
func (s *WSSource) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	return nil
}

// Close closes the WebSocket connection and stops the read loop.
func (s *WSSource) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}

	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	return nil
}

// readLoop reads messages from the WebSocket, decodes them, and delivers
// them to the events channel. Connection errors trigger a reconnect with
// exponential backoff.
func (s *WSSource) readLoop(ctx context.Context, events chan<- *ExposureEvent) {
	defer s.wg.Done()
	defer close(events)

	reconnectDelay := s.config.ReconnectDelay

	for {
		if s.closed.Load() || ctx.Err() != nil {
			return
		}

		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			if !s.redial(ctx, &reconnectDelay) {
				return
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() || ctx.Err() != nil {
				return
			}
			log.Printf("[ws] read error: %v", err)
			s.dropConn()
			if !s.redial(ctx, &reconnectDelay) {
				return
			}
			continue
		}

		// Reset delay on successful read
		reconnectDelay = s.config.ReconnectDelay

		event := new(ExposureEvent)
		if err := json.Unmarshal(message, event); err != nil {
			log.Printf("[ws] skipping malformed event: %v", err)
			observability.RecordIngestError("decode")
			continue
		}

		select {
		case events <- event:
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// redial waits for the current backoff delay, doubles it up to the maximum,
// and attempts to reconnect. It returns false when the source is shutting
// down. A failed dial returns true with the connection left nil so the read
// loop retries with the increased delay.
func (s *WSSource) redial(ctx context.Context, delay *time.Duration) bool {
	select {
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	case <-time.After(*delay):
	}

	next := *delay * 2
	if next > s.config.MaxReconnectDelay {
		next = s.config.MaxReconnectDelay
	}
	*delay = next

	if err := s.connect(ctx); err != nil {
		if s.closed.Load() || ctx.Err() != nil {
			return false
		}
		log.Printf("[ws] reconnect failed: %v", err)
		observability.RecordIngestError("connect")
		return true
	}

	log.Printf("[ws] reconnected to %s", s.endpoint)
	return true
}

// dropConn closes and clears the current connection after a read failure.
func (s *WSSource) dropConn() {
	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (s *WSSource) pingLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
				if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
				}
			}
			s.connMu.Unlock()
		}
	}
}

var _ Source = (*WSSource)(nil)
