package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"pricewatch/internal/domain"
	"pricewatch/internal/idhash"
)

// WSFeedConfig configures WebSocket feed behavior.
type WSFeedConfig struct {
	// ReconnectDelay is initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// Buffer is the capacity of the emitted observation channel.
	Buffer int
}

// DefaultWSFeedConfig returns default feed configuration.
func DefaultWSFeedConfig() WSFeedConfig {
	return WSFeedConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		Buffer:            100,
	}
}

// WSFeedSource provides a push stream of observations from a source that
// publishes price updates over WebSocket, for the continuous runner. Unlike
// pull adapters, a feed has no per-target retry; the source reconnects with
// backoff when the connection drops.
type WSFeedSource struct {
	source   string
	endpoint string
	config   WSFeedConfig
	logger   *log.Logger
}

// NewWSFeedSource creates a new WebSocket feed source for one source name.
func NewWSFeedSource(source, endpoint string, config *WSFeedConfig, logger *log.Logger) *WSFeedSource {
	cfg := DefaultWSFeedConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.Default()
	}
	return &WSFeedSource{
		source:   source,
		endpoint: endpoint,
		config:   cfg,
		logger:   logger,
	}
}

// feedMessage is the wire shape of one price update on the feed.
type feedMessage struct {
	ID           string  `json:"id"`
	Price        float64 `json:"price"`
	Currency     string  `json:"currency"`
	Availability bool    `json:"availability"`
	ObservedAt   int64   `json:"observed_at"` // Unix milliseconds
}

// Subscribe connects to the feed and returns a channel of observations.
// The channel is closed when the context is cancelled. Connection drops are
// retried internally with exponential backoff; messages that fail to decode
// are logged and skipped.
func (s *WSFeedSource) Subscribe(ctx context.Context) (<-chan *domain.Observation, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("ws feed %s: %w", s.source, err)
	}

	out := make(chan *domain.Observation, s.config.Buffer)

	go func() {
		defer close(out)
		defer conn.Close()

		delay := s.config.ReconnectDelay
		for {
			if ctx.Err() != nil {
				return
			}

			conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
			_, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Printf("[ws-feed %s] read error, reconnecting in %v: %v", s.source, delay, err)
				conn.Close()

				if err := sleepCtx(ctx, delay); err != nil {
					return
				}
				delay *= 2
				if delay > s.config.MaxReconnectDelay {
					delay = s.config.MaxReconnectDelay
				}

				next, dialErr := s.dial(ctx)
				if dialErr != nil {
					s.logger.Printf("[ws-feed %s] reconnect failed: %v", s.source, dialErr)
					continue
				}
				conn = next
				continue
			}
			delay = s.config.ReconnectDelay

			var msg feedMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				s.logger.Printf("[ws-feed %s] skipping undecodable message: %v", s.source, err)
				continue
			}
			if msg.ID == "" {
				continue
			}

			o := &domain.Observation{
				Source:     s.source,
				ProductKey: idhash.ProductKey(s.source, msg.ID),
				Price:      msg.Price,
				Currency:   msg.Currency,
				Available:  msg.Availability,
				ObservedAt: msg.ObservedAt,
			}

			select {
			case out <- o:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// dial establishes the WebSocket connection.
func (s *WSFeedSource) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}
