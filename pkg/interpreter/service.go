package interpreter

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrMaxRetries = errors.New("max connection retries reached")

const (
	maxRetries     = 10
	baseRetryDelay = 2 * time.Second
	maxRetryDelay  = 60 * time.Second

	// Readings arrive at least once per telegram
	readTimeout  = 30 * time.Second
	pingInterval = 15 * time.Second
)

// ListenerURL builds the websocket URL of an interpreter API at host.
func ListenerURL(host string, tls bool) string {
	u := url.URL{Scheme: "ws", Host: host, Path: "/ws"}
	if tls {
		u.Scheme = "wss"
	}
	return u.String()
}

// StartListener manages the websocket connection to the interpreter API and
// calls handle for each reading. It reconnects with exponential backoff and
// returns nil when ctx is done.
func StartListener(ctx context.Context, wsURL string, logger *zap.Logger, handle func(reading *Reading)) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("listener")
	retryCount := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		if retryCount > 0 {
			// Calculate retry delay with exponential backoff
			retryDelay := min(time.Duration(1<<retryCount)*baseRetryDelay, maxRetryDelay)
			logger.Info("Retrying connection",
				zap.Duration("delay", retryDelay), zap.Int("attempt", retryCount+1), zap.Int("max_attempts", maxRetries))
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				logger.Info("Shutting down during retry wait")
				return nil
			}
		}

		logger.Info("Connecting", zap.String("url", wsURL))
		dialer := *websocket.DefaultDialer
		dialer.HandshakeTimeout = 10 * time.Second
		c, _, err := dialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			logger.Warn("Connection failed", zap.Error(err))
			retryCount++
			if retryCount >= maxRetries {
				return ErrMaxRetries
			}
			continue
		}

		logger.Info("Connected, accepting meter readings")
		retryCount = 0

		// Handle the connection until it breaks or we're cancelled
		connectionBroken := handleConnection(ctx, c, logger, handle)
		c.Close()
		if !connectionBroken {
			return nil
		}
		logger.Warn("Connection lost, will retry")
		retryCount = 1
	}
}

func handleConnection(ctx context.Context, c *websocket.Conn, logger *zap.Logger, handle func(reading *Reading)) bool {
	done := make(chan struct{})

	// Set read deadline to detect dead connections
	c.SetReadDeadline(time.Now().Add(readTimeout))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go func() {
		defer close(done)
		for {
			messageType, message, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warn("WebSocket error", zap.Error(err))
				} else {
					logger.Info("Connection closed", zap.Error(err))
				}
				return
			}
			c.SetReadDeadline(time.Now().Add(readTimeout))

			if messageType != websocket.TextMessage {
				logger.Debug("Received unexpected message type", zap.Int("type", messageType))
				continue
			}
			if reading := ReadingFromJsonBytes(message); reading != nil {
				handle(reading)
			} else {
				logger.Warn("Failed to parse meter reading", zap.ByteString("message", message))
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return true
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				logger.Warn("Failed to send ping", zap.Error(err))
			}
		case <-ctx.Done():
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				logger.Debug("Error sending close message", zap.Error(err))
			}

			// Wait for close confirmation or timeout
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return false
		}
	}
}
