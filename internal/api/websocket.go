package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jobson/jobson-cli/internal/http"
	"github.com/jobson/jobson-cli/internal/models"
)

// Reconnect delays after an idle-timeout closure. The delay resets once a
// message arrives.
const (
	reconnectInitialDelay = 100 * time.Millisecond
	reconnectMaxDelay     = 5 * time.Second
)

// FollowJobEvents calls fn for every job status change until ctx ends or the
// subscription closes. It returns ctx.Err() or an error wrapping
// ErrSubscriptionClosed.
func (c *Client) FollowJobEvents(ctx context.Context, fn func(models.JobEvent)) error {
	return c.follow(ctx, "/v1/jobs/events", func(msg []byte) {
		var ev models.JobEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			c.log.Warn().Err(err).Msg("Ignoring malformed job event")
			return
		}
		fn(ev)
	})
}

// FollowJobStdout calls fn with each chunk written to the job's stdout.
func (c *Client) FollowJobStdout(ctx context.Context, jobID string, fn func([]byte)) error {
	return c.follow(ctx, jobPath(jobID, "stdout", "updates"), fn)
}

// FollowJobStderr calls fn with each chunk written to the job's stderr.
func (c *Client) FollowJobStderr(ctx context.Context, jobID string, fn func([]byte)) error {
	return c.follow(ctx, jobPath(jobID, "stderr", "updates"), fn)
}

// websocketURL maps the API base URL onto the ws or wss scheme.
func (c *Client) websocketURL(path string) string {
	u := c.baseURL + path
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

// follow keeps a websocket subscription open. The server closes idle sockets
// with 1001 (going away); those are reopened transparently. Any other closure
// ends the subscription.
func (c *Client) follow(ctx context.Context, path string, onMessage func([]byte)) error {
	wsURL := c.websocketURL(path)
	header := nethttp.Header{}
	c.authenticate(header)

	attempt := 0
	for {
		conn, resp, err := c.wsDialer.DialContext(ctx, wsURL, header)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if resp != nil {
				resp.Body.Close()
				return fmt.Errorf("%w: %s returned HTTP %d", ErrSubscriptionClosed, path, resp.StatusCode)
			}
			return fmt.Errorf("%w: %v", ErrSubscriptionClosed, err)
		}
		c.log.Debug().Str("path", path).Msg("Subscribed")

		received, err := readMessages(ctx, conn, onMessage)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
			c.log.Debug().Err(err).Str("path", path).Msg("Subscription closed")
			return fmt.Errorf("%w: %v", ErrSubscriptionClosed, err)
		}

		if received {
			attempt = 0
		}
		attempt++
		delay := http.CalculateBackoff(attempt, reconnectInitialDelay, reconnectMaxDelay)
		c.log.Debug().Str("path", path).Dur("delay", delay).Msg("Idle timeout, reconnecting")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// readMessages delivers messages until the connection fails or ctx ends, and
// reports whether any message arrived.
func readMessages(ctx context.Context, conn *websocket.Conn, onMessage func([]byte)) (bool, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	received := false
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return received, err
		}
		received = true
		onMessage(msg)
	}
}

// IsSubscriptionClosed reports whether err ended a subscription.
func IsSubscriptionClosed(err error) bool {
	return errors.Is(err, ErrSubscriptionClosed)
}
