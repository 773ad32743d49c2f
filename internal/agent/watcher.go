package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	ws "github.com/coder/websocket"
	"github.com/sethvargo/go-retry"

	"github.com/tuckborough/haven/internal/events"
)

// Fibonacci growth from 1s capped at 30s keeps reconnects prompt without
// hammering a server that just came back.
const (
	reconnectBase = time.Second
	reconnectCap  = 30 * time.Second
	dialTimeout   = 10 * time.Second
)

// Hooks are the callbacks a Watcher drives. All are optional.
type Hooks struct {
	// OnUp runs after each successful connect. The queue's
	// connectivity-restored sync trigger hangs off this.
	OnUp func()

	// OnDown runs when an established connection drops.
	OnDown func()

	// OnEvent runs for every event the server pushes.
	OnEvent func(events.Event)
}

// Watcher holds a live event-stream connection to the server and treats it
// as the device's connectivity signal.
type Watcher struct {
	url    string
	token  string
	hooks  Hooks
	logger *slog.Logger
}

// NewWatcher builds a watcher for the server's /ws endpoint. serverURL is
// the plain http(s) base URL.
func NewWatcher(serverURL, token string, hooks Hooks, logger *slog.Logger) *Watcher {
	return &Watcher{
		url:    strings.TrimRight(serverURL, "/") + "/ws",
		token:  token,
		hooks:  hooks,
		logger: logger,
	}
}

// Run dials, listens, and redials until ctx is cancelled. Dial attempts back
// off; an established connection resets the backoff.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		conn, err := w.dial(ctx)
		if err != nil {
			return err
		}

		w.logger.Info("connected", "url", w.url)
		if w.hooks.OnUp != nil {
			w.hooks.OnUp()
		}

		w.listen(ctx, conn)

		if w.hooks.OnDown != nil {
			w.hooks.OnDown()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		w.logger.Warn("connection lost, reconnecting")
	}
}

// dial retries until a connection is established or ctx ends. Every dial
// error is retryable from the agent's point of view; the device is simply
// offline until one succeeds.
func (w *Watcher) dial(ctx context.Context) (*ws.Conn, error) {
	backoff := retry.WithCappedDuration(reconnectCap, retry.NewFibonacci(reconnectBase))

	var conn *ws.Conn
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		dctx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()

		header := http.Header{}
		header.Set("Authorization", "Bearer "+w.token)

		c, _, err := ws.Dial(dctx, w.url, &ws.DialOptions{HTTPHeader: header})
		if err != nil {
			w.logger.Debug("dial failed", "error", err)
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (w *Watcher) listen(ctx context.Context, conn *ws.Conn) {
	defer conn.Close(ws.StatusNormalClosure, "")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if w.hooks.OnEvent == nil {
			continue
		}
		var ev events.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			w.logger.Warn("bad event payload", "error", err)
			continue
		}
		w.hooks.OnEvent(ev)
	}
}
