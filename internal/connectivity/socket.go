package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

const (
	initialDialBackoff = 500 * time.Millisecond
	maxDialBackoff     = 30 * time.Second
	defaultPingEvery   = 10 * time.Second
	pingTimeout        = 5 * time.Second
)

// SocketWatcher drives a Monitor from the lifetime of a websocket connection
// to the remote: online from a successful dial until the connection drops or a
// ping goes unanswered. While disconnected it redials with exponential backoff.
type SocketWatcher struct {
	url     string
	header  http.Header
	client  *http.Client
	monitor *Monitor
	logger  *slog.Logger

	pingEvery      time.Duration
	initialBackoff time.Duration
	maxBackoff     time.Duration
	sleepFunc      func(ctx context.Context, d time.Duration) error
}

// NewSocketWatcher returns a SocketWatcher for url (ws, wss, http or https).
// header is sent with every dial, typically carrying the bearer token.
func NewSocketWatcher(monitor *Monitor, url string, header http.Header, client *http.Client, logger *slog.Logger) *SocketWatcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &SocketWatcher{
		url:            url,
		header:         header,
		client:         client,
		monitor:        monitor,
		logger:         logger,
		pingEvery:      defaultPingEvery,
		initialBackoff: initialDialBackoff,
		maxBackoff:     maxDialBackoff,
		sleepFunc:      timeSleep,
	}
}

// Run dials, holds and redials until ctx is canceled. It returns nil.
func (w *SocketWatcher) Run(ctx context.Context) error {
	w.logger.Info("connectivity socket watcher starting", slog.String("url", w.url))

	backoff := w.initialBackoff

	for {
		conn, _, err := websocket.Dial(ctx, w.url, &websocket.DialOptions{
			HTTPHeader: w.header,
			HTTPClient: w.client,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			w.monitor.Set(false)
			w.logger.Debug("socket dial failed, backing off",
				slog.String("error", err.Error()),
				slog.Duration("backoff", backoff),
			)

			if sleepErr := w.sleepFunc(ctx, backoff); sleepErr != nil {
				return nil
			}

			backoff = min(backoff*2, w.maxBackoff)

			continue
		}

		backoff = w.initialBackoff
		w.monitor.Set(true)

		reason := w.hold(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}

		w.logger.Info("socket connection lost", slog.String("reason", reason))
		w.monitor.Set(false)
	}
}

// hold blocks while conn is healthy and returns why it stopped.
func (w *SocketWatcher) hold(ctx context.Context, conn *websocket.Conn) string {
	defer conn.CloseNow()

	// CloseRead keeps reading control frames so pongs are processed; the
	// returned context ends when the peer closes the connection.
	readCtx := conn.CloseRead(ctx)

	ticker := time.NewTicker(w.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-readCtx.Done():
			if ctx.Err() != nil {
				conn.Close(websocket.StatusNormalClosure, "")
			}

			return "closed"
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := conn.Ping(pingCtx)
			cancel()

			if err != nil {
				return "ping: " + err.Error()
			}
		}
	}
}
