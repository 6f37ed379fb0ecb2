package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/trainmap/trainmap/pkg/streaming"
)

const (
	outboxSize     = 4096
	ackBufferSize  = 16
	maxRedials     = 10
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	ackTimeout     = 10 * time.Second
)

var errLinkClosed = errors.New("connection closed")

// link owns one logical stream to the map server. A single supervisor
// goroutine runs sessions back to back: it is the only writer on the
// current socket and it redials with backoff when a session fails.
type link struct {
	target string
	dialer *ws.Dialer
	logger *slog.Logger

	outbox chan []byte
	acks   chan streaming.AckMessage

	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu     sync.Mutex
	replay []byte // sent first on every new session

	dropped atomic.Uint64
}

func newLink(logger *slog.Logger) *link {
	return &link{
		dialer: &ws.Dialer{HandshakeTimeout: writeWait},
		logger: logger,
		outbox: make(chan []byte, outboxSize),
		acks:   make(chan streaming.AckMessage, ackBufferSize),
		stop:   make(chan struct{}),
	}
}

// withSecret appends the shared secret as a query parameter.
func withSecret(rawURL, secret string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid websocket URL: %w", err)
	}
	if secret != "" {
		q := u.Query()
		q.Set("secret", secret)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// open dials synchronously so a bad address fails Init, then hands the
// socket to the supervisor.
func (l *link) open(rawURL, secret string) error {
	target, err := withSecret(rawURL, secret)
	if err != nil {
		return err
	}
	l.target = target

	conn, err := l.dial()
	if err != nil {
		return err
	}
	l.wg.Add(1)
	go l.supervise(conn)
	return nil
}

func (l *link) dial() (*ws.Conn, error) {
	conn, _, err := l.dialer.Dial(l.target, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func (l *link) stopped() bool {
	select {
	case <-l.stop:
		return true
	default:
		return false
	}
}

func (l *link) supervise(conn *ws.Conn) {
	defer l.wg.Done()
	for conn != nil {
		err := l.serve(conn)
		if l.stopped() {
			return
		}
		l.logger.Warn("WebSocket session ended", "error", err)
		conn = l.redial()
	}
}

// serve runs one session until the socket fails or the link is closed.
func (l *link) serve(conn *ws.Conn) error {
	defer conn.Close()

	l.mu.Lock()
	replay := l.replay
	l.mu.Unlock()
	if replay != nil {
		if err := l.write(conn, replay); err != nil {
			return fmt.Errorf("replay route catalog: %w", err)
		}
	}

	readErr := make(chan error, 1)
	go l.read(conn, readErr)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-l.stop:
			_ = conn.WriteControl(ws.CloseMessage,
				ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return nil
		case err := <-readErr:
			return err
		case <-ping.C:
			if err := conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		case data := <-l.outbox:
			if err := l.write(conn, data); err != nil {
				return err
			}
		}
	}
}

func (l *link) write(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

// read forwards server acks until the socket fails.
func (l *link) read(conn *ws.Conn, errc chan<- error) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			errc <- err
			return
		}
		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != "ack" {
			l.logger.Debug("Ignoring server message", "raw", string(message))
			continue
		}
		select {
		case l.acks <- ack:
		default:
			l.logger.Debug("Ack buffer full, dropping", "for", ack.For)
		}
	}
}

// redial returns a fresh socket, or nil once the link is closed or the
// attempts are exhausted.
func (l *link) redial() *ws.Conn {
	backoff := initialBackoff
	for attempt := 1; attempt <= maxRedials; attempt++ {
		select {
		case <-l.stop:
			return nil
		case <-time.After(backoff):
		}

		conn, err := l.dial()
		if err == nil {
			l.logger.Info("WebSocket reconnected", "attempt", attempt)
			return conn
		}
		l.logger.Warn("Reconnect failed", "attempt", attempt, "backoff", backoff, "error", err)
		backoff = min(backoff*2, maxBackoff)
	}
	l.logger.Error("Giving up on WebSocket", "attempts", maxRedials)
	return nil
}

// setReplay stores the message every new session starts with.
func (l *link) setReplay(data []byte) {
	l.mu.Lock()
	l.replay = data
	l.mu.Unlock()
}

// send queues data without blocking. A full outbox drops the message.
func (l *link) send(data []byte) {
	select {
	case l.outbox <- data:
	default:
		if n := l.dropped.Add(1); n == 1 || n%1000 == 0 {
			l.logger.Warn("WebSocket outbox full, dropping messages", "dropped", n)
		}
	}
}

// sendAndWait queues data and blocks until an ack for ackFor arrives.
func (l *link) sendAndWait(data []byte, ackFor string, timeout time.Duration) error {
	if l.stopped() {
		return fmt.Errorf("%w before ack of %q", errLinkClosed, ackFor)
	}
	l.send(data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ack := <-l.acks:
			if ack.For == ackFor {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", ackFor)
		case <-l.stop:
			return fmt.Errorf("%w before ack of %q", errLinkClosed, ackFor)
		}
	}
}

// close stops the supervisor and waits for it. Safe to call repeatedly.
func (l *link) close() error {
	l.closeOnce.Do(func() { close(l.stop) })
	l.wg.Wait()
	return nil
}
