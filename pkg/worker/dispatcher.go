package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/vai-interviewer/pkg/core"
)

// Dispatcher message types.
const (
	MsgRegister   = "register"
	MsgRegistered = "registered"
	MsgAssignment = "assignment"
	MsgAccepted   = "accepted"
	MsgRejected   = "rejected"
	MsgFinished   = "finished"
	MsgError      = "error"
)

// Message is one JSON frame on the dispatcher connection.
type Message struct {
	Type      string `json:"type"`
	WorkerID  string `json:"worker_id,omitempty"`
	Capacity  int    `json:"capacity,omitempty"`
	Active    int    `json:"active,omitempty"`
	JobID     string `json:"job_id,omitempty"`
	Room      string `json:"room,omitempty"`
	Reason    string `json:"reason,omitempty"`
	EndReason string `json:"end_reason,omitempty"`
	Persisted bool   `json:"persisted,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Dispatcher keeps a websocket connection to the job dispatcher, feeds
// assignments to a Worker and reports how they finish. It reconnects with
// backoff until its context ends.
type Dispatcher struct {
	URL    string
	Worker *Worker
	Header http.Header
	Dialer *websocket.Dialer
	Logger *slog.Logger

	ReconnectMin  time.Duration
	ReconnectMax  time.Duration
	PingInterval  time.Duration
	WriteTimeout  time.Duration
	HandshakeWait time.Duration

	connected atomic.Bool

	mu      sync.Mutex
	conn    *websocket.Conn
	pending []Message
}

// Connected reports whether the dispatcher acknowledged registration on
// the current connection.
func (d *Dispatcher) Connected() bool { return d.connected.Load() }

// Run connects and serves until ctx ends. It returns nil on cancellation.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.Worker == nil {
		return core.NewConfigurationError("dispatcher.run", errors.New("no worker"))
	}
	if d.URL == "" {
		return core.NewConfigurationError("dispatcher.run", errors.New("dispatch url is empty"))
	}

	backoff := d.reconnectMin()
	for {
		started := time.Now()
		err := d.serve(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(started) > d.reconnectMax() {
			backoff = d.reconnectMin()
		}
		d.logger().Warn("dispatcher connection lost", "error", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, d.reconnectMax())
	}
}

func (d *Dispatcher) serve(ctx context.Context) error {
	dialer := d.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: d.handshakeWait()}
	}
	conn, _, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		return core.NewTransportError("dispatcher.dial", err)
	}
	defer conn.Close()

	if err := d.register(conn); err != nil {
		return err
	}

	d.mu.Lock()
	d.conn = conn
	pending := d.pending
	d.pending = nil
	d.mu.Unlock()
	d.connected.Store(true)
	d.logger().Info("registered with dispatcher", "url", d.URL)

	defer func() {
		d.connected.Store(false)
		d.mu.Lock()
		if d.conn == conn {
			d.conn = nil
		}
		d.mu.Unlock()
	}()

	for _, msg := range pending {
		d.send(msg)
	}

	stop := make(chan struct{})
	defer close(stop)
	go d.keepalive(ctx, conn, stop)

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return core.NewTransportError("dispatcher.read", err)
		}
		switch msg.Type {
		case MsgAssignment:
			d.assign(ctx, msg)
		case MsgError:
			d.logger().Warn("dispatcher error", "error", msg.Error)
		default:
			d.logger().Debug("ignoring dispatcher message", "type", msg.Type)
		}
	}
}

func (d *Dispatcher) register(conn *websocket.Conn) error {
	_ = conn.SetWriteDeadline(time.Now().Add(d.writeTimeout()))
	err := conn.WriteJSON(Message{
		Type:     MsgRegister,
		WorkerID: d.Worker.ID(),
		Capacity: d.Worker.Capacity(),
		Active:   d.Worker.Active(),
	})
	if err != nil {
		return core.NewTransportError("dispatcher.register", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(d.handshakeWait()))
	var ack Message
	if err := conn.ReadJSON(&ack); err != nil {
		return core.NewTransportError("dispatcher.register", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	switch ack.Type {
	case MsgRegistered:
		return nil
	case MsgError:
		return core.NewTransportError("dispatcher.register", fmt.Errorf("rejected: %s", ack.Error))
	default:
		return core.NewTransportError("dispatcher.register", fmt.Errorf("unexpected %q", ack.Type))
	}
}

func (d *Dispatcher) keepalive(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(d.pingInterval())
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			d.mu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "worker shutting down"),
				time.Now().Add(d.writeTimeout()))
			d.mu.Unlock()
			_ = conn.Close()
			return
		case <-ticker.C:
			d.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(d.writeTimeout()))
			d.mu.Unlock()
			if err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func (d *Dispatcher) assign(ctx context.Context, msg Message) {
	a := Assignment{JobID: msg.JobID, Room: msg.Room}
	if a.Room == "" {
		d.send(Message{Type: MsgRejected, JobID: a.JobID, Reason: "missing room"})
		return
	}

	err := d.Worker.Start(ctx, a, d.report)
	switch {
	case err == nil:
		d.send(Message{Type: MsgAccepted, JobID: a.JobID, Room: a.Room})
	case errors.Is(err, ErrAtCapacity):
		d.send(Message{Type: MsgRejected, JobID: a.JobID, Room: a.Room, Reason: "at_capacity"})
	case errors.Is(err, ErrDraining):
		d.send(Message{Type: MsgRejected, JobID: a.JobID, Room: a.Room, Reason: "draining"})
	case errors.Is(err, ErrDuplicateJob):
		d.send(Message{Type: MsgRejected, JobID: a.JobID, Room: a.Room, Reason: "duplicate"})
	default:
		d.send(Message{Type: MsgRejected, JobID: a.JobID, Room: a.Room, Reason: err.Error()})
	}
}

func (d *Dispatcher) report(res Result) {
	msg := Message{
		Type:      MsgFinished,
		JobID:     res.JobID,
		Room:      res.Room,
		EndReason: string(res.Outcome.EndReason),
		Persisted: res.Outcome.Persisted,
	}
	if res.Err != nil {
		msg.Error = res.Err.Error()
	}
	d.send(msg)
}

// send writes msg on the current connection. Finished reports that cannot
// be written are kept and flushed after the next registration.
func (d *Dispatcher) send(msg Message) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn != nil {
		_ = d.conn.SetWriteDeadline(time.Now().Add(d.writeTimeout()))
		err := d.conn.WriteJSON(msg)
		if err == nil {
			return
		}
		d.logger().Warn("dispatcher write failed", "type", msg.Type, "error", err)
	}
	if msg.Type == MsgFinished {
		d.pending = append(d.pending, msg)
	}
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Dispatcher) reconnectMin() time.Duration {
	if d.ReconnectMin > 0 {
		return d.ReconnectMin
	}
	return time.Second
}

func (d *Dispatcher) reconnectMax() time.Duration {
	if d.ReconnectMax > 0 {
		return d.ReconnectMax
	}
	return 30 * time.Second
}

func (d *Dispatcher) pingInterval() time.Duration {
	if d.PingInterval > 0 {
		return d.PingInterval
	}
	return 20 * time.Second
}

func (d *Dispatcher) writeTimeout() time.Duration {
	if d.WriteTimeout > 0 {
		return d.WriteTimeout
	}
	return 5 * time.Second
}

func (d *Dispatcher) handshakeWait() time.Duration {
	if d.HandshakeWait > 0 {
		return d.HandshakeWait
	}
	return 10 * time.Second
}
