// Package room is the realtime audio room client used by the interview
// worker. It speaks a small websocket protocol: JSON control frames for
// membership and binary frames for PCM audio.
package room

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/vai-interviewer/pkg/core/voice"
)

var (
	// ErrClosed is returned once the room connection has ended.
	ErrClosed = errors.New("room: closed")
	// ErrNotConnected is returned before Connect succeeds.
	ErrNotConnected = errors.New("room: not connected")
)

// SubscribeMode selects which remote tracks are forwarded.
type SubscribeMode int

const (
	// SubscribeAudioOnly forwards remote audio only.
	SubscribeAudioOnly SubscribeMode = iota
	// SubscribeAll forwards every track the server offers.
	SubscribeAll
)

func (m SubscribeMode) String() string {
	if m == SubscribeAll {
		return "all"
	}
	return "audio"
}

// DefaultIdentity is the participant identity of the interviewer agent.
const DefaultIdentity = "interviewer-agent"

// Config holds connection settings shared by every room of a worker.
type Config struct {
	URL       string
	APIKey    string
	APISecret string
	Identity  string
	Format    voice.Format
	TokenTTL  time.Duration
	// HandshakeTimeout bounds dial plus the join acknowledgement.
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Logger           *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Identity == "" {
		c.Identity = DefaultIdentity
	}
	if c.Format.BytesPerSecond() == 0 {
		c.Format = voice.DefaultFormat()
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = time.Hour
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Room is one connection to a named room.
type Room struct {
	name   string
	cfg    Config
	logger *slog.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex
	audio   chan []byte
	done    chan struct{}

	mu           sync.Mutex
	connected    bool
	closed       bool
	participants map[string]Participant
	order        []string
	changed      chan struct{}

	disconnectOnce sync.Once
}

// New creates an unconnected room handle.
func New(name string, cfg Config) *Room {
	cfg = cfg.withDefaults()
	return &Room{
		name:         name,
		cfg:          cfg,
		logger:       cfg.Logger.With("room", name),
		audio:        make(chan []byte, 256),
		done:         make(chan struct{}),
		participants: make(map[string]Participant),
		changed:      make(chan struct{}),
	}
}

// Name returns the room name.
func (r *Room) Name() string { return r.name }

// Format returns the PCM format of audio frames.
func (r *Room) Format() voice.Format { return r.cfg.Format }

// Connect dials the room server and joins the room.
func (r *Room) Connect(ctx context.Context, mode SubscribeMode) error {
	r.mu.Lock()
	if r.connected || r.closed {
		r.mu.Unlock()
		return fmt.Errorf("room %s: connect called twice", r.name)
	}
	r.mu.Unlock()

	token, err := NewAccessToken(r.cfg.APIKey, r.cfg.APISecret, r.cfg.Identity, r.name, r.cfg.TokenTTL, time.Now())
	if err != nil {
		return err
	}

	u, err := url.Parse(strings.TrimRight(r.cfg.URL, "/") + "/rtc")
	if err != nil {
		return fmt.Errorf("room: parse url: %w", err)
	}
	q := u.Query()
	q.Set("room", r.name)
	u.RawQuery = q.Encode()

	hctx, cancel := context.WithTimeout(ctx, r.cfg.HandshakeTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	dialer := websocket.Dialer{HandshakeTimeout: r.cfg.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(hctx, u.String(), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return fmt.Errorf("room: dial (status %d): %s: %w", resp.StatusCode, strings.TrimSpace(string(body)), err)
		}
		return fmt.Errorf("room: dial: %w", err)
	}

	join := JoinRequest{
		Type:      MsgJoin,
		Room:      r.name,
		Token:     token,
		Subscribe: mode.String(),
		Audio: AudioFormat{
			Encoding:     "pcm_s16le",
			SampleRateHz: r.cfg.Format.SampleRate,
			Channels:     r.cfg.Format.Channels,
		},
	}
	if deadline, ok := hctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.SetReadDeadline(deadline)
	}
	if err := conn.WriteJSON(join); err != nil {
		_ = conn.Close()
		return fmt.Errorf("room: send join: %w", err)
	}

	ack, err := readJoinAck(conn)
	if err != nil {
		_ = conn.Close()
		return err
	}
	_ = conn.SetReadDeadline(time.Time{})
	_ = conn.SetWriteDeadline(time.Time{})

	r.mu.Lock()
	r.conn = conn
	r.connected = true
	for _, p := range ack.Participants {
		r.addLocked(p)
	}
	r.mu.Unlock()

	r.logger.Info("joined room", "participants", len(ack.Participants), "subscribe", mode.String())
	go r.readLoop()
	return nil
}

func readJoinAck(conn *websocket.Conn) (ServerMessage, error) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return ServerMessage{}, fmt.Errorf("room: await join ack: %w", err)
		}
		if mt != websocket.TextMessage {
			continue
		}
		msg, err := DecodeServerMessage(data)
		if err != nil {
			return ServerMessage{}, fmt.Errorf("room: join ack: %w", err)
		}
		switch msg.Type {
		case MsgJoined:
			return msg, nil
		case MsgError:
			return ServerMessage{}, fmt.Errorf("room: join rejected: %s: %s", msg.Code, msg.Message)
		}
	}
}

func (r *Room) readLoop() {
	defer func() {
		r.mu.Lock()
		r.closed = true
		r.broadcastLocked()
		r.mu.Unlock()
		close(r.audio)
		close(r.done)
	}()

	for {
		mt, data, err := r.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, net.ErrClosed) {
				r.logger.Debug("room read ended", "error", err)
			}
			return
		}
		switch mt {
		case websocket.BinaryMessage:
			select {
			case r.audio <- data:
			default:
				r.logger.Debug("dropping remote audio frame, consumer is behind")
			}
		case websocket.TextMessage:
			msg, err := DecodeServerMessage(data)
			if err != nil {
				r.logger.Warn("ignoring malformed room message", "error", err)
				continue
			}
			r.handle(msg)
		}
	}
}

func (r *Room) handle(msg ServerMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch msg.Type {
	case MsgParticipantJoined:
		r.addLocked(*msg.Participant)
		r.logger.Info("participant joined", "identity", msg.Participant.Identity)
	case MsgParticipantLeft:
		r.removeLocked(msg.Participant.Identity)
		r.logger.Info("participant left", "identity", msg.Participant.Identity)
	case MsgError:
		r.logger.Warn("room server error", "code", msg.Code, "message", msg.Message)
	}
}

func (r *Room) addLocked(p Participant) {
	if p.Identity == r.cfg.Identity {
		return
	}
	if _, ok := r.participants[p.Identity]; !ok {
		r.order = append(r.order, p.Identity)
	}
	r.participants[p.Identity] = p
	r.broadcastLocked()
}

func (r *Room) removeLocked(identity string) {
	if _, ok := r.participants[identity]; !ok {
		return
	}
	delete(r.participants, identity)
	for i, id := range r.order {
		if id == identity {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.broadcastLocked()
}

func (r *Room) broadcastLocked() {
	close(r.changed)
	r.changed = make(chan struct{})
}

// Participants returns the remote participants in join order.
func (r *Room) Participants() []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.participants[id])
	}
	return out
}

// WaitForParticipant blocks until a remote participant is present and
// returns the earliest one. It has no timeout of its own.
func (r *Room) WaitForParticipant(ctx context.Context) (Participant, error) {
	for {
		r.mu.Lock()
		if !r.connected {
			r.mu.Unlock()
			return Participant{}, ErrNotConnected
		}
		if len(r.order) > 0 {
			p := r.participants[r.order[0]]
			r.mu.Unlock()
			return p, nil
		}
		if r.closed {
			r.mu.Unlock()
			return Participant{}, ErrClosed
		}
		ch := r.changed
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return Participant{}, ctx.Err()
		case <-ch:
		}
	}
}

// WaitForParticipantDisconnect blocks until identity leaves. It returns
// ErrClosed if the connection ends first.
func (r *Room) WaitForParticipantDisconnect(ctx context.Context, identity string) error {
	for {
		r.mu.Lock()
		if !r.connected {
			r.mu.Unlock()
			return ErrNotConnected
		}
		if _, ok := r.participants[identity]; !ok {
			r.mu.Unlock()
			return nil
		}
		if r.closed {
			r.mu.Unlock()
			return ErrClosed
		}
		ch := r.changed
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Audio returns remote PCM frames. The channel closes with the connection.
func (r *Room) Audio() <-chan []byte { return r.audio }

// PublishAudio sends PCM to the room.
func (r *Room) PublishAudio(ctx context.Context, pcm []byte) error {
	r.mu.Lock()
	conn, connected, closed := r.conn, r.connected, r.closed
	r.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}
	if closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(r.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		return fmt.Errorf("room: publish audio: %w", err)
	}
	return nil
}

// Disconnect leaves the room. It is safe to call more than once and while
// the server is already closing the connection.
func (r *Room) Disconnect(ctx context.Context) error {
	r.mu.Lock()
	conn, connected := r.conn, r.connected
	r.mu.Unlock()
	if !connected {
		return nil
	}

	r.disconnectOnce.Do(func() {
		r.writeMu.Lock()
		deadline := time.Now().Add(r.cfg.WriteTimeout)
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.WriteJSON(map[string]string{"type": MsgLeave})
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		r.writeMu.Unlock()

		select {
		case <-r.done:
		case <-ctx.Done():
		case <-time.After(r.cfg.WriteTimeout):
		}
		_ = conn.Close()
		r.logger.Info("left room")
	})
	<-r.done
	return nil
}

// Done is closed when the connection has ended.
func (r *Room) Done() <-chan struct{} { return r.done }
