package room

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const (
	testKey    = "devkey"
	testSecret = "secret"
)

type fakeServer struct {
	t       *testing.T
	srv     *httptest.Server
	conns   chan *websocket.Conn
	joins   chan JoinRequest
	initial []Participant
}

func newFakeServer(t *testing.T, initial ...Participant) *fakeServer {
	t.Helper()
	fs := &fakeServer{t: t, conns: make(chan *websocket.Conn, 1), joins: make(chan JoinRequest, 1), initial: initial}
	upgrader := websocket.Upgrader{}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rtc" {
			http.NotFound(w, r)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		claims, err := ParseAccessToken(token, testKey, testSecret)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		if claims.Video.Room != r.URL.Query().Get("room") {
			http.Error(w, "room mismatch", http.StatusForbidden)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		var join JoinRequest
		if err := conn.ReadJSON(&join); err != nil {
			t.Errorf("read join: %v", err)
			return
		}
		fs.joins <- join
		participants := append([]Participant{{Identity: DefaultIdentity}}, fs.initial...)
		if err := conn.WriteJSON(ServerMessage{Type: MsgJoined, Room: join.Room, Participants: participants}); err != nil {
			t.Errorf("write joined: %v", err)
			return
		}
		fs.conns <- conn
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func (fs *fakeServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-fs.conns:
		t.Cleanup(func() { _ = c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted a connection")
		return nil
	}
}

func connectRoom(t *testing.T, fs *fakeServer, name string) (*Room, *websocket.Conn) {
	t.Helper()
	r := New(name, Config{URL: fs.url(), APIKey: testKey, APISecret: testSecret, WriteTimeout: 300 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Connect(ctx, SubscribeAudioOnly); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return r, fs.accept(t)
}

func TestRoom_ConnectSendsJoin(t *testing.T) {
	fs := newFakeServer(t)
	r, _ := connectRoom(t, fs, "interview-12-34-1700")
	defer r.Disconnect(context.Background())

	join := <-fs.joins
	if join.Type != MsgJoin || join.Room != "interview-12-34-1700" || join.Subscribe != "audio" {
		t.Fatalf("join = %+v", join)
	}
	if join.Audio.SampleRateHz != 16000 || join.Audio.Channels != 1 {
		t.Fatalf("join audio = %+v", join.Audio)
	}
	if r.Name() != "interview-12-34-1700" {
		t.Fatalf("Name() = %q", r.Name())
	}
}

func TestRoom_ConnectRejectedToken(t *testing.T) {
	fs := newFakeServer(t)
	r := New("x", Config{URL: fs.url(), APIKey: testKey, APISecret: "wrong"})
	err := r.Connect(context.Background(), SubscribeAudioOnly)
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("Connect() error = %v, want 401", err)
	}
	if err := r.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect() on unconnected room = %v", err)
	}
}

func TestRoom_WaitForParticipantAlreadyPresent(t *testing.T) {
	fs := newFakeServer(t, Participant{Identity: "candidate-1", SID: "PA_1"})
	r, _ := connectRoom(t, fs, "phone-screen-abc")
	defer r.Disconnect(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p, err := r.WaitForParticipant(ctx)
	if err != nil {
		t.Fatalf("WaitForParticipant() error = %v", err)
	}
	if p.Identity != "candidate-1" || p.SID != "PA_1" {
		t.Fatalf("participant = %+v", p)
	}
}

func TestRoom_ParticipantLifecycleAndAudio(t *testing.T) {
	fs := newFakeServer(t)
	r, server := connectRoom(t, fs, "interview-7")
	defer r.Disconnect(context.Background())

	got := make(chan Participant, 1)
	go func() {
		p, err := r.WaitForParticipant(context.Background())
		if err != nil {
			t.Errorf("WaitForParticipant() error = %v", err)
		}
		got <- p
	}()

	if err := server.WriteJSON(ServerMessage{Type: MsgParticipantJoined, Participant: &Participant{Identity: "dana"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case p := <-got:
		if p.Identity != "dana" {
			t.Fatalf("participant = %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForParticipant did not return")
	}

	if err := server.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	select {
	case frame := <-r.Audio():
		if len(frame) != 4 {
			t.Fatalf("frame len = %d", len(frame))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no audio frame")
	}

	if err := r.PublishAudio(context.Background(), []byte{9, 9}); err != nil {
		t.Fatalf("PublishAudio() error = %v", err)
	}
	_ = server.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := server.ReadMessage()
	if err != nil || mt != websocket.BinaryMessage || len(data) != 2 {
		t.Fatalf("server read = %d %v %v", mt, data, err)
	}

	left := make(chan error, 1)
	go func() { left <- r.WaitForParticipantDisconnect(context.Background(), "dana") }()
	if err := server.WriteJSON(ServerMessage{Type: MsgParticipantLeft, Participant: &Participant{Identity: "dana"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case err := <-left:
		if err != nil {
			t.Fatalf("WaitForParticipantDisconnect() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForParticipantDisconnect did not return")
	}
}

func TestRoom_DisconnectIsIdempotentAndUnblocksWaiters(t *testing.T) {
	fs := newFakeServer(t, Participant{Identity: "dana"})
	r, server := connectRoom(t, fs, "interview-7")

	// Echo the close handshake like a real server.
	go func() {
		for {
			if _, _, err := server.ReadMessage(); err != nil {
				return
			}
		}
	}()

	waitErr := make(chan error, 1)
	go func() { waitErr <- r.WaitForParticipantDisconnect(context.Background(), "dana") }()

	if err := r.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if err := r.Disconnect(context.Background()); err != nil {
		t.Fatalf("second Disconnect() error = %v", err)
	}

	select {
	case err := <-waitErr:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("WaitForParticipantDisconnect() error = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not released")
	}
	if err := r.PublishAudio(context.Background(), []byte{1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("PublishAudio after disconnect = %v, want ErrClosed", err)
	}
	if _, ok := <-r.Audio(); ok {
		t.Fatal("audio channel should be closed")
	}
}

func TestRoom_NotConnected(t *testing.T) {
	r := New("x", Config{})
	if _, err := r.WaitForParticipant(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("WaitForParticipant() = %v", err)
	}
	if err := r.PublishAudio(context.Background(), nil); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("PublishAudio() = %v", err)
	}
}

func TestDecodeServerMessage(t *testing.T) {
	tests := []struct {
		in      string
		wantErr string
	}{
		{`{"type":"joined","participants":[]}`, ""},
		{`{"type":"participant_left","participant":{"identity":"a"}}`, ""},
		{`{"type":"participant_joined"}`, "bad_request"},
		{`{"type":"whatever"}`, "unsupported"},
		{`{}`, "bad_request"},
		{`nope`, "bad_request"},
	}
	for _, tt := range tests {
		_, err := DecodeServerMessage([]byte(tt.in))
		if tt.wantErr == "" {
			if err != nil {
				t.Errorf("DecodeServerMessage(%s) error = %v", tt.in, err)
			}
			continue
		}
		var de *DecodeError
		if !errors.As(err, &de) || de.Code != tt.wantErr {
			t.Errorf("DecodeServerMessage(%s) error = %v, want code %s", tt.in, err, tt.wantErr)
		}
	}
}

func TestAccessToken_RoundTrip(t *testing.T) {
	now := time.Now()
	tok, err := NewAccessToken(testKey, testSecret, "agent", "room-1", time.Minute, now)
	if err != nil {
		t.Fatalf("NewAccessToken() error = %v", err)
	}
	claims, err := ParseAccessToken(tok, testKey, testSecret)
	if err != nil {
		t.Fatalf("ParseAccessToken() error = %v", err)
	}
	if claims.Subject != "agent" || !claims.Video.RoomJoin || claims.Video.Room != "room-1" || claims.ID == "" {
		t.Fatalf("claims = %+v", claims)
	}
	if _, err := ParseAccessToken(tok, "other", testSecret); err == nil {
		t.Fatal("wrong issuer should fail")
	}
	if _, err := NewAccessToken("", "", "a", "r", time.Minute, now); err == nil {
		t.Fatal("missing credentials should fail")
	}
}
