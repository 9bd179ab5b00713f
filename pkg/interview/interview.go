// Package interview orchestrates one automated voice interview.
//
// A Session resolves who the interview is for from the room name, pulls
// candidate and job context from the backend, compiles the interviewer
// script, selects speech and language providers, and drives the room and
// conversation engine through a fixed lifecycle:
//
//	Idle → Connecting → AwaitingParticipant → Active → Closing → Terminated
//
// Whatever ends the Active state (the candidate leaving, the hard duration
// ceiling, an engine failure or cancellation) the transcript is extracted
// and persisted exactly once.
package interview

import (
	"context"

	"github.com/vango-go/vai-interviewer/pkg/core/live"
	"github.com/vango-go/vai-interviewer/pkg/core/types"
	"github.com/vango-go/vai-interviewer/pkg/interview/backend"
	"github.com/vango-go/vai-interviewer/pkg/room"
)

// Room is the realtime room transport a session drives. *room.Room
// implements it.
type Room interface {
	live.MediaRoom
	Name() string
	Connect(ctx context.Context, mode room.SubscribeMode) error
	WaitForParticipant(ctx context.Context) (room.Participant, error)
	WaitForParticipantDisconnect(ctx context.Context, identity string) error
	Disconnect(ctx context.Context) error
}

// Engine is the conversation engine. *live.Engine implements it.
type Engine interface {
	Start(ctx context.Context, opts live.StartOptions) error
	GenerateReply(ctx context.Context, instructions string) error
	History() []types.Message
	Subscribe(l live.SpeechListener) func()
	Done() <-chan struct{}
	Err() error
	Close(ctx context.Context) error
}

// BackendAPI is the subset of the backend the orchestrator uses.
// *backend.Client implements it.
type BackendAPI interface {
	GetCandidate(ctx context.Context, id string) (backend.Record, error)
	PutCandidate(ctx context.Context, id string, body map[string]any) error
	GetJob(ctx context.Context, id string) (backend.Record, error)
	GetInterviewContext(ctx context.Context, sessionID string) (backend.InterviewContext, error)
	StopInterview(ctx context.Context, req backend.StopRequest) error
}

var (
	_ Room       = (*room.Room)(nil)
	_ Engine     = (*live.Engine)(nil)
	_ BackendAPI = (*backend.Client)(nil)
)
