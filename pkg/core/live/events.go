package live

import "time"

// Speaker identifies who produced a speech event.
type Speaker string

const (
	SpeakerInterviewer Speaker = "interviewer"
	SpeakerCandidate   Speaker = "candidate"
)

// SpeechEventKind distinguishes the start and end of an utterance.
type SpeechEventKind string

const (
	SpeechStarted SpeechEventKind = "speech.started"
	SpeechStopped SpeechEventKind = "speech.stopped"
)

// SpeechEvent is delivered to subscribers when either side starts or stops
// speaking. Text is set on SpeechStopped.
type SpeechEvent struct {
	Kind    SpeechEventKind
	Speaker Speaker
	Text    string
	At      time.Time
}

// SpeechListener receives speech events. It is called synchronously from
// engine goroutines and must not block.
type SpeechListener func(SpeechEvent)
