package room

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Control message types exchanged as JSON text frames. Audio travels as
// binary frames of little-endian 16-bit PCM in the negotiated format.
const (
	MsgJoin              = "join"
	MsgJoined            = "joined"
	MsgLeave             = "leave"
	MsgParticipantJoined = "participant_joined"
	MsgParticipantLeft   = "participant_left"
	MsgError             = "error"
)

// Participant is a remote member of a room.
type Participant struct {
	Identity string `json:"identity"`
	SID      string `json:"sid,omitempty"`
	Name     string `json:"name,omitempty"`
}

// AudioFormat describes the PCM shape of binary frames.
type AudioFormat struct {
	Encoding     string `json:"encoding"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
}

// JoinRequest is the first frame a client sends.
type JoinRequest struct {
	Type      string      `json:"type"`
	Room      string      `json:"room"`
	Token     string      `json:"token"`
	Subscribe string      `json:"subscribe"`
	Audio     AudioFormat `json:"audio"`
}

// ServerMessage is any control frame sent by the room server.
type ServerMessage struct {
	Type         string        `json:"type"`
	Room         string        `json:"room,omitempty"`
	Participants []Participant `json:"participants,omitempty"`
	Participant  *Participant  `json:"participant,omitempty"`
	Code         string        `json:"code,omitempty"`
	Message      string        `json:"message,omitempty"`
}

// DecodeError reports a malformed control frame.
type DecodeError struct {
	Code    string
	Message string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// DecodeServerMessage parses and validates a control frame.
func DecodeServerMessage(data []byte) (ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ServerMessage{}, &DecodeError{Code: "bad_request", Message: "invalid json"}
	}
	msg.Type = strings.TrimSpace(msg.Type)
	switch msg.Type {
	case MsgJoined, MsgError:
	case MsgParticipantJoined, MsgParticipantLeft:
		if msg.Participant == nil || strings.TrimSpace(msg.Participant.Identity) == "" {
			return ServerMessage{}, &DecodeError{Code: "bad_request", Message: msg.Type + " requires participant.identity"}
		}
	case "":
		return ServerMessage{}, &DecodeError{Code: "bad_request", Message: "missing type"}
	default:
		return ServerMessage{}, &DecodeError{Code: "unsupported", Message: "unknown message type " + msg.Type}
	}
	return msg, nil
}
