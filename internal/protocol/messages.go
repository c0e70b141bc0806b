// Package protocol defines the JSON messages exchanged over the
// websocket channel: room control, chat, and WebRTC signaling
// envelopes. The relay forwards signaling payloads without
// interpreting them; SDP and ICE fields are only checked for presence.
package protocol

import (
	"encoding/json"
	"errors"

	"github.com/pion/webrtc/v4"

	"github.com/streamloop/streamloop/internal/domain"
)

// Inbound message types.
const (
	TypeJoinStream  = "joinStream"
	TypeLeaveStream = "leaveStream"
	TypeChatMessage = "chatMessage"
	TypeStartStream = "startStream"
	TypeStopStream  = "stopStream"
	TypeOffer       = "offer"
	TypeAnswer      = "answer"
	TypeICE         = "ice-candidate"
)

// Outbound message types.
const (
	TypeNewChatMessage = "newChatMessage"
	TypeStreamState    = "streamState"
	TypeError          = "error"
)

var ErrMalformed = errors.New("malformed message")

// Message is the inbound envelope. Only the fields relevant to its
// Type are set; Validate rejects envelopes missing required ones.
type Message struct {
	Type     string `json:"type"`
	StreamID string `json:"streamId,omitempty"`
	Text     string `json:"message,omitempty"`

	// Signaling envelopes. From is stamped by the server on forward;
	// an empty To means "all other sessions" (legacy two-party mode).
	From      string                   `json:"from,omitempty"`
	To        string                   `json:"to,omitempty"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

func Unmarshal(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Message) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Validate checks the fields required for the message type.
func (m *Message) Validate() error {
	switch m.Type {
	case TypeJoinStream, TypeLeaveStream:
		if m.StreamID == "" {
			return ErrMalformed
		}
	case TypeChatMessage:
		if m.StreamID == "" || m.Text == "" {
			return ErrMalformed
		}
	case TypeStartStream, TypeStopStream:
		// no payload
	case TypeOffer, TypeAnswer:
		if m.SDP == "" {
			return ErrMalformed
		}
	case TypeICE:
		if m.Candidate == nil || m.Candidate.Candidate == "" {
			return ErrMalformed
		}
	default:
		return ErrMalformed
	}
	return nil
}

// IsSignal reports whether the message is a WebRTC negotiation envelope.
func (m *Message) IsSignal() bool {
	switch m.Type {
	case TypeOffer, TypeAnswer, TypeICE:
		return true
	}
	return false
}

// SessionDescription builds the typed SDP for an offer or answer
// envelope. Forwarding does not need it; it exists for clients of this
// package that hand the payload to a webrtc.PeerConnection.
func (m *Message) SessionDescription() (webrtc.SessionDescription, error) {
	var t webrtc.SDPType
	switch m.Type {
	case TypeOffer:
		t = webrtc.SDPTypeOffer
	case TypeAnswer:
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, ErrMalformed
	}
	return webrtc.SessionDescription{Type: t, SDP: m.SDP}, nil
}

// ChatEvent is the newChatMessage fan-out sent to every room member.
type ChatEvent struct {
	Type    string             `json:"type"`
	Message domain.ChatMessage `json:"message"`
}

func NewChatEvent(msg domain.ChatMessage) ChatEvent {
	return ChatEvent{Type: TypeNewChatMessage, Message: msg}
}

// StreamStateEvent notifies a broadcaster of a transcode job
// transition ("starting", "running", "failed", or "idle" after an
// explicit stop).
type StreamStateEvent struct {
	Type  string `json:"type"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// ErrorEvent is sent back to a client whose request was rejected.
type ErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func NewErrorEvent(reason string) ErrorEvent {
	return ErrorEvent{Type: TypeError, Error: reason}
}
