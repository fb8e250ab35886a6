package signaling

import (
	"encoding/json"
	"fmt"
)

type messageType string

const (
	messageTypeWelcome            messageType = "Welcome"
	messageTypeUserList           messageType = "UserList"
	messageTypePeerStateChange    messageType = "PeerStateChange"
	messageTypeConnectionRequest  messageType = "ConnectionRequest"
	messageTypeConnectionResponse messageType = "ConnectionResponse"
	messageTypeRTCOffer           messageType = "RTCOffer"
	messageTypeRTCAnswer          messageType = "RTCAnswer"
	messageTypeRTCCandidate       messageType = "RTCCandidate"
)

// Peer states carried by PeerStateChange that affect pairing. Any other state
// string is forwarded to the target but leaves the pairing relation untouched.
const (
	peerStateConnected    = "connected"
	peerStateDisconnected = "disconnected"
)

// user is one entry of a UserList roster broadcast.
type user struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// message is the single wire envelope for all signaling frames. The `type`
// discriminant selects the variant; each variant populates a subset of the
// remaining fields.
//
// Decoding is deliberately lenient about extra fields: clients commonly attach
// a from_id to targeted messages, and targeted frames are forwarded raw, so
// anything we don't model passes through untouched.
type message struct {
	Type messageType `json:"type"`

	// Welcome
	UserID *uint64 `json:"user_id,omitempty"`

	// UserList
	Users []user `json:"users,omitempty"`

	// PeerStateChange, ConnectionResponse
	FromID *uint64 `json:"from_id,omitempty"`
	// PeerStateChange, ConnectionRequest, RTCOffer, RTCAnswer, RTCCandidate
	ToID  *uint64 `json:"to_id,omitempty"`
	State *string `json:"state,omitempty"`

	Offer     *string `json:"offer,omitempty"`
	Answer    *string `json:"answer,omitempty"`
	Candidate *string `json:"candidate,omitempty"`
}

// parseMessage decodes a signaling frame and checks that the fields routing
// depends on are present. It fails closed: an unrecognized discriminant or a
// variant missing its routing fields is an error, and the caller drops the
// frame without surfacing anything to the sender.
func parseMessage(data []byte) (message, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return message{}, err
	}
	if err := msg.validate(); err != nil {
		return message{}, err
	}
	return msg, nil
}

func (m message) validate() error {
	switch m.Type {
	case messageTypeWelcome:
		if m.UserID == nil {
			return fmt.Errorf("welcome message missing user_id")
		}
	case messageTypeUserList:
		// No required fields; an empty roster is well-formed.
	case messageTypePeerStateChange:
		if m.FromID == nil || m.ToID == nil {
			return fmt.Errorf("peer state change missing from_id/to_id")
		}
		if m.State == nil {
			return fmt.Errorf("peer state change missing state")
		}
	case messageTypeConnectionRequest:
		if m.ToID == nil {
			return fmt.Errorf("connection request missing to_id")
		}
	case messageTypeConnectionResponse:
		if m.FromID == nil {
			return fmt.Errorf("connection response missing from_id")
		}
	case messageTypeRTCOffer:
		if m.ToID == nil || m.Offer == nil {
			return fmt.Errorf("rtc offer missing to_id/offer")
		}
	case messageTypeRTCAnswer:
		if m.ToID == nil || m.Answer == nil {
			return fmt.Errorf("rtc answer missing to_id/answer")
		}
	case messageTypeRTCCandidate:
		if m.ToID == nil || m.Candidate == nil {
			return fmt.Errorf("rtc candidate missing to_id/candidate")
		}
	default:
		return fmt.Errorf("unsupported message type %q", m.Type)
	}
	return nil
}

func encodeWelcome(id uint64) []byte {
	return mustEncode(message{Type: messageTypeWelcome, UserID: &id})
}

func encodeUserList(users []user) []byte {
	return mustEncode(message{Type: messageTypeUserList, Users: users})
}

func encodePeerStateChange(fromID, toID uint64, state string) []byte {
	return mustEncode(message{
		Type:   messageTypePeerStateChange,
		FromID: &fromID,
		ToID:   &toID,
		State:  &state,
	})
}

// mustEncode marshals a server-originated message. The message type contains
// nothing that can fail to marshal, so an error here is a programming defect.
func mustEncode(m message) []byte {
	data, err := json.Marshal(m)
	if err != nil {
		panic(fmt.Sprintf("signaling: encode %s message: %v", m.Type, err))
	}
	return data
}
