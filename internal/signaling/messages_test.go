package signaling

import (
	"encoding/json"
	"testing"
)

func TestParseMessage_Variants(t *testing.T) {
	cases := []struct {
		name string
		in   string
		typ  messageType
	}{
		{"peer state change", `{"type":"PeerStateChange","from_id":1,"to_id":2,"state":"connected"}`, messageTypePeerStateChange},
		{"connection request", `{"type":"ConnectionRequest","to_id":5}`, messageTypeConnectionRequest},
		{"connection response", `{"type":"ConnectionResponse","from_id":7}`, messageTypeConnectionResponse},
		{"rtc offer", `{"type":"RTCOffer","to_id":5,"offer":"v=0"}`, messageTypeRTCOffer},
		{"rtc answer", `{"type":"RTCAnswer","to_id":5,"answer":"v=0"}`, messageTypeRTCAnswer},
		{"rtc candidate", `{"type":"RTCCandidate","to_id":5,"candidate":"candidate:1"}`, messageTypeRTCCandidate},
		{"welcome", `{"type":"Welcome","user_id":3}`, messageTypeWelcome},
		{"user list", `{"type":"UserList","users":[{"id":1,"name":"User 1"}]}`, messageTypeUserList},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := parseMessage([]byte(tc.in))
			if err != nil {
				t.Fatalf("parseMessage: %v", err)
			}
			if msg.Type != tc.typ {
				t.Fatalf("expected type %q, got %q", tc.typ, msg.Type)
			}
		})
	}
}

func TestParseMessage_ExtraFieldsTolerated(t *testing.T) {
	// Clients attach a from_id to targeted messages; the decoder must accept
	// it so the raw frame can be forwarded untouched.
	msg, err := parseMessage([]byte(`{"type":"RTCOffer","from_id":7,"to_id":5,"offer":"v=0","via":"relay"}`))
	if err != nil {
		t.Fatalf("parseMessage: %v", err)
	}
	if msg.ToID == nil || *msg.ToID != 5 {
		t.Fatalf("expected to_id 5, got %v", msg.ToID)
	}
}

func TestParseMessage_FailsClosed(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"not json", `offer please`},
		{"unknown discriminant", `{"type":"Hijack","to_id":5}`},
		{"missing discriminant", `{"to_id":5,"offer":"v=0"}`},
		{"offer without target", `{"type":"RTCOffer","offer":"v=0"}`},
		{"offer without sdp", `{"type":"RTCOffer","to_id":5}`},
		{"answer without sdp", `{"type":"RTCAnswer","to_id":5}`},
		{"candidate without payload", `{"type":"RTCCandidate","to_id":5}`},
		{"state change without state", `{"type":"PeerStateChange","from_id":1,"to_id":2}`},
		{"state change without peer", `{"type":"PeerStateChange","from_id":1,"state":"connected"}`},
		{"response without from", `{"type":"ConnectionResponse"}`},
		{"request without target", `{"type":"ConnectionRequest"}`},
		{"welcome without id", `{"type":"Welcome"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parseMessage([]byte(tc.in)); err == nil {
				t.Fatalf("expected parse error for %s", tc.in)
			}
		})
	}
}

func TestEncodeWelcome_Wire(t *testing.T) {
	var decoded struct {
		Type   string `json:"type"`
		UserID uint64 `json:"user_id"`
	}
	if err := json.Unmarshal(encodeWelcome(42), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != "Welcome" || decoded.UserID != 42 {
		t.Fatalf("unexpected welcome frame: %+v", decoded)
	}
}

func TestEncodePeerStateChange_RoundTrips(t *testing.T) {
	data := encodePeerStateChange(1, 2, peerStateDisconnected)
	msg, err := parseMessage(data)
	if err != nil {
		t.Fatalf("parseMessage: %v", err)
	}
	if msg.Type != messageTypePeerStateChange {
		t.Fatalf("expected PeerStateChange, got %q", msg.Type)
	}
	if *msg.FromID != 1 || *msg.ToID != 2 || *msg.State != peerStateDisconnected {
		t.Fatalf("unexpected fields: from=%d to=%d state=%q", *msg.FromID, *msg.ToID, *msg.State)
	}
}

func TestEncodeUserList_KeepsOrder(t *testing.T) {
	data := encodeUserList([]user{{ID: 1, Name: "User 1"}, {ID: 3, Name: "User 3"}})
	var decoded struct {
		Users []user `json:"users"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.Users) != 2 || decoded.Users[0].ID != 1 || decoded.Users[1].ID != 3 {
		t.Fatalf("unexpected users: %+v", decoded.Users)
	}
}
