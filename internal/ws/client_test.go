// Nuntius - Realtime Messaging and Presence Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nuntius

package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/nuntius/internal/relay"
)

func rawPayload(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func joinClient(t *testing.T, hub *Hub, client *Client, identity string) {
	t.Helper()
	client.dispatch(inboundFrame{Type: EventJoin, Data: rawPayload(t, map[string]string{"identity": identity})})
	msg := recvEvent(t, client)
	if msg.Type != EventJoined {
		t.Fatalf("join ack = %s (%+v), want %s", msg.Type, msg.Data, EventJoined)
	}
}

func TestClientJoin(t *testing.T) {
	hub, st := setupHub(t)
	client := newTestClient(hub)
	registerClient(t, hub, client)

	client.dispatch(inboundFrame{Type: EventJoin, Data: rawPayload(t, map[string]string{
		"identity":    "alice",
		"displayName": "Alice",
		"pushToken":   "tok-1",
	})})

	msg := recvEvent(t, client)
	if msg.Type != EventJoined {
		t.Fatalf("ack = %s, want %s", msg.Type, EventJoined)
	}
	data, ok := msg.Data.(joinedData)
	if !ok {
		t.Fatalf("ack payload type = %T", msg.Data)
	}
	if data.Identity != "alice" || data.DisplayName != "Alice" {
		t.Errorf("ack = %+v", data)
	}

	// Join provisions the profile with the optional fields applied.
	profile, err := st.GetProfile(context.Background(), "alice")
	if err != nil {
		t.Fatalf("profile not created on join: %v", err)
	}
	if profile.PushToken != "tok-1" {
		t.Errorf("push token = %q, want tok-1", profile.PushToken)
	}

	if conn, ok := hub.presence.Resolve("alice"); !ok || conn.(*Client) != client {
		t.Error("presence entry must point at the joining client")
	}
	if identity, ok := client.Identity(); !ok || identity != "alice" {
		t.Errorf("client identity = %q, %v", identity, ok)
	}
}

func TestClientJoinValidation(t *testing.T) {
	hub, _ := setupHub(t)
	client := newTestClient(hub)

	tests := []struct {
		name string
		data json.RawMessage
	}{
		{"missing payload", nil},
		{"empty identity", []byte(`{"identity": ""}`)},
		{"oversized identity", []byte(`{"identity": "` + strings.Repeat("x", 200) + `"}`)},
		{"malformed json", []byte(`{`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client.dispatch(inboundFrame{Type: EventJoin, Data: tt.data})
			msg := recvEvent(t, client)
			if msg.Type != EventSendError {
				t.Fatalf("reply = %s, want %s", msg.Type, EventSendError)
			}
			if hub.presence.Count() != 0 {
				t.Error("invalid join must not create a presence entry")
			}
		})
	}
}

func TestClientJoinSupersedes(t *testing.T) {
	hub, _ := setupHub(t)

	first := newTestClient(hub)
	registerClient(t, hub, first)
	joinClient(t, hub, first, "alice")

	second := newTestClient(hub)
	hub.Register <- second
	waitFor(t, func() bool { return hub.GetClientCount() == 2 })
	joinClient(t, hub, second, "alice")

	// The first connection loses the entry and gets closed by the hub.
	waitFor(t, func() bool { return hub.GetClientCount() == 1 })
	if conn, ok := hub.presence.Resolve("alice"); !ok || conn.(*Client) != second {
		t.Error("presence must resolve to the latest join")
	}
	if first.Send(EventPong, nil) {
		t.Error("superseded client must be closed")
	}
}

func TestClientSendMessageRequiresJoin(t *testing.T) {
	hub, _ := setupHub(t)
	client := newTestClient(hub)

	client.dispatch(inboundFrame{Type: EventSendMessage, Data: rawPayload(t, map[string]string{
		"receiverId": "bob", "text": "hi",
	})})

	msg := recvEvent(t, client)
	if msg.Type != EventSendError {
		t.Fatalf("reply = %s, want %s", msg.Type, EventSendError)
	}
	if data := msg.Data.(errorData); data.Code != codeNotJoined {
		t.Errorf("code = %s, want %s", data.Code, codeNotJoined)
	}
}

func TestClientSendMessage(t *testing.T) {
	hub, st := setupHub(t)
	st.addProfile("bob", "Bob")

	sender := newTestClient(hub)
	registerClient(t, hub, sender)
	joinClient(t, hub, sender, "alice")

	recipient := newTestClient(hub)
	hub.Register <- recipient
	waitFor(t, func() bool { return hub.GetClientCount() == 2 })
	joinClient(t, hub, recipient, "bob")

	sender.dispatch(inboundFrame{Type: EventSendMessage, Data: rawPayload(t, map[string]string{
		"receiverId": "bob", "text": "hello bob",
	})})

	ack := recvEvent(t, sender)
	if ack.Type != EventMessageSent {
		t.Fatalf("ack = %s (%+v), want %s", ack.Type, ack.Data, EventMessageSent)
	}
	sent := ack.Data.(messageSentData)
	if sent.ObjectID == "" || sent.CreatedAt == "" {
		t.Errorf("ack missing assigned fields: %+v", sent)
	}
	if sent.SenderID != "alice" || sent.ReceiverID != "bob" || sent.Text != "hello bob" {
		t.Errorf("ack must echo the stored message, got %+v", sent)
	}
	if sent.Path != string(relay.DeliveryLive) {
		t.Errorf("path = %s, want %s", sent.Path, relay.DeliveryLive)
	}

	// The live recipient gets the message event.
	delivered := recvEvent(t, recipient)
	if delivered.Type != relay.EventNewMessage {
		t.Fatalf("recipient event = %s, want %s", delivered.Type, relay.EventNewMessage)
	}
}

// TestMessageSentAckWireShape pins the ack's JSON contract: it carries the
// full message in the same field names newMessage uses, not just the
// server-assigned identifiers.
func TestMessageSentAckWireShape(t *testing.T) {
	hub, st := setupHub(t)
	st.addProfile("bob", "Bob")

	sender := newTestClient(hub)
	registerClient(t, hub, sender)
	joinClient(t, hub, sender, "alice")

	sender.dispatch(inboundFrame{Type: EventSendMessage, Data: rawPayload(t, map[string]string{
		"receiverId": "bob", "text": "hello bob",
	})})

	ack := recvEvent(t, sender)
	if ack.Type != EventMessageSent {
		t.Fatalf("ack = %s (%+v), want %s", ack.Type, ack.Data, EventMessageSent)
	}

	raw, err := json.Marshal(ack.Data)
	if err != nil {
		t.Fatalf("marshal ack: %v", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	for _, key := range []string{"objectId", "senderId", "receiverId", "text", "createdAt", "path"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("ack missing %q: %s", key, raw)
		}
	}
	if fields["senderId"] != "alice" || fields["receiverId"] != "bob" || fields["text"] != "hello bob" {
		t.Errorf("ack fields = %s", raw)
	}
}

func TestClientSendMessageErrors(t *testing.T) {
	hub, _ := setupHub(t)
	client := newTestClient(hub)
	registerClient(t, hub, client)
	joinClient(t, hub, client, "alice")

	tests := []struct {
		name     string
		payload  map[string]string
		wantCode string
	}{
		{"unknown recipient", map[string]string{"receiverId": "ghost", "text": "hi"}, codeRecipientNotFound},
		{"empty text", map[string]string{"receiverId": "bob"}, codeInvalidArgument},
		{"empty receiver", map[string]string{"text": "hi"}, codeInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client.dispatch(inboundFrame{Type: EventSendMessage, Data: rawPayload(t, tt.payload)})
			msg := recvEvent(t, client)
			if msg.Type != EventSendError {
				t.Fatalf("reply = %s, want %s", msg.Type, EventSendError)
			}
			if data := msg.Data.(errorData); data.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", data.Code, tt.wantCode)
			}
		})
	}
}

func TestClientFollowUnfollow(t *testing.T) {
	hub, st := setupHub(t)
	st.addProfile("bob", "Bob")

	client := newTestClient(hub)
	registerClient(t, hub, client)
	joinClient(t, hub, client, "alice")

	client.dispatch(inboundFrame{Type: EventFollowUser, Data: rawPayload(t, map[string]string{"identity": "bob"})})
	ack := recvEvent(t, client)
	if ack.Type != EventFollowSuccess {
		t.Fatalf("ack = %s (%+v), want %s", ack.Type, ack.Data, EventFollowSuccess)
	}
	data := ack.Data.(followAckData)
	if data.Status != string(relay.StatusFollowed) || data.FollowingCount != 1 {
		t.Errorf("ack = %+v", data)
	}

	// Repeat follow acks the idempotent terminal state.
	client.dispatch(inboundFrame{Type: EventFollowUser, Data: rawPayload(t, map[string]string{"identity": "bob"})})
	ack = recvEvent(t, client)
	if data := ack.Data.(followAckData); data.Status != string(relay.StatusAlreadyFollowing) {
		t.Errorf("repeat follow status = %s, want %s", data.Status, relay.StatusAlreadyFollowing)
	}

	client.dispatch(inboundFrame{Type: EventUnfollowUser, Data: rawPayload(t, map[string]string{"identity": "bob"})})
	ack = recvEvent(t, client)
	if ack.Type != EventUnfollowSuccess {
		t.Fatalf("ack = %s, want %s", ack.Type, EventUnfollowSuccess)
	}
	if data := ack.Data.(followAckData); data.Status != string(relay.StatusUnfollowed) || data.FollowingCount != 0 {
		t.Errorf("ack = %+v", data)
	}
}

func TestClientFollowErrors(t *testing.T) {
	hub, _ := setupHub(t)
	client := newTestClient(hub)
	registerClient(t, hub, client)
	joinClient(t, hub, client, "alice")

	tests := []struct {
		name     string
		target   string
		wantCode string
	}{
		{"self follow", "alice", codeSelfFollow},
		{"unknown target", "ghost", codeProfileNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client.dispatch(inboundFrame{Type: EventFollowUser, Data: rawPayload(t, map[string]string{"identity": tt.target})})
			msg := recvEvent(t, client)
			if msg.Type != EventFollowError {
				t.Fatalf("reply = %s, want %s", msg.Type, EventFollowError)
			}
			if data := msg.Data.(errorData); data.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", data.Code, tt.wantCode)
			}
		})
	}
}

func TestClientFollowNotifiesLiveTarget(t *testing.T) {
	hub, _ := setupHub(t)

	alice := newTestClient(hub)
	registerClient(t, hub, alice)
	joinClient(t, hub, alice, "alice")

	bob := newTestClient(hub)
	hub.Register <- bob
	waitFor(t, func() bool { return hub.GetClientCount() == 2 })
	joinClient(t, hub, bob, "bob")

	alice.dispatch(inboundFrame{Type: EventFollowUser, Data: rawPayload(t, map[string]string{"identity": "bob"})})

	if ack := recvEvent(t, alice); ack.Type != EventFollowSuccess {
		t.Fatalf("ack = %s, want %s", ack.Type, EventFollowSuccess)
	}
	update := recvEvent(t, bob)
	if update.Type != relay.EventFollowUpdate {
		t.Fatalf("target event = %s, want %s", update.Type, relay.EventFollowUpdate)
	}
}

func TestClientPing(t *testing.T) {
	hub, _ := setupHub(t)
	client := newTestClient(hub)

	client.dispatch(inboundFrame{Type: EventPing})
	if msg := recvEvent(t, client); msg.Type != EventPong {
		t.Errorf("reply = %s, want %s", msg.Type, EventPong)
	}
}

func TestClientUnknownFrameIgnored(t *testing.T) {
	hub, _ := setupHub(t)
	client := newTestClient(hub)

	client.dispatch(inboundFrame{Type: "definitelyNotAnEvent"})
	select {
	case msg := <-client.send:
		t.Errorf("unexpected reply %s to unknown frame", msg.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestClientOverWebSocket exercises the full path: upgrade, pumps, join,
// send, live delivery, disconnect cleanup.
func TestClientOverWebSocket(t *testing.T) {
	hub, st := setupHub(t)
	st.addProfile("bob", "Bob")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		client := NewClient(hub, conn)
		hub.Register <- client
		client.Start()
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	readFrame := func() Message {
		t.Helper()
		if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
			t.Fatalf("set read deadline: %v", err)
		}
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		return msg
	}

	if err := conn.WriteJSON(Message{Type: EventJoin, Data: map[string]string{"identity": "alice"}}); err != nil {
		t.Fatalf("write join: %v", err)
	}
	if msg := readFrame(); msg.Type != EventJoined {
		t.Fatalf("first frame = %s, want %s", msg.Type, EventJoined)
	}

	if err := conn.WriteJSON(Message{Type: EventSendMessage, Data: map[string]string{
		"receiverId": "bob", "text": "over the wire",
	}}); err != nil {
		t.Fatalf("write sendMessage: %v", err)
	}
	ack := readFrame()
	if ack.Type != EventMessageSent {
		t.Fatalf("ack = %s (%+v), want %s", ack.Type, ack.Data, EventMessageSent)
	}

	// Disconnect must clear the presence entry.
	_ = conn.Close()
	waitFor(t, func() bool {
		_, ok := hub.presence.Resolve("alice")
		return !ok
	})
}
