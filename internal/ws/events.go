// Nuntius - Realtime Messaging and Presence Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nuntius

package ws

import (
	"errors"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/nuntius/internal/relay"
)

// Client → server event types.
const (
	EventJoin         = "join"
	EventSendMessage  = "sendMessage"
	EventFollowUser   = "followUser"
	EventUnfollowUser = "unfollowUser"
	EventPing         = "ping"
)

// Server → client event types. EventNewMessage and EventFollowUpdate are
// defined in package relay, which emits them directly to recipient
// connections.
const (
	EventJoined          = "joined"
	EventMessageSent     = "messageSent"
	EventSendError       = "sendError"
	EventFollowSuccess   = "followSuccess"
	EventUnfollowSuccess = "unfollowSuccess"
	EventFollowError     = "followError"
	EventPong            = "pong"
)

// Message is the wire envelope for every frame in both directions.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// inboundFrame defers payload decoding until the type is known.
type inboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// joinPayload announces the connection's identity. DisplayName, AvatarURL,
// and PushToken are optional profile refreshes applied on join.
type joinPayload struct {
	Identity    string `json:"identity" validate:"required,max=128"`
	DisplayName string `json:"displayName" validate:"omitempty,max=256"`
	AvatarURL   string `json:"avatarUrl" validate:"omitempty,url,max=2048"`
	PushToken   string `json:"pushToken" validate:"omitempty,max=4096"`
}

// sendMessagePayload carries one chat message request. There is no sender
// field: the sender is always the identity bound at join, so frames cannot
// claim another sender.
type sendMessagePayload struct {
	ReceiverID string `json:"receiverId" validate:"required,max=128"`
	Text       string `json:"text" validate:"required"`
}

// followPayload names the target of a follow or unfollow request. The
// acting side is the joined identity.
type followPayload struct {
	Identity string `json:"identity" validate:"required,max=128"`
}

// joinedData acknowledges a join with the connection's fresh profile state.
type joinedData struct {
	Identity       string `json:"identity"`
	DisplayName    string `json:"displayName,omitempty"`
	FollowersCount int64  `json:"followersCount"`
	FollowingCount int64  `json:"followingCount"`
}

// messageSentData acknowledges a successful send to its initiator. It
// echoes the stored message in the same shape newMessage uses, plus the
// delivery path taken.
type messageSentData struct {
	ObjectID   string `json:"objectId"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Text       string `json:"text"`
	CreatedAt  string `json:"createdAt"`
	Path       string `json:"path"`
}

// followAckData acknowledges a follow/unfollow to its initiator with fresh
// counter values for the initiating side.
type followAckData struct {
	Status         string `json:"status"`
	Identity       string `json:"identity"`
	FollowersCount int64  `json:"followersCount"`
	FollowingCount int64  `json:"followingCount"`
}

// errorData is the structured payload of sendError and followError events.
type errorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes carried on errorData.
const (
	codeInvalidArgument   = "INVALID_ARGUMENT"
	codeNotJoined         = "NOT_JOINED"
	codeRecipientNotFound = "RECIPIENT_NOT_FOUND"
	codeSelfFollow        = "SELF_FOLLOW"
	codeProfileNotFound   = "PROFILE_NOT_FOUND"
	codeRateLimited       = "RATE_LIMITED"
	codeInternal          = "INTERNAL"
)

// codeForError maps relay taxonomy errors onto wire error codes. Unknown
// errors become INTERNAL without leaking detail to the client.
func codeForError(err error) string {
	switch {
	case errors.Is(err, relay.ErrInvalidArgument):
		return codeInvalidArgument
	case errors.Is(err, relay.ErrRecipientNotFound):
		return codeRecipientNotFound
	case errors.Is(err, relay.ErrSelfFollow):
		return codeSelfFollow
	case errors.Is(err, relay.ErrProfileNotFound):
		return codeProfileNotFound
	default:
		return codeInternal
	}
}

// messageForError is the client-facing text for a wire error code.
func messageForError(err error) string {
	if code := codeForError(err); code == codeInternal {
		return "internal error"
	}
	return err.Error()
}

func rfc3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
