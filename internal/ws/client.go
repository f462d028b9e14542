// Nuntius - Realtime Messaging and Presence Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nuntius

package ws

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tomtom215/nuntius/internal/logging"
	"github.com/tomtom215/nuntius/internal/metrics"
	"github.com/tomtom215/nuntius/internal/models"
	"github.com/tomtom215/nuntius/internal/relay"
	"github.com/tomtom215/nuntius/internal/store"
	"github.com/tomtom215/nuntius/internal/validation"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // 64 KB, far above the text cap

	// DefaultFrameRate bounds inbound frames per second per connection.
	DefaultFrameRate  = 20
	defaultFrameBurst = 40
)

// clientIDCounter assigns unique, monotonically increasing client IDs so
// shutdown can close clients in a consistent order.
var clientIDCounter atomic.Uint64

// Client bridges one websocket connection and the relay core. It satisfies
// presence.Sender: the directory hands it out as the addressable handle for
// whatever identity the connection joined as.
type Client struct {
	id   uint64
	hub  *Hub
	conn *websocket.Conn
	send chan Message

	limiter *rate.Limiter

	// sendMu guards sendClosed so Send never races the hub closing the
	// channel: deliveries come from arbitrary relay goroutines.
	sendMu     sync.RWMutex
	sendClosed bool

	// identity is set by a successful join; empty while anonymous.
	identityMu sync.RWMutex
	identity   string
}

// NewClient creates a client for an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:      clientIDCounter.Add(1),
		hub:     hub,
		conn:    conn,
		send:    make(chan Message, 256),
		limiter: rate.NewLimiter(rate.Limit(DefaultFrameRate), defaultFrameBurst),
	}
}

// ID returns the client's unique identifier.
func (c *Client) ID() uint64 {
	return c.id
}

// Send queues an event for delivery, implementing presence.Sender. It never
// blocks: a full queue or a closing connection reports false and the caller
// falls back to the asynchronous path.
func (c *Client) Send(event string, data interface{}) bool {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()

	if c.sendClosed {
		return false
	}
	select {
	case c.send <- Message{Type: event, Data: data}:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel exactly once. Idempotent because a
// superseded connection is unregistered twice: by the join path and by its
// own read pump exiting.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

// Identity returns the identity this connection joined as, if any.
func (c *Client) Identity() (string, bool) {
	c.identityMu.RLock()
	defer c.identityMu.RUnlock()
	return c.identity, c.identity != ""
}

func (c *Client) setIdentity(identity string) {
	c.identityMu.Lock()
	c.identity = identity
	c.identityMu.Unlock()
}

// Start begins the read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// readPump reads frames off the connection and dispatches them until the
// connection fails or closes. The deferred unregister is the single cleanup
// path for every disconnect, explicit or not.
func (c *Client) readPump() {
	defer func() {
		c.hub.notifyUnregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame inboundFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Uint64("client_id", c.id).Msg("unexpected websocket close")
			}
			break
		}

		if !c.limiter.Allow() {
			logging.Warn().Uint64("client_id", c.id).Str("type", frame.Type).Msg("frame rate limit exceeded, dropping frame")
			c.Send(EventSendError, errorData{Code: codeRateLimited, Message: "too many frames"})
			continue
		}

		c.dispatch(frame)
	}
}

// writePump drains the send channel onto the connection and keeps the
// connection alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}

			if !ok {
				// The hub closed the channel.
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					logging.Debug().Err(err).Msg("failed to write close message")
				}
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				logging.Warn().Err(err).Uint64("client_id", c.id).Msg("failed to write frame")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one inbound frame. Every frame gets a fresh correlation ID
// so a send's store writes and push attempt trace back to it.
func (c *Client) dispatch(frame inboundFrame) {
	ctx := logging.ContextWithNewCorrelationID(context.Background())

	switch frame.Type {
	case EventJoin:
		c.handleJoin(ctx, frame.Data)
	case EventSendMessage:
		c.handleSendMessage(ctx, frame.Data)
	case EventFollowUser:
		c.handleFollow(ctx, frame.Data, true)
	case EventUnfollowUser:
		c.handleFollow(ctx, frame.Data, false)
	case EventPing:
		c.Send(EventPong, nil)
	default:
		logging.Debug().Str("type", frame.Type).Uint64("client_id", c.id).Msg("ignoring unknown frame type")
	}
}

// handleJoin registers this connection as the identity's live channel. The
// identity token is opaque and trusted; authenticating it is a deployment
// concern. Join also upserts the profile so a first-time identity exists
// before its first send, and refreshes optional profile fields.
func (c *Client) handleJoin(ctx context.Context, data json.RawMessage) {
	var payload joinPayload
	if err := decodePayload(data, &payload); err != nil {
		c.Send(EventSendError, errorData{Code: codeInvalidArgument, Message: err.Error()})
		return
	}

	profile, err := c.upsertProfile(ctx, payload)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("identity", payload.Identity).Msg("join profile upsert failed")
		c.Send(EventSendError, errorData{Code: codeInternal, Message: "internal error"})
		return
	}

	superseded, err := c.hub.presence.Join(payload.Identity, c)
	if err != nil {
		c.Send(EventSendError, errorData{Code: codeInvalidArgument, Message: err.Error()})
		return
	}
	c.setIdentity(payload.Identity)
	metrics.PresenceEntries.Set(float64(c.hub.presence.Count()))

	// Last join wins: the superseded connection is closed so its user
	// agent learns it lost the session.
	if prev, ok := superseded.(*Client); ok && prev != nil {
		logging.Ctx(ctx).Info().
			Str("identity", payload.Identity).
			Uint64("superseded_client", prev.id).
			Msg("presence entry superseded")
		c.hub.notifyUnregister(prev)
	}

	c.Send(EventJoined, joinedData{
		Identity:       profile.Identity,
		DisplayName:    profile.DisplayName,
		FollowersCount: profile.FollowersCount,
		FollowingCount: profile.FollowingCount,
	})
	logging.Ctx(ctx).Info().Str("identity", payload.Identity).Msg("client joined")
}

// upsertProfile loads or creates the joining identity's profile and applies
// any profile fields carried on the join payload.
func (c *Client) upsertProfile(ctx context.Context, payload joinPayload) (*models.Profile, error) {
	profile, err := c.hub.store.GetProfile(ctx, payload.Identity)
	if errors.Is(err, store.ErrNotFound) {
		profile = &models.Profile{Identity: payload.Identity}
	} else if err != nil {
		return nil, err
	}

	changed := profile.CreatedAt.IsZero()
	if payload.DisplayName != "" && payload.DisplayName != profile.DisplayName {
		profile.DisplayName = payload.DisplayName
		changed = true
	}
	if payload.AvatarURL != "" && payload.AvatarURL != profile.AvatarURL {
		profile.AvatarURL = payload.AvatarURL
		changed = true
	}
	if payload.PushToken != "" && payload.PushToken != profile.PushToken {
		profile.PushToken = payload.PushToken
		changed = true
	}

	if changed {
		if err := c.hub.store.SaveProfile(ctx, profile); err != nil {
			return nil, err
		}
	}
	return profile, nil
}

func (c *Client) handleSendMessage(ctx context.Context, data json.RawMessage) {
	senderID, ok := c.Identity()
	if !ok {
		c.Send(EventSendError, errorData{Code: codeNotJoined, Message: "join before sending messages"})
		return
	}

	var payload sendMessagePayload
	if err := decodePayload(data, &payload); err != nil {
		c.Send(EventSendError, errorData{Code: codeInvalidArgument, Message: err.Error()})
		return
	}

	outcome, err := c.hub.messages.Send(ctx, senderID, payload.ReceiverID, payload.Text)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("sender", senderID).Msg("send failed")
		c.Send(EventSendError, errorData{Code: codeForError(err), Message: messageForError(err)})
		return
	}

	c.Send(EventMessageSent, messageSentData{
		ObjectID:   outcome.Message.ID,
		SenderID:   outcome.Message.SenderID,
		ReceiverID: outcome.Message.ReceiverID,
		Text:       outcome.Message.Text,
		CreatedAt:  rfc3339(outcome.Message.CreatedAt),
		Path:       string(outcome.Path),
	})
}

func (c *Client) handleFollow(ctx context.Context, data json.RawMessage, follow bool) {
	fromID, ok := c.Identity()
	if !ok {
		c.Send(EventFollowError, errorData{Code: codeNotJoined, Message: "join before managing follows"})
		return
	}

	var payload followPayload
	if err := decodePayload(data, &payload); err != nil {
		c.Send(EventFollowError, errorData{Code: codeInvalidArgument, Message: err.Error()})
		return
	}

	var (
		outcome  *relay.FollowOutcome
		err      error
		ackEvent string
	)
	if follow {
		outcome, err = c.hub.social.Follow(ctx, fromID, payload.Identity)
		ackEvent = EventFollowSuccess
	} else {
		outcome, err = c.hub.social.Unfollow(ctx, fromID, payload.Identity)
		ackEvent = EventUnfollowSuccess
	}
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("from", fromID).Str("to", payload.Identity).Msg("follow operation failed")
		c.Send(EventFollowError, errorData{Code: codeForError(err), Message: messageForError(err)})
		return
	}

	c.Send(ackEvent, followAckData{
		Status:         string(outcome.Status),
		Identity:       outcome.Target.Identity,
		FollowersCount: outcome.Source.FollowersCount,
		FollowingCount: outcome.Source.FollowingCount,
	})
}

// decodePayload unmarshals and validates one event payload.
func decodePayload(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return errors.New("payload is required")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.New("malformed payload")
	}
	if err := validation.ValidateStruct(v); err != nil {
		return err
	}
	return nil
}
