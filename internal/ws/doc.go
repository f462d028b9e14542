// Nuntius - Realtime Messaging and Presence Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nuntius

// Package ws implements the realtime channel: the WebSocket hub, the
// per-connection client, and the event contract between clients and the
// relay core.
//
// Event contract (all frames are JSON envelopes {"type": ..., "data": ...}):
//
//	client → server: join, sendMessage, followUser, unfollowUser, ping
//	server → client: joined, messageSent, newMessage, sendError,
//	                 followSuccess, followUpdate, unfollowSuccess,
//	                 followError, pong
//
// A connection is anonymous until it sends join. Disconnecting (for any
// reason) removes the connection's presence entry; there is no explicit
// leave event.
//
// The hub owns client lifecycle (register, unregister, shutdown). Addressing
// a specific identity goes through the presence directory, not the hub:
// unicast delivery is a directory lookup followed by a non-blocking queue
// onto the client's send channel.
package ws
