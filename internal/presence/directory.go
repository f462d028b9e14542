// Nuntius - Realtime Messaging and Presence Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nuntius

// Package presence tracks which identities currently have a live, addressable
// connection.
//
// The directory is process-local state, rebuilt from scratch on restart; it is
// never a source of truth. A connection is anonymous until its client
// announces an identity via Join, and any client that reconnects must
// re-announce. The map is guarded by a mutex because connections are served
// by parallel goroutines.
package presence

import (
	"errors"
	"sync"
)

// ErrEmptyIdentity is returned by Join for a missing identity. The directory
// rejects this explicitly instead of silently ignoring it.
var ErrEmptyIdentity = errors.New("identity is required")

// Sender is the addressable handle for a live connection. Implemented by
// ws.Client; Send is non-blocking and reports whether the event was queued.
type Sender interface {
	Send(event string, data interface{}) bool
}

// Directory maps identities to live connection handles. A reverse index keeps
// disconnect cleanup O(1) instead of scanning all entries.
type Directory struct {
	mu       sync.RWMutex
	byID     map[string]Sender
	identity map[Sender]string
}

// NewDirectory creates an empty presence directory.
func NewDirectory() *Directory {
	return &Directory{
		byID:     make(map[string]Sender),
		identity: make(map[Sender]string),
	}
}

// Join registers conn as the addressable channel for identity. Last join
// wins: an existing entry for the identity is superseded and returned so the
// caller may close it. A connection that re-joins under a new identity is
// moved, not duplicated.
func (d *Directory) Join(identity string, conn Sender) (Sender, error) {
	if identity == "" {
		return nil, ErrEmptyIdentity
	}
	if conn == nil {
		return nil, errors.New("connection handle is required")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	previous := d.byID[identity]
	if previous == conn {
		return nil, nil
	}
	if previous != nil {
		delete(d.identity, previous)
	}

	// If conn was joined under another identity, drop the stale mapping.
	if old, ok := d.identity[conn]; ok && old != identity {
		delete(d.byID, old)
	}

	d.byID[identity] = conn
	d.identity[conn] = identity
	return previous, nil
}

// Resolve returns the live connection handle for identity, if any. Absence
// means the identity must take the asynchronous notification path.
func (d *Directory) Resolve(identity string) (Sender, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	conn, ok := d.byID[identity]
	return conn, ok
}

// Remove drops the entry owned by conn, returning the identity it held.
// A connection superseded by a later Join owns nothing and removes nothing,
// so a stale disconnect cannot evict a fresh entry.
func (d *Directory) Remove(conn Sender) (string, bool) {
	if conn == nil {
		return "", false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	identity, ok := d.identity[conn]
	if !ok {
		return "", false
	}

	delete(d.identity, conn)
	delete(d.byID, identity)
	return identity, true
}

// Count returns the number of identities currently present.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}
