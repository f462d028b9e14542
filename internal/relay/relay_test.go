// Nuntius - Realtime Messaging and Presence Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nuntius

package relay

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tomtom215/nuntius/internal/logging"
	"github.com/tomtom215/nuntius/internal/models"
	"github.com/tomtom215/nuntius/internal/notify"
	"github.com/tomtom215/nuntius/internal/store"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

// fakeStore is an in-memory ObjectStore for relay tests. Errors can be
// injected per operation to exercise failure paths.
type fakeStore struct {
	mu       sync.Mutex
	profiles map[string]*models.Profile
	messages []models.Message
	edges    map[string]*models.FollowEdge
	nextID   int

	saveMessageErr error
	getProfileErr  error
	clearTokenErr  error
	clearedTokens  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles: make(map[string]*models.Profile),
		edges:    make(map[string]*models.FollowEdge),
	}
}

func (s *fakeStore) addProfile(identity, name, pushToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[identity] = &models.Profile{
		Identity:    identity,
		DisplayName: name,
		PushToken:   pushToken,
	}
}

func edgeKey(from, to string) string { return from + "\x00" + to }

func (s *fakeStore) GetProfile(ctx context.Context, identity string) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getProfileErr != nil {
		return nil, s.getProfileErr
	}
	p, ok := s.profiles[identity]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (s *fakeStore) SaveProfile(ctx context.Context, profile *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *profile
	s.profiles[profile.Identity] = &clone
	return nil
}

func (s *fakeStore) ListProfiles(ctx context.Context) ([]models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, *p)
	}
	return out, nil
}

func (s *fakeStore) ClearPushToken(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clearTokenErr != nil {
		return s.clearTokenErr
	}
	s.clearedTokens = append(s.clearedTokens, identity)
	if p, ok := s.profiles[identity]; ok {
		p.PushToken = ""
	}
	return nil
}

func (s *fakeStore) SaveMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveMessageErr != nil {
		return nil, s.saveMessageErr
	}
	s.nextID++
	saved := *msg
	saved.ID = fmt.Sprintf("msg-%d", s.nextID)
	saved.CreatedAt = time.Now().UTC()
	s.messages = append(s.messages, saved)
	return &saved, nil
}

func (s *fakeStore) ListConversation(ctx context.Context, a, b string, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for i := len(s.messages) - 1; i >= 0 && len(out) < limit; i-- {
		m := s.messages[i]
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeStore) GetEdge(ctx context.Context, from, to string) (*models.FollowEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.edges[edgeKey(from, to)]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *e
	return &clone, nil
}

func (s *fakeStore) CreateEdge(ctx context.Context, from, to string) (*models.FollowEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.edges[edgeKey(from, to)]; ok {
		return nil, store.ErrEdgeExists
	}
	src, ok := s.profiles[from]
	if !ok {
		return nil, store.ErrNotFound
	}
	dst, ok := s.profiles[to]
	if !ok {
		return nil, store.ErrNotFound
	}
	edge := &models.FollowEdge{From: from, To: to, CreatedAt: time.Now().UTC()}
	s.edges[edgeKey(from, to)] = edge
	src.FollowingCount++
	dst.FollowersCount++
	clone := *edge
	return &clone, nil
}

func (s *fakeStore) DeleteEdge(ctx context.Context, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.edges[edgeKey(from, to)]; !ok {
		return store.ErrNotFound
	}
	delete(s.edges, edgeKey(from, to))
	if src, ok := s.profiles[from]; ok && src.FollowingCount > 0 {
		src.FollowingCount--
	}
	if dst, ok := s.profiles[to]; ok && dst.FollowersCount > 0 {
		dst.FollowersCount--
	}
	return nil
}

func (s *fakeStore) ListFollowing(ctx context.Context, from string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.edges {
		e := s.edges[k]
		if e.From == from && len(out) < limit {
			out = append(out, e.To)
		}
	}
	return out, nil
}

func (s *fakeStore) ListFollowers(ctx context.Context, to string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.edges {
		e := s.edges[k]
		if e.To == to && len(out) < limit {
			out = append(out, e.From)
		}
	}
	return out, nil
}

func (s *fakeStore) Close() error { return nil }

// fakeConn records events queued to it. full simulates a saturated send
// buffer.
type fakeConn struct {
	mu     sync.Mutex
	full   bool
	events []fakeEvent
}

type fakeEvent struct {
	event string
	data  interface{}
}

func (c *fakeConn) Send(event string, data interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return false
	}
	c.events = append(c.events, fakeEvent{event: event, data: data})
	return true
}

func (c *fakeConn) received() []fakeEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]fakeEvent, len(c.events))
	copy(out, c.events)
	return out
}

// fakeNotifier records push attempts and returns a configured error.
type fakeNotifier struct {
	mu     sync.Mutex
	err    error
	tokens []string
	loads  []notify.Payload
}

func (n *fakeNotifier) Send(ctx context.Context, token string, payload notify.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tokens = append(n.tokens, token)
	n.loads = append(n.loads, payload)
	return n.err
}

func (n *fakeNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.tokens))
	copy(out, n.tokens)
	return out
}
