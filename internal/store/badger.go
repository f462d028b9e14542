// Nuntius - Realtime Messaging and Presence Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nuntius

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/nuntius/internal/logging"
	"github.com/tomtom215/nuntius/internal/models"
)

// Key prefixes for BadgerDB storage.
const (
	profileKeyPrefix = "profile:"
	messageKeyPrefix = "msg:"
	edgeKeyPrefix    = "edge:"
	edgeRevKeyPrefix = "edge_rev:"
)

// keySep separates identity tokens inside composite keys. Identity tokens
// are printable provider strings, so NUL cannot collide with them.
const keySep = "\x00"

// BadgerStore implements ObjectStore on BadgerDB with JSON-encoded values.
// Suitable for single-process deployments with persistence across restarts.
type BadgerStore struct {
	db *badger.DB
}

// compile-time interface check
var _ ObjectStore = (*BadgerStore)(nil)

// OpenBadger opens (creating if needed) a BadgerDB store at path.
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // badger's own logger is noisy; we log our operations

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store at %s: %w", path, err)
	}

	logging.Info().Str("path", path).Msg("object store opened")
	return &BadgerStore{db: db}, nil
}

// OpenBadgerInMemory opens an ephemeral in-memory store. All data is lost
// on close; intended for development and tests.
func OpenBadgerInMemory() (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger store: %w", err)
	}

	logging.Info().Msg("in-memory object store opened")
	return &BadgerStore{db: db}, nil
}

// NewBadgerStore wraps an already-open BadgerDB handle. Used by tests and
// by provisioning, which shares the handle with the server.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// RunGC runs one round of badger value-log garbage collection.
// ErrNoRewrite is expected when there is nothing to collect.
func (s *BadgerStore) RunGC() error {
	err := s.db.RunValueLogGC(0.5)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return fmt.Errorf("badger gc: %w", err)
	}
	return nil
}

func profileKey(identity string) []byte {
	return []byte(profileKeyPrefix + identity)
}

func edgeKey(from, to string) []byte {
	return []byte(edgeKeyPrefix + from + keySep + to)
}

func edgeRevKey(to, from string) []byte {
	return []byte(edgeRevKeyPrefix + to + keySep + from)
}

// conversationPrefix produces a shared key prefix for the unordered pair, so
// both directions of a conversation land under one range.
func conversationPrefix(a, b string) string {
	low, high := a, b
	if high < low {
		low, high = high, low
	}
	return messageKeyPrefix + low + keySep + high + keySep
}

// messageKey orders messages by persistence time within a conversation.
// The zero-padded nanosecond timestamp keeps lexicographic order equal to
// chronological order; the UUID suffix breaks ties.
func messageKey(msg *models.Message) []byte {
	prefix := conversationPrefix(msg.SenderID, msg.ReceiverID)
	return []byte(fmt.Sprintf("%s%019d%s%s", prefix, msg.CreatedAt.UnixNano(), keySep, msg.ID))
}

// GetProfile returns the profile for an identity.
func (s *BadgerStore) GetProfile(ctx context.Context, identity string) (*models.Profile, error) {
	var profile models.Profile

	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, profileKey(identity), &profile)
	})
	if err != nil {
		return nil, err
	}

	return &profile, nil
}

// SaveProfile creates or replaces a profile record.
func (s *BadgerStore) SaveProfile(ctx context.Context, profile *models.Profile) error {
	if profile == nil || profile.Identity == "" {
		return errors.New("profile identity is required")
	}

	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, profileKey(profile.Identity), profile)
	})
}

// ListProfiles returns every profile record.
func (s *BadgerStore) ListProfiles(ctx context.Context) ([]models.Profile, error) {
	var profiles []models.Profile

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(profileKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var profile models.Profile
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &profile)
			})
			if err != nil {
				return fmt.Errorf("decode profile %s: %w", it.Item().Key(), err)
			}
			profiles = append(profiles, profile)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return profiles, nil
}

// ClearPushToken removes the push token from a profile. Missing profile or
// token is treated as already cleared.
func (s *BadgerStore) ClearPushToken(ctx context.Context, identity string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var profile models.Profile
		err := getJSON(txn, profileKey(identity), &profile)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if profile.PushToken == "" {
			return nil
		}

		profile.PushToken = ""
		profile.UpdatedAt = time.Now().UTC()
		return setJSON(txn, profileKey(identity), &profile)
	})
}

// SaveMessage persists a message, assigning ID and CreatedAt. This is the
// durability boundary: once SaveMessage returns nil the message is sent.
func (s *BadgerStore) SaveMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	if msg == nil {
		return nil, errors.New("message is required")
	}

	saved := *msg
	saved.ID = uuid.New().String()
	saved.CreatedAt = time.Now().UTC()

	err := s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, messageKey(&saved), &saved)
	})
	if err != nil {
		return nil, err
	}

	return &saved, nil
}

// ListConversation returns up to limit messages between the two identities,
// newest first.
func (s *BadgerStore) ListConversation(ctx context.Context, a, b string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	var messages []models.Message
	prefix := []byte(conversationPrefix(a, b))

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts just past the prefix range.
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(messages) < limit; it.Next() {
			var msg models.Message
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			})
			if err != nil {
				return fmt.Errorf("decode message %s: %w", it.Item().Key(), err)
			}
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return messages, nil
}

// GetEdge returns the follow edge for the ordered pair.
func (s *BadgerStore) GetEdge(ctx context.Context, from, to string) (*models.FollowEdge, error) {
	var edge models.FollowEdge

	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, edgeKey(from, to), &edge)
	})
	if err != nil {
		return nil, err
	}

	return &edge, nil
}

// CreateEdge creates the follow edge and adjusts both profile counters in a
// single transaction, so the edge and counters can never diverge.
func (s *BadgerStore) CreateEdge(ctx context.Context, from, to string) (*models.FollowEdge, error) {
	edge := models.FollowEdge{
		From:      from,
		To:        to,
		CreatedAt: time.Now().UTC(),
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(edgeKey(from, to))
		if err == nil {
			return ErrEdgeExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check edge: %w", err)
		}

		var source, target models.Profile
		if err := getJSON(txn, profileKey(from), &source); err != nil {
			return err
		}
		if err := getJSON(txn, profileKey(to), &target); err != nil {
			return err
		}

		if err := setJSON(txn, edgeKey(from, to), &edge); err != nil {
			return err
		}
		if err := txn.Set(edgeRevKey(to, from), []byte(from)); err != nil {
			return fmt.Errorf("set reverse edge: %w", err)
		}

		now := time.Now().UTC()
		source.FollowingCount++
		source.UpdatedAt = now
		target.FollowersCount++
		target.UpdatedAt = now

		if err := setJSON(txn, profileKey(from), &source); err != nil {
			return err
		}
		return setJSON(txn, profileKey(to), &target)
	})
	if err != nil {
		return nil, err
	}

	return &edge, nil
}

// DeleteEdge removes the follow edge and decrements both counters in a
// single transaction, clamping at zero.
func (s *BadgerStore) DeleteEdge(ctx context.Context, from, to string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(edgeKey(from, to))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check edge: %w", err)
		}

		if err := txn.Delete(edgeKey(from, to)); err != nil {
			return fmt.Errorf("delete edge: %w", err)
		}
		if err := txn.Delete(edgeRevKey(to, from)); err != nil {
			return fmt.Errorf("delete reverse edge: %w", err)
		}

		now := time.Now().UTC()

		var source models.Profile
		err = getJSON(txn, profileKey(from), &source)
		if err == nil {
			source.FollowingCount = clampDecrement(source.FollowingCount)
			source.UpdatedAt = now
			if err := setJSON(txn, profileKey(from), &source); err != nil {
				return err
			}
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		var target models.Profile
		err = getJSON(txn, profileKey(to), &target)
		if err == nil {
			target.FollowersCount = clampDecrement(target.FollowersCount)
			target.UpdatedAt = now
			if err := setJSON(txn, profileKey(to), &target); err != nil {
				return err
			}
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		return nil
	})
}

// clampDecrement decrements a counter without letting it go negative.
func clampDecrement(n int64) int64 {
	if n <= 0 {
		return 0
	}
	return n - 1
}

// ListFollowing returns identities that from follows.
func (s *BadgerStore) ListFollowing(ctx context.Context, from string, limit int) ([]string, error) {
	return s.listEdgeTargets([]byte(edgeKeyPrefix+from+keySep), limit, func(key []byte, prefixLen int) string {
		return string(key[prefixLen:])
	})
}

// ListFollowers returns identities following to, via the reverse index.
func (s *BadgerStore) ListFollowers(ctx context.Context, to string, limit int) ([]string, error) {
	return s.listEdgeTargets([]byte(edgeRevKeyPrefix+to+keySep), limit, func(key []byte, prefixLen int) string {
		return string(key[prefixLen:])
	})
}

func (s *BadgerStore) listEdgeTargets(prefix []byte, limit int, extract func([]byte, int) string) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}

	var identities []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(identities) < limit; it.Next() {
			identities = append(identities, extract(it.Item().Key(), len(prefix)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return identities, nil
}

// getJSON loads and decodes a JSON value, mapping badger.ErrKeyNotFound to
// the package's ErrNotFound sentinel.
func getJSON(txn *badger.Txn, key []byte, out interface{}) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}

	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func setJSON(txn *badger.Txn, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := txn.Set(key, data); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
