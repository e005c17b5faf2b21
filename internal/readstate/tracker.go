// Package readstate tracks which list items the user has marked as read.
//
// All marks live under a single key of a local store as a JSON object mapping
// item ID to the item's fingerprint at the time it was marked. A mark only
// counts while that fingerprint still matches, so an item that changes
// reverts to unread on its own.
package readstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"gh-presence/internal/domain"
	"gh-presence/internal/localstore"
)

const DefaultKey = "github-read"

type Tracker struct {
	store  localstore.Store
	key    string
	logger *zap.Logger
}

type Option func(*Tracker)

// WithKey overrides the storage key holding the marks.
func WithKey(key string) Option {
	return func(t *Tracker) {
		t.key = key
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) {
		t.logger = l
	}
}

func NewTracker(store localstore.Store, opts ...Option) (*Tracker, error) {
	if store == nil {
		return nil, errors.New("readstate: store must not be nil")
	}
	t := &Tracker{store: store, key: DefaultKey}
	for _, opt := range opts {
		opt(t)
	}
	if t.key == "" {
		return nil, errors.New("readstate: key must not be empty")
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
	return t, nil
}

// Marks returns every stored mark. Unreadable storage yields no marks.
func (t *Tracker) Marks(ctx context.Context) map[string]string {
	marks, err := t.load(ctx)
	if err != nil {
		t.logger.Warn("read state unavailable", zap.String("key", t.key), zap.Error(err))
		return map[string]string{}
	}
	return marks
}

// load reads the marks. Malformed contents count as no marks; store
// failures are returned so callers never write back a partial map.
func (t *Tracker) load(ctx context.Context) (map[string]string, error) {
	raw, ok, err := t.store.Get(ctx, t.key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[string]string{}, nil
	}
	var marks map[string]string
	if err := json.Unmarshal(raw, &marks); err != nil || marks == nil {
		t.logger.Warn("read state malformed, treating as empty", zap.String("key", t.key), zap.Error(err))
		return map[string]string{}, nil
	}
	return marks, nil
}

// IsRead reports whether itemID carries a mark matching fp.
func (t *Tracker) IsRead(ctx context.Context, itemID string, fp domain.Fingerprint) bool {
	if itemID == "" || fp.UpdatedAt == "" {
		return false
	}
	mark, ok := t.Marks(ctx)[itemID]
	return ok && mark == fp.String()
}

// Toggle marks itemID read at fp, or removes the mark if it is already read
// at fp. It returns the new state. Items without an ID or timestamp are left
// untouched.
func (t *Tracker) Toggle(ctx context.Context, itemID string, fp domain.Fingerprint) (bool, error) {
	if itemID == "" || fp.UpdatedAt == "" {
		t.logger.Debug("read toggle skipped, item not identifiable", zap.String("item_id", itemID))
		return false, nil
	}

	marks, err := t.load(ctx)
	if err != nil {
		return false, fmt.Errorf("readstate: toggle %q: %w", itemID, err)
	}
	read := false
	if mark, ok := marks[itemID]; ok && mark == fp.String() {
		delete(marks, itemID)
	} else {
		marks[itemID] = fp.String()
		read = true
	}

	raw, err := json.Marshal(marks)
	if err != nil {
		return false, fmt.Errorf("readstate: marshal marks: %w", err)
	}
	if err := t.store.Set(ctx, t.key, raw); err != nil {
		return false, fmt.Errorf("readstate: toggle %q: %w", itemID, err)
	}
	return read, nil
}

// Subscribe calls fn whenever another view of the store changes the marks.
func (t *Tracker) Subscribe(fn func()) localstore.Subscription {
	return t.store.Subscribe(t.key, func(localstore.Change) { fn() })
}
