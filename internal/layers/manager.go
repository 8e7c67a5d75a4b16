package layers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
)

// Ticket orders layer updates. Only the most recently issued ticket may commit.
type Ticket uint64

// Config configures a Manager.
type Config struct {
	Logger *slog.Logger
	// OnChange is called with the number of attached layers after every mutation.
	OnChange func(attached int)
}

// Manager tracks the attached layer of every key. All slot mutations happen under one
// mutex, so the surface never sees two layers for the same key.
type Manager struct {
	surface  Surface
	slots    map[Key]Handle
	logger   *slog.Logger
	onChange func(int)
	latest   Ticket
	mu       sync.Mutex
	closed   bool
}

// NewManager creates a manager for a surface.
func NewManager(surface Surface, cfg Config) *Manager {
	return &Manager{
		surface:  surface,
		slots:    make(map[Key]Handle),
		logger:   cfg.Logger,
		onChange: cfg.OnChange,
	}
}

func (m *Manager) log() *slog.Logger {
	if m.logger != nil {
		return m.logger
	}
	return slog.Default()
}

// Begin issues a ticket for an upcoming update and invalidates every earlier ticket.
func (m *Manager) Begin() Ticket {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest++
	return m.latest
}

// Current reports whether t is still the latest ticket.
func (m *Manager) Current(t Ticket) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return t == m.latest
}

// Commit replaces the given layers if t is still the latest ticket. A superseded ticket
// returns ErrStale without touching the surface.
func (m *Manager) Commit(ctx context.Context, t Ticket, layers ...Layer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if t != m.latest {
		return ErrStale
	}

	var errs []error
	for _, l := range layers {
		if err := m.replaceLocked(ctx, l); err != nil {
			errs = append(errs, err)
		}
	}
	m.changed()
	return errors.Join(errs...)
}

// Replace detaches the key's current layer and attaches l in its place. An empty layer
// leaves the slot absent. If attaching fails the slot stays absent; if detaching fails
// the new layer is not attached.
func (m *Manager) Replace(ctx context.Context, l Layer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	err := m.replaceLocked(ctx, l)
	m.changed()
	return err
}

// Remove detaches the key's layer, if any.
func (m *Manager) Remove(ctx context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.detachLocked(ctx, key)
	m.changed()
	return err
}

// Teardown detaches every layer and closes the manager. Slots are cleared even when the
// surface reports errors.
func (m *Manager) Teardown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for key, h := range m.slots {
		if err := m.surface.Detach(context.WithoutCancel(ctx), h); err != nil {
			errs = append(errs, fmt.Errorf("failed to detach %s layer: %w", key, err))
		}
		delete(m.slots, key)
	}
	m.closed = true
	m.changed()

	if len(errs) > 0 {
		m.log().Warn("Layer teardown incomplete", "errors", len(errs))
	}
	return errors.Join(errs...)
}

// Attached returns a snapshot of the attached handles.
func (m *Manager) Attached() map[Key]Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.slots)
}

// Len returns the number of attached layers.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}

func (m *Manager) replaceLocked(ctx context.Context, l Layer) error {
	if err := m.detachLocked(ctx, l.Key); err != nil {
		return err
	}

	if l.Empty() {
		m.log().Debug("Layer empty, slot left absent", "key", l.Key, "level", l.Level)
		return nil
	}

	h, err := m.surface.Attach(context.WithoutCancel(ctx), l)
	if err != nil {
		m.log().Warn("Failed to attach layer", "key", l.Key, "level", l.Level, "error", err)
		return fmt.Errorf("failed to attach %s layer: %w", l.Key, err)
	}

	m.slots[l.Key] = h
	m.log().Debug("Attached layer", "key", l.Key, "handle", h, "level", l.Level, "seq", l.Seq)
	return nil
}

func (m *Manager) detachLocked(ctx context.Context, key Key) error {
	h, ok := m.slots[key]
	if !ok {
		return nil
	}

	if err := m.surface.Detach(context.WithoutCancel(ctx), h); err != nil {
		return fmt.Errorf("failed to detach %s layer: %w", key, err)
	}
	delete(m.slots, key)
	return nil
}

func (m *Manager) changed() {
	if m.onChange != nil {
		m.onChange(len(m.slots))
	}
}
