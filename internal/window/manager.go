package window

import (
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hellhand/kube/internal/errs"
	"github.com/hellhand/kube/internal/workerpool"
)

// Manager registers windows by title.
type Manager struct {
	mu      sync.RWMutex
	windows map[string]*Window
	order   []string
}

func NewManager() *Manager {
	return &Manager{windows: make(map[string]*Window)}
}

// Add registers w. A second window with the same title is rejected with
// errs.ErrAlreadyExists and stays owned by the caller.
func (m *Manager) Add(w *Window) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.windows[w.Title()]; ok {
		return errs.AlreadyExists("window", w.Title())
	}
	m.windows[w.Title()] = w
	m.order = append(m.order, w.Title())
	return nil
}

// Remove unregisters and destroys the window titled title.
func (m *Manager) Remove(title string) error {
	m.mu.Lock()
	w, ok := m.windows[title]
	if ok {
		delete(m.windows, title)
		m.order = slices.DeleteFunc(m.order, func(t string) bool { return t == title })
	}
	m.mu.Unlock()
	if !ok {
		return errs.NotFound("window", title)
	}
	w.Destroy()
	return nil
}

func (m *Manager) Get(title string) (*Window, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.windows[title]
	if !ok {
		return nil, errs.NotFound("window", title)
	}
	return w, nil
}

// Titles lists registered windows in the order they were added.
func (m *Manager) Titles() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.order)
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

func (m *Manager) snapshot() []*Window {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Window, 0, len(m.order))
	for _, t := range m.order {
		out = append(out, m.windows[t])
	}
	return out
}

// TickAll ticks every window concurrently. Windows are independent; the
// first error is returned once every tick has finished.
func (m *Manager) TickAll(ctx context.Context, pool *workerpool.Pool) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range m.snapshot() {
		g.Go(func() error { return w.Tick(ctx, pool) })
	}
	return g.Wait()
}

// Close destroys every registered window, newest first.
func (m *Manager) Close() {
	m.mu.Lock()
	order := m.order
	windows := m.windows
	m.order = nil
	m.windows = make(map[string]*Window)
	m.mu.Unlock()
	for _, t := range slices.Backward(order) {
		windows[t].Destroy()
	}
}
