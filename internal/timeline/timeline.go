// Package timeline runs an ordered list of per-frame callbacks that fill a
// resource table from the current render state.
package timeline

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"github.com/hellhand/kube/internal/gpu"
	"github.com/hellhand/kube/internal/logging"
	"github.com/hellhand/kube/internal/native"
	"github.com/hellhand/kube/internal/resource"
	"github.com/hellhand/kube/internal/workerpool"
)

// State is what callbacks may read during a tick.
type State struct {
	Window string
	// Swapchain is nil until the window's swap chain is initialised.
	Swapchain  *gpu.Swapchain
	Extent     native.Extent
	ImageIndex uint32
	Frame      uint64
	Time       time.Time
}

// Callback writes its slot. dst starts at the entry's offset and ends at
// the end of the slot.
type Callback interface {
	Apply(st *State, dst []byte) error
}

// Func adapts a function to Callback.
type Func func(st *State, dst []byte) error

func (f Func) Apply(st *State, dst []byte) error { return f(st, dst) }

// Entry binds a callback to a resource key and an offset inside its slot.
type Entry struct {
	Key      resource.Key
	Offset   int
	Callback Callback
}

// Observer sees every callback invocation and its result.
type Observer func(key resource.Key, err error)

type bound struct {
	Entry
	slot resource.Slot
}

type Timeline struct {
	table    *resource.Table
	entries  []bound
	observer Observer
}

// New resolves every entry against table's layout.
func New(table *resource.Table, entries ...Entry) (*Timeline, error) {
	t := &Timeline{table: table, entries: make([]bound, 0, len(entries))}
	for _, e := range entries {
		if e.Callback == nil {
			return nil, errors.Newf("timeline entry %q: nil callback", e.Key)
		}
		slot, err := table.Layout().Resolve(e.Key)
		if err != nil {
			return nil, errors.Wrap(err, "timeline")
		}
		if e.Offset < 0 || e.Offset >= slot.Size {
			return nil, errors.Newf("timeline entry %q: offset %d outside %d-byte slot", e.Key, e.Offset, slot.Size)
		}
		t.entries = append(t.entries, bound{Entry: e, slot: slot})
	}
	return t, nil
}

// WithObserver installs fn and returns t.
func (t *Timeline) WithObserver(fn Observer) *Timeline {
	t.observer = fn
	return t
}

func (t *Timeline) Table() *resource.Table { return t.table }

func (t *Timeline) Len() int { return len(t.entries) }

// Tick runs every callback in declaration order. The first failure stops
// the tick and discards everything written during it; otherwise the writes
// are committed.
func (t *Timeline) Tick(st *State) error {
	for _, e := range t.entries {
		dst, err := t.table.Span(e.slot, e.Offset)
		if err == nil {
			err = e.Callback.Apply(st, dst)
		}
		if t.observer != nil {
			t.observer(e.Key, err)
		}
		if err != nil {
			t.table.Discard()
			logging.WithComponent("timeline").WithFields(logrus.Fields{
				"window": st.Window,
				"key":    e.Key,
				"frame":  st.Frame,
			}).WithError(err).Debug("tick aborted")
			return errors.Wrapf(err, "timeline entry %q", e.Key)
		}
	}
	t.table.Commit()
	return nil
}

// Schedule runs Tick on pool and waits for it.
func (t *Timeline) Schedule(ctx context.Context, pool *workerpool.Pool, st *State) error {
	return pool.Do(ctx, workerpool.PriorityHigh, func() error { return t.Tick(st) })
}
