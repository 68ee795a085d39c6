package inventory

import (
	"go.uber.org/zap"

	"tradepost/internal/prototype"
	"tradepost/internal/world"
)

const (
	compactMinEntries = 256
	compactStaleRatio = 4 // compact once a quarter of the cached handles are dead
)

// Entry is one deep item as seen at read time.
type Entry struct {
	ID        world.EntityID
	Proto     string
	StackType string
	Count     int
	Protected bool
}

// Stackable reports whether the entry is a stack.
func (e Entry) Stackable() bool {
	return e.StackType != ""
}

type holderCache struct {
	items     []world.EntityID
	protected map[world.EntityID]bool
	dirty     bool
	stale     int
	snapshot  *Snapshot
}

// Index caches the deep item list and snapshot of every holder it was asked about.
// It implements world.Observer and must be registered with the entity store.
type Index struct {
	store    world.EntityStore
	registry *prototype.Registry
	caches   map[world.EntityID]*holderCache
	logger   *zap.Logger

	rebuilds    int
	compactions int
}

// NewIndex creates an index over store.
func NewIndex(store world.EntityStore, registry *prototype.Registry, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	x := &Index{
		store:    store,
		registry: registry,
		caches:   make(map[world.EntityID]*holderCache),
		logger:   logger,
	}
	registry.OnReload(x.dropSnapshots)
	return x
}

func (x *Index) dropSnapshots() {
	for _, c := range x.caches {
		c.snapshot = nil
	}
}

// EntityMutated implements world.Observer.
func (x *Index) EntityMutated(root world.EntityID) {
	x.NotifyMutated(root)
}

// EntityDeleted implements world.Observer. Deleting a holder tears its cache down;
// deleting an item only marks the cached handle stale.
func (x *Index) EntityDeleted(root, id world.EntityID) {
	if root == id {
		x.Forget(root)
		return
	}
	c, ok := x.caches[root]
	if !ok {
		return
	}
	c.snapshot = nil
	if c.dirty {
		return
	}
	c.stale++
	if len(c.items) >= compactMinEntries && c.stale*compactStaleRatio >= len(c.items) {
		x.compact(c)
	}
}

// NotifyMutated marks a holder's deep list and snapshot dirty.
func (x *Index) NotifyMutated(holder world.EntityID) {
	if c, ok := x.caches[holder]; ok {
		c.dirty = true
		c.snapshot = nil
	}
}

// Forget drops everything cached for holder.
func (x *Index) Forget(holder world.EntityID) {
	delete(x.caches, holder)
}

func (x *Index) compact(c *holderCache) {
	kept := c.items[:0]
	for _, id := range c.items {
		if x.store.Exists(id) {
			kept = append(kept, id)
			continue
		}
		delete(c.protected, id)
	}
	for i := len(kept); i < len(c.items); i++ {
		c.items[i] = 0
	}
	c.items = kept
	c.stale = 0
	x.compactions++
}

func (x *Index) cache(holder world.EntityID) *holderCache {
	c, ok := x.caches[holder]
	if !ok {
		c = &holderCache{dirty: true}
		x.caches[holder] = c
	}
	if c.dirty {
		c.items, c.protected = x.scan(holder)
		c.dirty = false
		c.stale = 0
		c.snapshot = nil
		x.rebuilds++
	}
	return c
}

// scan walks slots, sockets and containers breadth-first. Items worn in the holder's
// own equipment slots are protected; whatever they carry is not.
func (x *Index) scan(holder world.EntityID) ([]world.EntityID, map[world.EntityID]bool) {
	root, ok := x.store.Get(holder)
	if !ok {
		return nil, nil
	}
	var items []world.EntityID
	protected := make(map[world.EntityID]bool)
	visited := map[world.EntityID]struct{}{holder: {}}

	var queue []world.EntityID
	for _, s := range root.Slots {
		if s.Item == 0 {
			continue
		}
		if s.Kind == world.SlotEquipment {
			protected[s.Item] = true
		}
		queue = append(queue, s.Item)
	}
	for _, c := range root.Containers {
		queue = append(queue, c.Items...)
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, seen := visited[id]; seen {
			continue
		}
		visited[id] = struct{}{}
		e, ok := x.store.Get(id)
		if !ok {
			continue
		}
		items = append(items, id)
		queue = append(queue, e.Children()...)
	}
	return items, protected
}

// GetDeepItems returns every live item reachable from holder in traversal order.
func (x *Index) GetDeepItems(holder world.EntityID) []world.EntityID {
	c := x.cache(holder)
	out := make([]world.EntityID, 0, len(c.items))
	for _, id := range c.items {
		if c.stale > 0 && !x.store.Exists(id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// DeepEntries resolves the deep item list into entries with current stack counts.
func (x *Index) DeepEntries(holder world.EntityID) []Entry {
	c := x.cache(holder)
	out := make([]Entry, 0, len(c.items))
	for _, id := range c.items {
		e, ok := x.store.Get(id)
		if !ok {
			continue
		}
		entry := Entry{ID: id, Proto: e.Proto, Count: 1, Protected: c.protected[id]}
		if e.Stack != nil {
			entry.StackType = e.Stack.Type
			entry.Count = e.Stack.Count
		}
		out = append(out, entry)
	}
	return out
}

// TakeableItems is DeepEntries without protected equipment.
func (x *Index) TakeableItems(holder world.EntityID) []Entry {
	all := x.DeepEntries(holder)
	out := all[:0]
	for _, e := range all {
		if !e.Protected {
			out = append(out, e)
		}
	}
	return out
}

// BuildSnapshot returns the cached aggregate for holder, rebuilding it if it was invalidated.
func (x *Index) BuildSnapshot(holder world.EntityID) *Snapshot {
	c := x.cache(holder)
	if c.snapshot == nil {
		c.snapshot = buildSnapshot(x.registry, uint64(holder), x.DeepEntries(holder))
	}
	return c.snapshot
}

// Stats reports cache activity.
type Stats struct {
	Holders     int
	Rebuilds    int
	Compactions int
}

// Stats returns cache counters.
func (x *Index) Stats() Stats {
	return Stats{Holders: len(x.caches), Rebuilds: x.rebuilds, Compactions: x.compactions}
}
