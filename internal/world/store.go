package world

import (
	"sync"

	"go.uber.org/zap"

	"tradepost/internal/prototype"
)

// EntityStore is the entity capability the economy runs against.
type EntityStore interface {
	Spawn(proto string, at Coordinates) (EntityID, bool)
	Delete(id EntityID)
	Exists(id EntityID) bool
	Get(id EntityID) (*Entity, bool)
	SetStackCount(id EntityID, count int) bool
	Insert(holder, item EntityID) bool
	Root(id EntityID) EntityID
}

// Bounded is implemented by stores that cap live entities.
type Bounded interface {
	// Free returns how many more entities can be spawned, or -1 when unlimited.
	Free() int
}

// FreeSlots reports the store's spawn headroom, -1 when it has no limit.
func FreeSlots(store EntityStore) int {
	if b, ok := store.(Bounded); ok {
		return b.Free()
	}
	return -1
}

// Observer is told about container and stack mutations, keyed by the root holder.
type Observer interface {
	EntityMutated(root EntityID)
	EntityDeleted(root, id EntityID)
}

type stackDef struct {
	typ   string
	count int
	max   int
}

// MemoryStore is an in-process EntityStore.
type MemoryStore struct {
	registry  *prototype.Registry
	entities  map[EntityID]*Entity
	nextID    EntityID
	observers []Observer
	logger    *zap.Logger

	stackMu    sync.Mutex
	stackCache map[string]*stackDef

	// Capacity caps the number of live entities; zero means unlimited.
	Capacity int
}

// NewMemoryStore creates an empty store that resolves stack components through registry.
func NewMemoryStore(registry *prototype.Registry, logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &MemoryStore{
		registry:   registry,
		entities:   make(map[EntityID]*Entity),
		logger:     logger,
		stackCache: make(map[string]*stackDef),
	}
	if registry != nil {
		registry.OnReload(s.resetStackCache)
	}
	return s
}

// AddObserver subscribes o to mutation notifications.
func (s *MemoryStore) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

func (s *MemoryStore) resetStackCache() {
	s.stackMu.Lock()
	s.stackCache = make(map[string]*stackDef)
	s.stackMu.Unlock()
}

func (s *MemoryStore) stackFor(proto string) *stackDef {
	s.stackMu.Lock()
	defer s.stackMu.Unlock()
	if def, ok := s.stackCache[proto]; ok {
		return def
	}
	var def *stackDef
	if s.registry != nil {
		if comp := s.registry.StackOf(proto); comp != nil {
			def = &stackDef{typ: comp.Type, count: comp.Count}
			if def.count <= 0 {
				def.count = 1
			}
			if st, ok := s.registry.StackType(comp.Type); ok {
				def.max = st.MaxCount
			}
		}
	}
	s.stackCache[proto] = def
	return def
}

// Spawn creates an entity of proto on the ground at the given coordinates.
func (s *MemoryStore) Spawn(proto string, at Coordinates) (EntityID, bool) {
	if s.Capacity > 0 && len(s.entities) >= s.Capacity {
		s.logger.Warn("Entity capacity reached", zap.String("proto", proto))
		return 0, false
	}
	if s.registry != nil {
		if _, ok := s.registry.Entity(proto); !ok {
			s.logger.Warn("Spawn of unknown prototype", zap.String("proto", proto))
			return 0, false
		}
	}
	s.nextID++
	e := &Entity{ID: s.nextID, Proto: proto, Coords: at}
	if def := s.stackFor(proto); def != nil {
		e.Stack = &Stack{Type: def.typ, Count: def.count, Max: def.max}
	}
	s.entities[e.ID] = e
	return e.ID, true
}

// Delete removes id and everything it holds. Observers get one EntityDeleted per removed entity.
func (s *MemoryStore) Delete(id EntityID) {
	e, ok := s.entities[id]
	if !ok {
		return
	}
	root := s.Root(id)
	if e.Parent != 0 {
		if parent, ok := s.entities[e.Parent]; ok {
			parent.detach(id)
		}
	}
	s.deleteTree(root, e)
}

func (s *MemoryStore) deleteTree(root EntityID, e *Entity) {
	delete(s.entities, e.ID)
	for _, child := range e.Children() {
		if c, ok := s.entities[child]; ok {
			s.deleteTree(root, c)
		}
	}
	for _, o := range s.observers {
		o.EntityDeleted(root, e.ID)
	}
}

// Exists reports whether id is alive.
func (s *MemoryStore) Exists(id EntityID) bool {
	_, ok := s.entities[id]
	return ok
}

// Get returns the live entity.
func (s *MemoryStore) Get(id EntityID) (*Entity, bool) {
	e, ok := s.entities[id]
	return e, ok
}

// SetStackCount overwrites a stack's count. Counts below one are rejected; delete the entity instead.
func (s *MemoryStore) SetStackCount(id EntityID, count int) bool {
	e, ok := s.entities[id]
	if !ok || e.Stack == nil || count < 1 {
		return false
	}
	if e.Stack.Max > 0 && count > e.Stack.Max {
		return false
	}
	e.Stack.Count = count
	s.notifyMutated(s.Root(id))
	return true
}

// Insert moves item into the first container of holder.
func (s *MemoryStore) Insert(holder, item EntityID) bool {
	h, ok := s.entities[holder]
	if !ok || len(h.Containers) == 0 {
		return false
	}
	return s.PutInContainer(holder, h.Containers[0].Name, item)
}

// Root follows parents up to the outermost holder.
func (s *MemoryStore) Root(id EntityID) EntityID {
	seen := map[EntityID]struct{}{}
	cur := id
	for {
		e, ok := s.entities[cur]
		if !ok || e.Parent == 0 {
			return cur
		}
		if _, loop := seen[cur]; loop {
			return cur
		}
		seen[cur] = struct{}{}
		cur = e.Parent
	}
}

// AddSlot gives holder a new empty slot.
func (s *MemoryStore) AddSlot(holder EntityID, name string, kind SlotKind) bool {
	h, ok := s.entities[holder]
	if !ok {
		return false
	}
	if _, dup := h.Slot(name); dup {
		return false
	}
	h.Slots = append(h.Slots, &Slot{Name: name, Kind: kind})
	return true
}

// AddContainer gives holder a new empty container.
func (s *MemoryStore) AddContainer(holder EntityID, name string) bool {
	h, ok := s.entities[holder]
	if !ok {
		return false
	}
	if _, dup := h.Container(name); dup {
		return false
	}
	h.Containers = append(h.Containers, &Container{Name: name})
	return true
}

// PutInSlot moves item into an empty slot of holder.
func (s *MemoryStore) PutInSlot(holder EntityID, slot string, item EntityID) bool {
	h, ok := s.entities[holder]
	if !ok || holder == item {
		return false
	}
	sl, ok := h.Slot(slot)
	if !ok || sl.Item != 0 {
		return false
	}
	if !s.detachItem(item) {
		return false
	}
	sl.Item = item
	s.entities[item].Parent = holder
	s.notifyMutated(s.Root(holder))
	return true
}

// PutInContainer appends item to a named container of holder.
func (s *MemoryStore) PutInContainer(holder EntityID, container string, item EntityID) bool {
	h, ok := s.entities[holder]
	if !ok || holder == item {
		return false
	}
	c, ok := h.Container(container)
	if !ok {
		return false
	}
	if !s.detachItem(item) {
		return false
	}
	c.Items = append(c.Items, item)
	s.entities[item].Parent = holder
	s.notifyMutated(s.Root(holder))
	return true
}

func (s *MemoryStore) detachItem(item EntityID) bool {
	e, ok := s.entities[item]
	if !ok {
		return false
	}
	if e.Parent == 0 {
		return true
	}
	oldRoot := s.Root(item)
	if parent, ok := s.entities[e.Parent]; ok {
		parent.detach(item)
	}
	e.Parent = 0
	s.notifyMutated(oldRoot)
	return true
}

func (s *MemoryStore) notifyMutated(root EntityID) {
	for _, o := range s.observers {
		o.EntityMutated(root)
	}
}

// Len returns the number of live entities.
func (s *MemoryStore) Len() int {
	return len(s.entities)
}

// Free implements Bounded.
func (s *MemoryStore) Free() int {
	if s.Capacity <= 0 {
		return -1
	}
	if free := s.Capacity - len(s.entities); free > 0 {
		return free
	}
	return 0
}
