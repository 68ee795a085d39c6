package prototype

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Registry indexes every prototype kind and answers inheritance queries.
// It is owned by the simulation thread and is not safe for concurrent use.
type Registry struct {
	entities   map[string]*EntityPrototype
	stackTypes map[string]*StackType
	stores     map[string]*StorePreset
	contracts  map[string]*ContractPrototype
	packs      map[string]*ContractPack
	pools      map[string]*RewardPool

	ancestors map[string][]string
	depths    map[string]int

	revision uint64
	onReload []func()
	logger   *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{logger: logger}
	r.reset()
	return r
}

// NewRegistryFromDocument builds a registry and loads doc into it.
func NewRegistryFromDocument(doc *Document, logger *zap.Logger) (*Registry, error) {
	r := NewRegistry(logger)
	if err := r.Reload(doc); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) reset() {
	r.entities = make(map[string]*EntityPrototype)
	r.stackTypes = make(map[string]*StackType)
	r.stores = make(map[string]*StorePreset)
	r.contracts = make(map[string]*ContractPrototype)
	r.packs = make(map[string]*ContractPack)
	r.pools = make(map[string]*RewardPool)
	r.ancestors = make(map[string][]string)
	r.depths = make(map[string]int)
}

// OnReload registers a callback fired after every successful Reload.
func (r *Registry) OnReload(fn func()) {
	r.onReload = append(r.onReload, fn)
}

// Revision increments on every reload.
func (r *Registry) Revision() uint64 {
	return r.revision
}

// Reload replaces all prototypes with the contents of doc. Structural problems
// (empty or duplicate ids) reject the whole document and keep the old data.
// Dangling references are only logged; the operations that hit them no-op.
func (r *Registry) Reload(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("nil prototype document")
	}
	next := &Registry{logger: r.logger}
	next.reset()

	for i := range doc.Entities {
		e := doc.Entities[i]
		if e.ID == "" {
			return fmt.Errorf("entity #%d: empty id", i)
		}
		if _, dup := next.entities[e.ID]; dup {
			return fmt.Errorf("entity %s: duplicate id", e.ID)
		}
		next.entities[e.ID] = &e
	}
	for i := range doc.StackTypes {
		s := doc.StackTypes[i]
		if s.ID == "" {
			return fmt.Errorf("stack type #%d: empty id", i)
		}
		if _, dup := next.stackTypes[s.ID]; dup {
			return fmt.Errorf("stack type %s: duplicate id", s.ID)
		}
		next.stackTypes[s.ID] = &s
	}
	for i := range doc.Stores {
		s := doc.Stores[i]
		if s.ID == "" {
			return fmt.Errorf("store preset #%d: empty id", i)
		}
		if _, dup := next.stores[s.ID]; dup {
			return fmt.Errorf("store preset %s: duplicate id", s.ID)
		}
		next.stores[s.ID] = &s
	}
	for i := range doc.Contracts {
		c := doc.Contracts[i]
		if c.ID == "" {
			return fmt.Errorf("contract #%d: empty id", i)
		}
		if _, dup := next.contracts[c.ID]; dup {
			return fmt.Errorf("contract %s: duplicate id", c.ID)
		}
		next.contracts[c.ID] = &c
	}
	for i := range doc.Packs {
		p := doc.Packs[i]
		if p.ID == "" {
			return fmt.Errorf("pack #%d: empty id", i)
		}
		if _, dup := next.packs[p.ID]; dup {
			return fmt.Errorf("pack %s: duplicate id", p.ID)
		}
		next.packs[p.ID] = &p
	}
	for i := range doc.Pools {
		p := doc.Pools[i]
		if p.ID == "" {
			return fmt.Errorf("pool #%d: empty id", i)
		}
		if _, dup := next.pools[p.ID]; dup {
			return fmt.Errorf("pool %s: duplicate id", p.ID)
		}
		next.pools[p.ID] = &p
	}

	next.warnDangling()

	r.entities = next.entities
	r.stackTypes = next.stackTypes
	r.stores = next.stores
	r.contracts = next.contracts
	r.packs = next.packs
	r.pools = next.pools
	r.ancestors = make(map[string][]string)
	r.depths = make(map[string]int)
	r.revision++

	for _, fn := range r.onReload {
		fn()
	}
	return nil
}

func (r *Registry) warnDangling() {
	for _, e := range r.entities {
		for _, p := range e.Parents {
			if _, ok := r.entities[p]; !ok {
				r.logger.Warn("Unknown parent prototype",
					zap.String("entity", e.ID), zap.String("parent", p))
			}
		}
		if e.Stack != nil {
			if _, ok := r.stackTypes[e.Stack.Type]; !ok {
				r.logger.Warn("Unknown stack type",
					zap.String("entity", e.ID), zap.String("stack_type", e.Stack.Type))
			}
		}
	}
	for _, s := range r.stackTypes {
		if _, ok := r.entities[s.Spawn]; !ok {
			r.logger.Warn("Stack type spawns unknown prototype",
				zap.String("stack_type", s.ID), zap.String("spawn", s.Spawn))
		}
	}
	for _, p := range r.packs {
		for _, inc := range p.Include {
			if _, ok := r.packs[inc]; !ok {
				r.logger.Warn("Pack includes unknown pack",
					zap.String("pack", p.ID), zap.String("include", inc))
			}
		}
	}
}

// Entity returns an entity prototype.
func (r *Registry) Entity(id string) (*EntityPrototype, bool) {
	e, ok := r.entities[id]
	return e, ok
}

// StackType returns a stack type.
func (r *Registry) StackType(id string) (*StackType, bool) {
	s, ok := r.stackTypes[id]
	return s, ok
}

// Store returns a store preset.
func (r *Registry) Store(id string) (*StorePreset, bool) {
	s, ok := r.stores[id]
	return s, ok
}

// Contract returns a contract prototype.
func (r *Registry) Contract(id string) (*ContractPrototype, bool) {
	c, ok := r.contracts[id]
	return c, ok
}

// Pack returns a contract pack.
func (r *Registry) Pack(id string) (*ContractPack, bool) {
	p, ok := r.packs[id]
	return p, ok
}

// Pool returns a reward pool.
func (r *Registry) Pool(id string) (*RewardPool, bool) {
	p, ok := r.pools[id]
	return p, ok
}

// StoreIDs lists store preset ids in sorted order.
func (r *Registry) StoreIDs() []string {
	ids := make([]string, 0, len(r.stores))
	for id := range r.stores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StackOf returns the stack component of an entity prototype, or nil for singular items.
func (r *Registry) StackOf(id string) *StackComponent {
	if e, ok := r.entities[id]; ok {
		return e.Stack
	}
	return nil
}

// Ancestors returns id followed by every prototype it inherits from, breadth-first,
// without duplicates. Unknown ids yield just themselves.
func (r *Registry) Ancestors(id string) []string {
	if cached, ok := r.ancestors[id]; ok {
		return cached
	}
	out := []string{id}
	seen := map[string]struct{}{id: {}}
	for i := 0; i < len(out); i++ {
		e, ok := r.entities[out[i]]
		if !ok {
			continue
		}
		for _, p := range e.Parents {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	r.ancestors[id] = out
	return out
}

// IsDescendant reports whether id equals ancestor or inherits from it.
func (r *Registry) IsDescendant(id, ancestor string) bool {
	for _, a := range r.Ancestors(id) {
		if a == ancestor {
			return true
		}
	}
	return false
}

// Depth is the length of the longest parent chain above id. Roots have depth 0.
func (r *Registry) Depth(id string) int {
	return r.depth(id, map[string]bool{})
}

func (r *Registry) depth(id string, visiting map[string]bool) int {
	if d, ok := r.depths[id]; ok {
		return d
	}
	if visiting[id] {
		return 0
	}
	visiting[id] = true
	d := 0
	if e, ok := r.entities[id]; ok {
		for _, p := range e.Parents {
			if pd := r.depth(p, visiting) + 1; pd > d {
				d = pd
			}
		}
	}
	visiting[id] = false
	r.depths[id] = d
	return d
}
