package world

// EntityID is an opaque entity handle. Zero is never a valid entity.
type EntityID uint64

// Coordinates locate an entity that is not held by anything.
type Coordinates struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SlotKind distinguishes hand slots from worn equipment and item sockets.
type SlotKind int

const (
	SlotHand SlotKind = iota
	SlotEquipment
	SlotSocket
)

// Slot holds at most one item.
type Slot struct {
	Name string
	Kind SlotKind
	Item EntityID
}

// Container holds an ordered list of items.
type Container struct {
	Name  string
	Items []EntityID
}

// Stack is the typed stack component of a fungible item.
type Stack struct {
	Type  string
	Count int
	// Max is the per-entity capacity; zero means unbounded.
	Max int
}

// Room returns how many more units fit into the stack.
func (s *Stack) Room() int {
	if s.Max <= 0 {
		return int(^uint(0) >> 1)
	}
	if s.Count >= s.Max {
		return 0
	}
	return s.Max - s.Count
}

// Entity is a spawned instance. Items and holders are both entities.
type Entity struct {
	ID         EntityID
	Proto      string
	Coords     Coordinates
	Stack      *Stack
	Slots      []*Slot
	Containers []*Container
	// Parent is the entity whose slot or container holds this one, zero when on the ground.
	Parent EntityID
}

// Slot returns the named slot.
func (e *Entity) Slot(name string) (*Slot, bool) {
	for _, s := range e.Slots {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Container returns the named container.
func (e *Entity) Container(name string) (*Container, bool) {
	for _, c := range e.Containers {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Children lists every directly held item: slots first, then containers in order.
func (e *Entity) Children() []EntityID {
	var out []EntityID
	for _, s := range e.Slots {
		if s.Item != 0 {
			out = append(out, s.Item)
		}
	}
	for _, c := range e.Containers {
		out = append(out, c.Items...)
	}
	return out
}

func (e *Entity) detach(child EntityID) bool {
	for _, s := range e.Slots {
		if s.Item == child {
			s.Item = 0
			return true
		}
	}
	for _, c := range e.Containers {
		for i, id := range c.Items {
			if id == child {
				c.Items = append(c.Items[:i], c.Items[i+1:]...)
				return true
			}
		}
	}
	return false
}
