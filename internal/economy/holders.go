package economy

import (
	"tradepost/internal/world"
)

// Holder kinds the engine can spawn.
const (
	HolderPlayer = "Player"
	HolderCrate  = "Crate"
)

// SpawnHolder creates a player (pockets, hand and head slots) or a crate (hold container).
func (e *Engine) SpawnHolder(kind string, at world.Coordinates) (world.EntityID, bool) {
	id, ok := e.entities.Spawn(kind, at)
	if !ok {
		return 0, false
	}
	switch kind {
	case HolderCrate:
		e.entities.AddContainer(id, "hold")
	default:
		e.entities.AddContainer(id, "pockets")
		e.entities.AddSlot(id, "hand", world.SlotHand)
		e.entities.AddSlot(id, "head", world.SlotEquipment)
	}
	return id, true
}

// Grant spawns count units of proto directly into holder and returns how many arrived.
func (e *Engine) Grant(holder world.EntityID, proto string, count int) int {
	if !e.entities.Exists(holder) || count <= 0 {
		return 0
	}
	ids, _ := world.SpawnUnits(e.entities, proto, world.Coordinates{}, count)
	granted := 0
	for _, id := range ids {
		units := 1
		if ent, ok := e.entities.Get(id); ok && ent.Stack != nil {
			units = ent.Stack.Count
		}
		if !e.entities.Insert(holder, id) {
			e.entities.Delete(id)
			continue
		}
		granted += units
	}
	return granted
}
