package world

// SpawnUnits spawns count units of proto at the given coordinates. Stackable prototypes
// are spawned in chunks bounded by the stack capacity; singular ones one entity per unit.
// It stops at the first failed spawn and reports how many units exist.
func SpawnUnits(store EntityStore, proto string, at Coordinates, count int) ([]EntityID, int) {
	var spawned []EntityID
	delivered := 0
	for delivered < count {
		id, ok := store.Spawn(proto, at)
		if !ok {
			break
		}
		e, _ := store.Get(id)
		if e == nil || e.Stack == nil {
			spawned = append(spawned, id)
			delivered++
			continue
		}
		n := count - delivered
		if e.Stack.Max > 0 && n > e.Stack.Max {
			n = e.Stack.Max
		}
		if n != e.Stack.Count && !store.SetStackCount(id, n) {
			store.Delete(id)
			break
		}
		spawned = append(spawned, id)
		delivered += n
	}
	return spawned, delivered
}

// PickupLater queues insertion of items into holder on the next tick. Items the holder
// cannot take, or that vanished meanwhile, stay where they were spawned.
func PickupLater(queue *DeferredQueue, store EntityStore, holder EntityID, items []EntityID) {
	if len(items) == 0 {
		return
	}
	pending := append([]EntityID(nil), items...)
	queue.Defer(func() {
		for _, id := range pending {
			if !store.Exists(id) || !store.Exists(holder) {
				continue
			}
			store.Insert(holder, id)
		}
	})
}
