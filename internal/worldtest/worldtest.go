// Package worldtest builds small deterministic worlds for package tests.
package worldtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"tradepost/internal/prototype"
	"tradepost/internal/world"
)

// PresetsYAML is the shared preset fixture.
const PresetsYAML = `
entities:
  - id: Player
  - id: Crate
  - id: BaseItem
    abstract: true
  - id: Widget
    parents: [BaseItem]
  - id: Gadget
    parents: [BaseItem]
  - id: Helmet
    parents: [BaseItem]
  - id: Backpack
    parents: [BaseItem]
  - id: BaseOre
    parents: [BaseItem]
    abstract: true
  - id: GoldOre
    parents: [BaseOre]
  - id: IronOre
    parents: [BaseOre]
  - id: Credit
    parents: [BaseItem]
    stack: {type: Credits}
  - id: Token
    parents: [BaseItem]
    stack: {type: Tokens}
  - id: Scrap
    parents: [BaseItem]
    stack: {type: Scrap}
stack_types:
  - id: Credits
    spawn: Credit
    max_count: 100
  - id: Tokens
    spawn: Token
  - id: Scrap
    spawn: Scrap
    max_count: 30
stores:
  - id: general
    currencies: [Credits, Tokens]
    packs: [general-pack]
    listings:
      - id: buy-widget
        mode: buy
        product: Widget
        prices: {Credits: 10}
        stock: 5
      - id: buy-gadget
        mode: buy
        product: Gadget
        prices: {Credits: 25, Tokens: 3}
      - id: buy-scrap
        mode: buy
        product: Scrap
        prices: {Credits: 2}
        units: 10
      - id: sell-ore
        mode: sell
        product: BaseOre
        match: descendant
        prices: {Credits: 5}
      - id: sell-gold
        mode: sell
        product: GoldOre
        prices: {Credits: 8}
        stock: 10
      - id: sell-scrap
        mode: sell
        product: Scrap
        prices: {Credits: 1}
contracts:
  - id: gold-run
    name: Gold run
    difficulty: easy
    targets:
      - proto: GoldOre
        amount: {min: 3}
    rewards:
      - kind: currency
        id: Credits
        amount: {min: 100}
  - id: iron-run
    name: Iron run
    difficulty: easy
    repeatable: true
    targets:
      - proto: IronOre
        amount: {min: 2, max: 4}
    rewards:
      - kind: currency
        id: Credits
        amount: {min: 40, max: 60}
  - id: ore-mix
    name: Ore mix
    difficulty: medium
    targets:
      - proto: BaseOre
        match: descendant
        amount: {min: 5}
    rewards:
      - kind: item
        id: Widget
        amount: {min: 1}
      - kind: pool
        id: bonus
  - id: widget-order
    name: Widget order
    difficulty: medium
    repeatable: true
    targets:
      - proto: Widget
        amount: {min: 2}
      - proto: Gadget
        amount: {min: 1}
    rewards:
      - kind: currency
        id: Tokens
        amount: {min: 5}
packs:
  - id: general-pack
    include: [extra-pack]
    slots: {easy: 1, medium: 1}
    contracts:
      - contract: gold-run
        weight: 1
      - contract: iron-run
        weight: 2
  - id: extra-pack
    contracts:
      - contract: ore-mix
      - contract: widget-order
pools:
  - id: bonus
    rolls: {min: 1}
    entries:
      - weight: 3
        reward: {kind: currency, id: Credits, amount: {min: 10}}
      - weight: 1
        reward: {kind: currency, id: Tokens, amount: {min: 5}}
`

// World bundles a registry, an entity store and a deferred queue.
type World struct {
	Registry *prototype.Registry
	Store    *world.MemoryStore
	Queue    *world.DeferredQueue
}

// Document parses PresetsYAML.
func Document(t testing.TB) *prototype.Document {
	t.Helper()
	doc, err := prototype.Parse([]byte(PresetsYAML))
	require.NoError(t, err)
	return doc
}

// Registry loads PresetsYAML into a fresh registry.
func Registry(t testing.TB) *prototype.Registry {
	t.Helper()
	reg, err := prototype.NewRegistryFromDocument(Document(t), nil)
	require.NoError(t, err)
	return reg
}

// New builds a world over the shared fixture.
func New(t testing.TB) *World {
	t.Helper()
	reg := Registry(t)
	return &World{
		Registry: reg,
		Store:    world.NewMemoryStore(reg, nil),
		Queue:    &world.DeferredQueue{},
	}
}

// Player spawns a holder with a hand slot, a head equipment slot and a pockets container.
func (w *World) Player(t testing.TB) world.EntityID {
	t.Helper()
	id, ok := w.Store.Spawn("Player", world.Coordinates{X: 1, Y: 1})
	require.True(t, ok)
	require.True(t, w.Store.AddContainer(id, "pockets"))
	require.True(t, w.Store.AddSlot(id, "hand", world.SlotHand))
	require.True(t, w.Store.AddSlot(id, "head", world.SlotEquipment))
	return id
}

// Crate spawns a holder with a single hold container.
func (w *World) Crate(t testing.TB) world.EntityID {
	t.Helper()
	id, ok := w.Store.Spawn("Crate", world.Coordinates{X: 2, Y: 2})
	require.True(t, ok)
	require.True(t, w.Store.AddContainer(id, "hold"))
	return id
}

// Give spawns count units of proto straight into the holder's first container.
func (w *World) Give(t testing.TB, holder world.EntityID, proto string, count int) []world.EntityID {
	t.Helper()
	ids, n := world.SpawnUnits(w.Store, proto, world.Coordinates{}, count)
	require.Equal(t, count, n)
	for _, id := range ids {
		require.True(t, w.Store.Insert(holder, id))
	}
	return ids
}

// CountProto counts units of proto held anywhere under holder.
func (w *World) CountProto(holder world.EntityID, proto string) int {
	total := 0
	w.walk(holder, func(e *world.Entity) {
		if e.Proto != proto {
			return
		}
		if e.Stack != nil {
			total += e.Stack.Count
		} else {
			total++
		}
	})
	return total
}

// Held lists every entity under holder as id to stack count, for before/after comparisons.
func (w *World) Held(holder world.EntityID) map[world.EntityID]int {
	out := map[world.EntityID]int{}
	w.walk(holder, func(e *world.Entity) {
		n := 1
		if e.Stack != nil {
			n = e.Stack.Count
		}
		out[e.ID] = n
	})
	return out
}

func (w *World) walk(holder world.EntityID, fn func(*world.Entity)) {
	root, ok := w.Store.Get(holder)
	if !ok {
		return
	}
	queue := root.Children()
	seen := map[world.EntityID]bool{}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		e, ok := w.Store.Get(id)
		if !ok {
			continue
		}
		fn(e)
		queue = append(queue, e.Children()...)
	}
}
