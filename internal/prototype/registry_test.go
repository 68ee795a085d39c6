package prototype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
entities:
  - id: BaseItem
    abstract: true
  - id: BaseOre
    parents: [BaseItem]
    abstract: true
  - id: GoldOre
    parents: [BaseOre]
  - id: IronOre
    parents: [BaseOre, BaseItem]
  - id: Credit
    parents: [BaseItem]
    stack: {type: Credits, count: 1}
stack_types:
  - id: Credits
    spawn: Credit
    max_count: 100
stores:
  - id: cargo
    currencies: [Credits]
    packs: [starter]
    listings:
      - id: sell-ore
        mode: sell
        product: BaseOre
        match: descendant
        prices: {Credits: 5}
contracts:
  - id: ore-run
    name: Ore run
    difficulty: easy
    targets:
      - proto: GoldOre
        amount: {min: 2, max: 4}
    rewards:
      - kind: currency
        id: Credits
        amount: {min: 50}
packs:
  - id: starter
    slots: {easy: 1}
    contracts:
      - contract: ore-run
        weight: 2
`

func TestParseAndReload(t *testing.T) {
	doc, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	reg, err := NewRegistryFromDocument(doc, nil)
	require.NoError(t, err)

	gold, ok := reg.Entity("GoldOre")
	require.True(t, ok)
	assert.Equal(t, []string{"BaseOre"}, gold.Parents)

	st, ok := reg.StackType("Credits")
	require.True(t, ok)
	assert.Equal(t, 100, st.MaxCount)

	preset, ok := reg.Store("cargo")
	require.True(t, ok)
	require.Len(t, preset.Listings, 1)
	assert.Equal(t, int64(5), preset.Listings[0].Prices["Credits"])

	contract, ok := reg.Contract("ore-run")
	require.True(t, ok)
	assert.Equal(t, Range{Min: 2, Max: 4}, contract.Targets[0].Amount)
	assert.Equal(t, Range{Min: 50, Max: 50}, contract.Rewards[0].Amount.Normalize())

	pack, ok := reg.Pack("starter")
	require.True(t, ok)
	assert.Equal(t, 1, pack.Slots["easy"])
	assert.Equal(t, []string{"cargo"}, reg.StoreIDs())
}

func TestParseRejectsSchemaViolations(t *testing.T) {
	_, err := Parse([]byte(`
entities:
  - id: A
stores:
  - id: s
    listings:
      - id: l
        mode: lend
        product: A
        prices: {X: 1}
`))
	require.Error(t, err)

	_, err = Parse([]byte(`stores: []`))
	require.Error(t, err)
}

func TestAncestorsAndDepth(t *testing.T) {
	doc, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	reg, err := NewRegistryFromDocument(doc, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"IronOre", "BaseOre", "BaseItem"}, reg.Ancestors("IronOre"))
	assert.Equal(t, []string{"Unknown"}, reg.Ancestors("Unknown"))
	assert.True(t, reg.IsDescendant("GoldOre", "BaseItem"))
	assert.True(t, reg.IsDescendant("GoldOre", "GoldOre"))
	assert.False(t, reg.IsDescendant("BaseOre", "GoldOre"))

	assert.Equal(t, 0, reg.Depth("BaseItem"))
	assert.Equal(t, 1, reg.Depth("BaseOre"))
	assert.Equal(t, 2, reg.Depth("GoldOre"))
	assert.Equal(t, 2, reg.Depth("IronOre"))
}

func TestReloadFiresCallbacksAndRejectsDuplicates(t *testing.T) {
	reg := NewRegistry(nil)
	fired := 0
	reg.OnReload(func() { fired++ })

	require.NoError(t, reg.Reload(&Document{Entities: []EntityPrototype{{ID: "A"}}}))
	assert.Equal(t, 1, fired)
	assert.Equal(t, uint64(1), reg.Revision())

	err := reg.Reload(&Document{Entities: []EntityPrototype{{ID: "B"}, {ID: "B"}}})
	require.Error(t, err)
	assert.Equal(t, 1, fired)

	_, stillThere := reg.Entity("A")
	assert.True(t, stillThere)
}

func TestDepthSurvivesParentCycles(t *testing.T) {
	reg, err := NewRegistryFromDocument(&Document{Entities: []EntityPrototype{
		{ID: "A", Parents: []string{"B"}},
		{ID: "B", Parents: []string{"A"}},
	}}, nil)
	require.NoError(t, err)

	assert.NotPanics(t, func() { reg.Depth("A") })
	assert.ElementsMatch(t, []string{"A", "B"}, reg.Ancestors("A"))
}

func TestShippedPresetsLoad(t *testing.T) {
	doc, err := LoadFile("../../presets/default.yaml")
	require.NoError(t, err)

	reg, err := NewRegistryFromDocument(doc, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"company", "general"}, reg.StoreIDs())
	assert.True(t, reg.IsDescendant("Drill", "BaseTool"))
	require.NotNil(t, reg.StackOf("Spesos"))
	st, ok := reg.StackType(reg.StackOf("Spesos").Type)
	require.True(t, ok)
	assert.Equal(t, 1000, st.MaxCount)
}
