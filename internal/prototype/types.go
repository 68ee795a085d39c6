package prototype

// EntityPrototype describes a spawnable entity and its inheritance.
type EntityPrototype struct {
	ID       string          `yaml:"id" json:"id"`
	Name     string          `yaml:"name,omitempty" json:"name,omitempty"`
	Parents  []string        `yaml:"parents,omitempty" json:"parents,omitempty"`
	Abstract bool            `yaml:"abstract,omitempty" json:"abstract,omitempty"`
	Stack    *StackComponent `yaml:"stack,omitempty" json:"stack,omitempty"`
}

// StackComponent marks an entity as a stack of the given type.
type StackComponent struct {
	Type  string `yaml:"type" json:"type"`
	Count int    `yaml:"count,omitempty" json:"count,omitempty"`
}

// StackType is a fungible stack kind. Stack types double as currency ids.
type StackType struct {
	ID       string `yaml:"id" json:"id"`
	Spawn    string `yaml:"spawn" json:"spawn"`
	MaxCount int    `yaml:"max_count,omitempty" json:"max_count,omitempty"`
}

// Range is an inclusive integer range.
type Range struct {
	Min int64 `yaml:"min" json:"min"`
	Max int64 `yaml:"max" json:"max"`
}

// Normalize returns the range with Max raised to Min when it is lower.
func (r Range) Normalize() Range {
	if r.Max < r.Min {
		r.Max = r.Min
	}
	return r
}

// ListingDef is a preset listing.
type ListingDef struct {
	ID      string           `yaml:"id" json:"id"`
	Mode    string           `yaml:"mode" json:"mode"`
	Product string           `yaml:"product" json:"product"`
	Prices  map[string]int64 `yaml:"prices" json:"prices"`
	Stock   *int             `yaml:"stock,omitempty" json:"stock,omitempty"`
	Match   string           `yaml:"match,omitempty" json:"match,omitempty"`
	Units   int              `yaml:"units,omitempty" json:"units,omitempty"`
}

// StorePreset is what a store instance is built from.
type StorePreset struct {
	ID         string       `yaml:"id" json:"id"`
	Listings   []ListingDef `yaml:"listings" json:"listings"`
	Currencies []string     `yaml:"currencies,omitempty" json:"currencies,omitempty"`
	Packs      []string     `yaml:"packs,omitempty" json:"packs,omitempty"`
}

// TargetDef is a contract requirement before its amount is rolled.
type TargetDef struct {
	Proto  string `yaml:"proto" json:"proto"`
	Match  string `yaml:"match,omitempty" json:"match,omitempty"`
	Amount Range  `yaml:"amount" json:"amount"`
}

// Reward definition kinds.
const (
	RewardKindCurrency = "currency"
	RewardKindItem     = "item"
	RewardKindPool     = "pool"
)

// RewardDef is a possibly probabilistic reward. Kind pool refers to a RewardPool by ID.
type RewardDef struct {
	Kind   string  `yaml:"kind" json:"kind"`
	ID     string  `yaml:"id" json:"id"`
	Amount Range   `yaml:"amount,omitempty" json:"amount,omitempty"`
	Chance float64 `yaml:"chance,omitempty" json:"chance,omitempty"`
}

// RewardPool rolls weighted entries a number of times.
type RewardPool struct {
	ID         string      `yaml:"id" json:"id"`
	Rolls      Range       `yaml:"rolls,omitempty" json:"rolls,omitempty"`
	MaxRepeats int         `yaml:"max_repeats,omitempty" json:"max_repeats,omitempty"`
	Entries    []PoolEntry `yaml:"entries" json:"entries"`
}

// PoolEntry is one weighted outcome of a pool.
type PoolEntry struct {
	Weight float64   `yaml:"weight" json:"weight"`
	Reward RewardDef `yaml:"reward" json:"reward"`
}

// ContractPrototype is the template a contract is generated from.
type ContractPrototype struct {
	ID          string      `yaml:"id" json:"id"`
	Name        string      `yaml:"name" json:"name"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Difficulty  string      `yaml:"difficulty" json:"difficulty"`
	Repeatable  bool        `yaml:"repeatable,omitempty" json:"repeatable,omitempty"`
	Targets     []TargetDef `yaml:"targets" json:"targets"`
	Rewards     []RewardDef `yaml:"rewards,omitempty" json:"rewards,omitempty"`
}

// PackEntry is a weighted contract reference inside a pack. A missing weight means 1;
// an explicit weight of zero or less excludes the entry.
type PackEntry struct {
	Contract string   `yaml:"contract" json:"contract"`
	Weight   *float64 `yaml:"weight,omitempty" json:"weight,omitempty"`
}

// EffectiveWeight returns the entry's draw weight.
func (e PackEntry) EffectiveWeight() float64 {
	if e.Weight == nil {
		return 1
	}
	return *e.Weight
}

// ContractPack groups contracts, may include other packs and declares slot quotas per difficulty.
type ContractPack struct {
	ID        string         `yaml:"id" json:"id"`
	Include   []string       `yaml:"include,omitempty" json:"include,omitempty"`
	Contracts []PackEntry    `yaml:"contracts,omitempty" json:"contracts,omitempty"`
	Slots     map[string]int `yaml:"slots,omitempty" json:"slots,omitempty"`
}

// Document is one preset file.
type Document struct {
	Entities   []EntityPrototype   `yaml:"entities" json:"entities"`
	StackTypes []StackType         `yaml:"stack_types,omitempty" json:"stack_types,omitempty"`
	Stores     []StorePreset       `yaml:"stores,omitempty" json:"stores,omitempty"`
	Contracts  []ContractPrototype `yaml:"contracts,omitempty" json:"contracts,omitempty"`
	Packs      []ContractPack      `yaml:"packs,omitempty" json:"packs,omitempty"`
	Pools      []RewardPool        `yaml:"pools,omitempty" json:"pools,omitempty"`
}
