package models

import (
	"math"
	"sort"

	"tradepost/internal/world"
)

// ListingMode tells whether the store sells a product to players or buys it from them.
type ListingMode string

const (
	ModeBuy  ListingMode = "buy"
	ModeSell ListingMode = "sell"
)

// MatchMode controls how an item prototype is compared against a listing or target.
type MatchMode string

const (
	MatchExact      MatchMode = "exact"
	MatchDescendant MatchMode = "descendant"
)

// UnlimitedStock marks a listing whose stock is never decremented.
const UnlimitedStock = -1

// Listing is a catalog entry. Everything except Remaining is fixed once the store is loaded.
type Listing struct {
	ID        string           `json:"id"`
	Mode      ListingMode      `json:"mode"`
	Product   string           `json:"product"`
	Prices    map[string]int64 `json:"prices"`
	Remaining int              `json:"remaining"`
	Match     MatchMode        `json:"match"`
	Units     int              `json:"units"`
}

// Unlimited reports whether the listing has no stock limit.
func (l *Listing) Unlimited() bool {
	return l.Remaining < 0
}

// Available returns how many purchases the stock still allows.
func (l *Listing) Available() int {
	if l.Unlimited() {
		return math.MaxInt32
	}
	return l.Remaining
}

// Consume decrements stock by n. Unlimited listings are left untouched and stock never goes negative.
func (l *Listing) Consume(n int) {
	if l.Unlimited() || n <= 0 {
		return
	}
	l.Remaining -= n
	if l.Remaining < 0 {
		l.Remaining = 0
	}
}

// Price returns the per-purchase price in the given currency.
func (l *Listing) Price(currency string) (int64, bool) {
	p, ok := l.Prices[currency]
	if !ok || p <= 0 {
		return 0, false
	}
	return p, true
}

// Currencies returns the currencies with a positive price, sorted by id.
func (l *Listing) Currencies() []string {
	out := make([]string, 0, len(l.Prices))
	for id, p := range l.Prices {
		if p > 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Clone returns a copy that does not share the price table.
func (l *Listing) Clone() Listing {
	c := *l
	c.Prices = make(map[string]int64, len(l.Prices))
	for k, v := range l.Prices {
		c.Prices[k] = v
	}
	return c
}

// Target is one fetch requirement of a contract.
type Target struct {
	Proto    string    `json:"proto"`
	Match    MatchMode `json:"match"`
	Required int       `json:"required"`
	Progress int       `json:"progress"`
}

// RewardKind distinguishes currency payouts from spawned items.
type RewardKind string

const (
	RewardCurrency RewardKind = "currency"
	RewardItem     RewardKind = "item"
)

// Reward is a baked payout with a fixed amount.
type Reward struct {
	Kind   RewardKind `json:"kind"`
	ID     string     `json:"id"`
	Amount int64      `json:"amount"`
}

// Contract is a generated fetch-and-reward instance. Only target progress changes after generation.
type Contract struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Difficulty  string   `json:"difficulty"`
	Repeatable  bool     `json:"repeatable"`
	Targets     []Target `json:"targets"`
	Rewards     []Reward `json:"rewards"`
}

// TotalRequired is the sum of all target requirements.
func (c *Contract) TotalRequired() int {
	total := 0
	for _, t := range c.Targets {
		total += t.Required
	}
	return total
}

// TotalProgress is the sum of all target progress.
func (c *Contract) TotalProgress() int {
	total := 0
	for _, t := range c.Targets {
		total += t.Progress
	}
	return total
}

// Store owns listings, a currency whitelist, active contracts and completed one-time contracts.
type Store struct {
	ID        string            `json:"id"`
	Preset    string            `json:"preset"`
	Coords    world.Coordinates `json:"coords"`
	Whitelist []string          `json:"whitelist"`
	Packs     []string          `json:"packs"`
	Contracts map[string]*Contract
	Completed map[string]struct{}

	listings []*Listing
	byID     map[string]*Listing
}

// NewStore creates an empty store.
func NewStore(id, preset string, coords world.Coordinates) *Store {
	return &Store{
		ID:        id,
		Preset:    preset,
		Coords:    coords,
		Contracts: make(map[string]*Contract),
		Completed: make(map[string]struct{}),
		byID:      make(map[string]*Listing),
	}
}

// AddListing registers a listing; duplicate ids are rejected.
func (s *Store) AddListing(l *Listing) bool {
	if _, dup := s.byID[l.ID]; dup {
		return false
	}
	s.byID[l.ID] = l
	s.listings = append(s.listings, l)
	sort.Slice(s.listings, func(i, j int) bool { return s.listings[i].ID < s.listings[j].ID })
	return true
}

// Listing looks up a listing by id.
func (s *Store) Listing(id string) (*Listing, bool) {
	l, ok := s.byID[id]
	return l, ok
}

// Listings returns listings ordered by id, optionally filtered by mode.
func (s *Store) Listings(mode ListingMode) []*Listing {
	out := make([]*Listing, 0, len(s.listings))
	for _, l := range s.listings {
		if mode != "" && l.Mode != mode {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Contract looks up an active contract.
func (s *Store) Contract(id string) (*Contract, bool) {
	c, ok := s.Contracts[id]
	return c, ok
}

// ActiveContractIDs returns active contract ids in sorted order.
func (s *Store) ActiveContractIDs() []string {
	ids := make([]string, 0, len(s.Contracts))
	for id := range s.Contracts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MarkCompleted records a one-time contract as claimed.
func (s *Store) MarkCompleted(id string) {
	s.Completed[id] = struct{}{}
}

// IsCompleted reports whether a contract id was claimed before.
func (s *Store) IsCompleted(id string) bool {
	_, ok := s.Completed[id]
	return ok
}
