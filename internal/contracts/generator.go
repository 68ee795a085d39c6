package contracts

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"tradepost/internal/models"
	"tradepost/internal/prototype"
	"tradepost/internal/sampling"
	"tradepost/internal/world"
)

const maxIncludeDepth = 8

type candidate struct {
	proto  *prototype.ContractPrototype
	weight float64
}

// Generator fills store contract slots from weighted packs.
type Generator struct {
	protos      *prototype.Registry
	rng         world.Random
	sampler     *sampling.Sampler
	windows     map[string]*Window
	cooldownCap int
	logger      *zap.Logger
}

// NewGenerator creates a generator. cooldownCap bounds the effective cooldown and the window size.
func NewGenerator(protos *prototype.Registry, rng world.Random, cooldownCap int, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cooldownCap < 1 {
		cooldownCap = 1
	}
	return &Generator{
		protos:      protos,
		rng:         rng,
		sampler:     sampling.NewSampler(rng),
		windows:     make(map[string]*Window),
		cooldownCap: cooldownCap,
		logger:      logger,
	}
}

// Window returns the cooldown window of a store difficulty bucket.
func (g *Generator) Window(storeID, difficulty string) *Window {
	key := storeID + "|" + difficulty
	w, ok := g.windows[key]
	if !ok {
		w = NewWindow(g.cooldownCap)
		g.windows[key] = w
	}
	return w
}

// Refill tops up every difficulty quota of the store's packs and returns the ids it added.
// Ids in exclude are not offered in this pass.
func (g *Generator) Refill(s *models.Store, exclude ...string) []string {
	quotas := g.quotas(s)
	if len(quotas) == 0 {
		return nil
	}
	candidates := g.candidates(s)

	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	active := make(map[string]int)
	for _, c := range s.Contracts {
		active[c.Difficulty]++
	}

	difficulties := make([]string, 0, len(quotas))
	for d := range quotas {
		difficulties = append(difficulties, d)
	}
	sort.Strings(difficulties)

	var added []string
	for _, d := range difficulties {
		needed := quotas[d] - active[d]
		if needed <= 0 {
			continue
		}
		var pool []candidate
		for _, c := range candidates {
			if c.proto.Difficulty != d {
				continue
			}
			if _, ok := s.Contracts[c.proto.ID]; ok {
				continue
			}
			if _, ok := skip[c.proto.ID]; ok {
				continue
			}
			if !c.proto.Repeatable && s.IsCompleted(c.proto.ID) {
				continue
			}
			pool = append(pool, c)
		}
		added = append(added, g.fill(s, d, pool, needed)...)
	}
	return added
}

func (g *Generator) fill(s *models.Store, difficulty string, pool []candidate, needed int) []string {
	window := g.Window(s.ID, difficulty)
	cooldown := EffectiveCooldown(len(pool), needed, g.cooldownCap)

	var added []string
	for needed > 0 && len(pool) > 0 {
		var fresh, stale []int
		for i, c := range pool {
			if window.Recent(c.proto.ID, cooldown) {
				stale = append(stale, i)
			} else {
				fresh = append(fresh, i)
			}
		}
		choices := fresh
		if len(choices) == 0 {
			choices = leastIssued(window, pool, stale)
		}
		weights := make([]float64, len(choices))
		for i, idx := range choices {
			weights[i] = pool[idx].weight
		}
		picked := choices[sampling.WeightedIndex(g.rng, weights)]
		proto := pool[picked].proto
		pool = append(pool[:picked], pool[picked+1:]...)

		contract, ok := g.Generate(s.ID, proto)
		if !ok {
			continue
		}
		s.Contracts[contract.ID] = contract
		window.Push(contract.ID)
		added = append(added, contract.ID)
		needed--
	}
	if needed > 0 {
		g.logger.Warn("Contract pool exhausted",
			zap.String("store", s.ID), zap.String("difficulty", difficulty), zap.Int("unfilled", needed))
	}
	return added
}

func leastIssued(window *Window, pool []candidate, indices []int) []int {
	best := -1
	var out []int
	for _, idx := range indices {
		n := window.Count(pool[idx].proto.ID)
		switch {
		case best < 0 || n < best:
			best = n
			out = []int{idx}
		case n == best:
			out = append(out, idx)
		}
	}
	return out
}

func (g *Generator) quotas(s *models.Store) map[string]int {
	quotas := make(map[string]int)
	for _, id := range s.Packs {
		pack, ok := g.protos.Pack(id)
		if !ok {
			g.logger.Warn("Unknown contract pack", zap.String("store", s.ID), zap.String("pack", id))
			continue
		}
		for d, n := range pack.Slots {
			if n > 0 {
				quotas[d] += n
			}
		}
	}
	return quotas
}

// candidates expands the store's packs and their includes, first weight wins per contract id.
func (g *Generator) candidates(s *models.Store) []candidate {
	var out []candidate
	seen := make(map[string]struct{})
	visited := make(map[string]struct{})

	var expand func(packID string, depth int)
	expand = func(packID string, depth int) {
		if depth > maxIncludeDepth {
			g.logger.Warn("Pack include depth exceeded", zap.String("pack", packID))
			return
		}
		if _, done := visited[packID]; done {
			return
		}
		visited[packID] = struct{}{}
		pack, ok := g.protos.Pack(packID)
		if !ok {
			g.logger.Warn("Unknown contract pack", zap.String("store", s.ID), zap.String("pack", packID))
			return
		}
		for _, e := range pack.Contracts {
			if _, dup := seen[e.Contract]; dup {
				continue
			}
			proto, ok := g.protos.Contract(e.Contract)
			if !ok {
				g.logger.Warn("Unknown contract in pack", zap.String("pack", packID), zap.String("contract", e.Contract))
				continue
			}
			seen[e.Contract] = struct{}{}
			w := e.EffectiveWeight()
			if w <= 0 {
				g.logger.Debug("Contract excluded by pack weight", zap.String("pack", packID), zap.String("contract", e.Contract))
				continue
			}
			out = append(out, candidate{proto: proto, weight: w})
		}
		for _, inc := range pack.Include {
			expand(inc, depth+1)
		}
	}
	for _, id := range s.Packs {
		expand(id, 0)
	}
	return out
}

// Generate rolls a contract instance from its prototype. Targets with unknown prototypes
// are dropped; a contract left without targets is not generated.
func (g *Generator) Generate(storeID string, proto *prototype.ContractPrototype) (*models.Contract, bool) {
	c := &models.Contract{
		ID:          proto.ID,
		Name:        proto.Name,
		Description: proto.Description,
		Difficulty:  proto.Difficulty,
		Repeatable:  proto.Repeatable,
	}
	for i, td := range proto.Targets {
		if _, ok := g.protos.Entity(td.Proto); !ok {
			g.logger.Warn("Contract target has unknown prototype",
				zap.String("contract", proto.ID), zap.String("proto", td.Proto))
			continue
		}
		match := models.MatchMode(td.Match)
		if match != models.MatchDescendant {
			match = models.MatchExact
		}
		amount := g.sampler.Range(fmt.Sprintf("%s/%s/target-%d", storeID, proto.ID, i), td.Amount)
		if amount < 1 {
			amount = 1
		}
		c.Targets = append(c.Targets, models.Target{Proto: td.Proto, Match: match, Required: int(amount)})
	}
	if len(c.Targets) == 0 {
		g.logger.Warn("Contract has no valid targets", zap.String("contract", proto.ID))
		return nil, false
	}
	c.Rewards = g.bakeRewards(storeID+"/"+proto.ID, proto.Rewards)
	return c, true
}
