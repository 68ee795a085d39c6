package contracts

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"tradepost/internal/models"
	"tradepost/internal/prototype"
	"tradepost/internal/sampling"
)

const maxPoolDepth = 4

type rewardKey struct {
	kind models.RewardKind
	id   string
}

// bakeRewards resolves chances, amounts and pools into a flat merged reward list.
func (g *Generator) bakeRewards(key string, defs []prototype.RewardDef) []models.Reward {
	acc := make(map[rewardKey]int64)
	for i, def := range defs {
		g.bake(acc, fmt.Sprintf("%s/reward-%d", key, i), def, 0)
	}
	out := make([]models.Reward, 0, len(acc))
	for k, amount := range acc {
		out = append(out, models.Reward{Kind: k.kind, ID: k.id, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (g *Generator) bake(acc map[rewardKey]int64, key string, def prototype.RewardDef, depth int) {
	if def.Chance > 0 && !g.rng.Prob(def.Chance) {
		return
	}
	switch def.Kind {
	case prototype.RewardKindCurrency, prototype.RewardKindItem:
		kind := models.RewardKind(def.Kind)
		if kind == models.RewardItem {
			if _, ok := g.protos.Entity(def.ID); !ok {
				g.logger.Warn("Item reward has unknown prototype", zap.String("proto", def.ID))
				return
			}
		}
		amount := g.sampler.Range(key, def.Amount)
		if amount <= 0 {
			return
		}
		acc[rewardKey{kind: kind, id: def.ID}] += amount
	case prototype.RewardKindPool:
		g.rollPool(acc, key, def.ID, depth)
	default:
		g.logger.Warn("Unknown reward kind", zap.String("kind", def.Kind), zap.String("id", def.ID))
	}
}

func (g *Generator) rollPool(acc map[rewardKey]int64, key, poolID string, depth int) {
	if depth >= maxPoolDepth {
		g.logger.Warn("Reward pool nesting too deep", zap.String("pool", poolID))
		return
	}
	pool, ok := g.protos.Pool(poolID)
	if !ok {
		g.logger.Warn("Unknown reward pool", zap.String("pool", poolID))
		return
	}
	if len(pool.Entries) == 0 {
		return
	}
	rolls := int64(1)
	if pool.Rolls.Min != 0 || pool.Rolls.Max != 0 {
		rolls = g.sampler.Range(key+"/rolls", pool.Rolls)
	}

	weights := make([]float64, len(pool.Entries))
	for i, e := range pool.Entries {
		weights[i] = e.Weight
	}
	picks := make([]int, len(pool.Entries))
	for r := int64(0); r < rolls; r++ {
		if pool.MaxRepeats > 0 && allCapped(picks, pool.MaxRepeats) {
			break
		}
		idx := sampling.WeightedIndex(g.rng, weights)
		if pool.MaxRepeats > 0 {
			for picks[idx] >= pool.MaxRepeats {
				idx = (idx + 1) % len(picks)
			}
		}
		picks[idx]++
		if pool.MaxRepeats > 0 && picks[idx] >= pool.MaxRepeats {
			weights[idx] = 0
		}
		g.bake(acc, fmt.Sprintf("%s/%s-%d", key, pool.ID, idx), pool.Entries[idx].Reward, depth+1)
	}
}

func allCapped(picks []int, limit int) bool {
	for _, n := range picks {
		if n < limit {
			return false
		}
	}
	return true
}
