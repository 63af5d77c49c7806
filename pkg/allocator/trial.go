package allocator

import (
	"go.uber.org/zap"
)

// pick records one slot handed to one participant during a trial
type pick struct {
	participant int
	slot        int
	relaxed     bool
}

// trial builds one assignment for a fixed processing order. Participants
// are referred to by their index in the deduplicated preference list; the
// order slice only decides who is served first and who wins ties.
type trial struct {
	index int
	order []int
	costs CostMatrix
	slots []Slot

	min, max int

	used  []bool
	count []int
	held  []map[string]bool
	total []float64
	picks []pick

	log *zap.Logger
}

// trialOutcome is what the optimizer keeps from a finished trial
type trialOutcome struct {
	index              int
	picks              []pick
	count              []int
	total              []float64
	maxDissatisfaction float64
	satisfaction       float64
	relaxed            int
	shortfall          bool
}

func newTrial(index int, order []int, costs CostMatrix, slots []Slot, log *zap.Logger) *trial {
	n := len(costs)
	t := &trial{
		index: index,
		order: order,
		costs: costs,
		slots: slots,
		used:  make([]bool, len(slots)),
		count: make([]int, n),
		held:  make([]map[string]bool, n),
		total: make([]float64, n),
		picks: make([]pick, 0, len(slots)),
		log:   log,
	}
	for i := range t.held {
		t.held[i] = make(map[string]bool)
	}
	t.min, t.max = LoadBounds(len(slots), n)
	return t
}

// run executes the four phases in order
func (t *trial) run() {
	t.bootstrap()
	t.topUp()
	t.distributeExtra()
	t.mopUp()
}

func (t *trial) assign(p, s int, relaxed bool) {
	t.used[s] = true
	t.count[p]++
	if !relaxed {
		t.held[p][t.slots[s].RoleID] = true
	}
	t.total[p] += t.costs[p][s]
	t.picks = append(t.picks, pick{participant: p, slot: s, relaxed: relaxed})
}

// cheapestSlot returns the lowest-cost unused slot whose role p does not
// already hold, or -1. Ties go to the lower slot index.
func (t *trial) cheapestSlot(p int) int {
	best := -1
	for s, slot := range t.slots {
		if t.used[s] || t.held[p][slot.RoleID] {
			continue
		}
		if best < 0 || t.costs[p][s] < t.costs[p][best] {
			best = s
		}
	}
	return best
}

func (t *trial) average(p int) float64 {
	if t.count[p] == 0 {
		return 0
	}
	return t.total[p] / float64(t.count[p])
}

// bootstrap gives every participant one slot before anyone gets a second
func (t *trial) bootstrap() {
	for _, p := range t.order {
		s := t.cheapestSlot(p)
		if s < 0 {
			return
		}
		t.assign(p, s, false)
	}
}

// topUp raises everyone to the minimum load, always taking the globally
// cheapest (participant, slot) pair first.
func (t *trial) topUp() {
	for {
		bestP, bestS := -1, -1
		deficient := false
		for _, p := range t.order {
			if t.count[p] >= t.min {
				continue
			}
			deficient = true
			s := t.cheapestSlot(p)
			if s < 0 {
				continue
			}
			if bestS < 0 || t.costs[p][s] < t.costs[bestP][bestS] {
				bestP, bestS = p, s
			}
		}
		if !deficient {
			return
		}
		if bestS < 0 {
			t.log.Debug("minimum load unreachable without duplicate roles",
				zap.Int("trial", t.index),
				zap.Int("min_per_participant", t.min),
			)
			return
		}
		t.assign(bestP, bestS, false)
	}
}

// distributeExtra hands the remaining slots to participants below the
// maximum load, least dissatisfied first.
func (t *trial) distributeExtra() {
	extra := len(t.slots) - len(t.costs)*t.min
	for extra > 0 {
		bestP, bestS := -1, -1
		bestAvg := 0.0
		for _, p := range t.order {
			if t.count[p] >= t.max {
				continue
			}
			s := t.cheapestSlot(p)
			if s < 0 {
				continue
			}
			avg := t.average(p)
			if bestP < 0 || avg < bestAvg {
				bestP, bestS, bestAvg = p, s, avg
			}
		}
		if bestP < 0 {
			return
		}
		t.assign(bestP, bestS, false)
		extra--
	}
}

// mopUp places every slot still unused. When all participants already hold
// the slot's role it is given to the least loaded one anyway and flagged.
func (t *trial) mopUp() {
	for s, slot := range t.slots {
		if t.used[s] {
			continue
		}
		p := t.leastLoaded(slot.RoleID, true)
		relaxed := false
		if p < 0 {
			p = t.leastLoaded(slot.RoleID, false)
			relaxed = true
			t.log.Debug("relaxing duplicate role constraint",
				zap.Int("trial", t.index),
				zap.String("slot", slot.String()),
				zap.Int("participant", p),
			)
		}
		if p < 0 {
			return
		}
		t.assign(p, s, relaxed)
	}
}

// leastLoaded returns the participant with the fewest slots, optionally
// skipping those who already hold roleID. Ties follow processing order.
func (t *trial) leastLoaded(roleID string, skipHolders bool) int {
	best := -1
	for _, p := range t.order {
		if skipHolders && t.held[p][roleID] {
			continue
		}
		if best < 0 || t.count[p] < t.count[best] {
			best = p
		}
	}
	return best
}

// outcome scores the finished trial. rank holds the 1-based preference rank
// of every (participant, slot) pair and base is the unranked penalty.
func (t *trial) outcome(rank [][]int, base float64) *trialOutcome {
	o := &trialOutcome{
		index: t.index,
		picks: t.picks,
		count: t.count,
		total: t.total,
	}
	for p, c := range t.count {
		if avg := t.average(p); avg > o.maxDissatisfaction {
			o.maxDissatisfaction = avg
		}
		if c < t.min || c > t.max {
			o.shortfall = true
		}
	}
	if len(t.picks) > 0 {
		sum := 0.0
		for _, pk := range t.picks {
			if r := rank[pk.participant][pk.slot]; r > 0 {
				sum += float64(r)
			} else {
				sum += base
			}
			if pk.relaxed {
				o.relaxed++
			}
		}
		o.satisfaction = sum / float64(len(t.picks))
	}
	return o
}
