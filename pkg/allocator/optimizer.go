// Package allocator assigns capacity-limited role slots to participants
// from their ranked preferences, keeping the fairest of many shuffled trials.
package allocator

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arnavshah/role-allocator-go/pkg/models"
)

// DefaultTrials is the number of randomized orderings tried per run
const DefaultTrials = 100

// Options tunes one call to Allocate
type Options struct {
	// Trials is the number of shuffled orderings to try. Defaults to DefaultTrials.
	Trials int

	// Rand supplies the shuffles. When nil a generator seeded with Seed is used.
	// It is only ever used from the calling goroutine.
	Rand *rand.Rand
	Seed int64

	// Workers > 1 runs trials concurrently. Results are still reduced one at
	// a time in trial order, so the outcome does not depend on Workers.
	Workers int

	Logger *zap.Logger

	// Now stamps the returned assignments. Defaults to time.Now.
	Now func() time.Time

	// OnTrial is called once per finished trial, in trial order.
	OnTrial func(TrialStats)
}

// TrialStats summarizes one trial for observers
type TrialStats struct {
	Index              int
	MaxDissatisfaction float64
	SatisfactionScore  float64
	RelaxedCount       int
	Kept               bool
	Duration           time.Duration
}

func (o Options) withDefaults() Options {
	if o.Trials <= 0 {
		o.Trials = DefaultTrials
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(o.Seed))
	}
	return o
}

// engine holds the read-only inputs shared by every trial of one run
type engine struct {
	prefs []models.Preference
	roles []models.Role
	slots []Slot
	costs CostMatrix
	rank  [][]int
	base  float64
	log   *zap.Logger
}

func newEngine(prefs []models.Preference, roles []models.Role, slots []Slot, log *zap.Logger) *engine {
	e := &engine{
		prefs: prefs,
		roles: roles,
		slots: slots,
		costs: NewCostMatrix(prefs, slots, len(roles)),
		rank:  make([][]int, len(prefs)),
		base:  BaseCost(len(roles)),
		log:   log,
	}
	for p, pref := range prefs {
		row := make([]int, len(slots))
		for s, slot := range slots {
			row[s] = PreferenceRank(pref, slot.RoleID)
		}
		e.rank[p] = row
	}
	return e
}

// shuffle returns a uniformly random processing order (Fisher-Yates)
func (e *engine) shuffle(r *rand.Rand) []int {
	order := make([]int, len(e.prefs))
	for i := range order {
		order[i] = i
	}
	r.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	return order
}

func (e *engine) runTrial(index int, order []int) (*trialOutcome, time.Duration) {
	start := time.Now()
	t := newTrial(index, order, e.costs, e.slots, e.log)
	t.run()
	return t.outcome(e.rank, e.base), time.Since(start)
}

// reducer keeps the best trial seen so far. Lower worst-case
// dissatisfaction wins; on an exact tie the lower satisfaction score wins;
// otherwise the earlier trial stays.
type reducer struct {
	best    *trialOutcome
	onTrial func(TrialStats)
	seen    int
}

func (r *reducer) offer(o *trialOutcome, took time.Duration) {
	r.seen++
	kept := r.best == nil ||
		o.maxDissatisfaction < r.best.maxDissatisfaction ||
		(o.maxDissatisfaction == r.best.maxDissatisfaction && o.satisfaction < r.best.satisfaction)
	if kept {
		r.best = o
	}
	if r.onTrial != nil {
		r.onTrial(TrialStats{
			Index:              o.index,
			MaxDissatisfaction: o.maxDissatisfaction,
			SatisfactionScore:  o.satisfaction,
			RelaxedCount:       o.relaxed,
			Kept:               kept,
			Duration:           took,
		})
	}
}

// Allocate assigns every role slot to the participants in prefs. Preferences
// are deduplicated by user id first. The call is pure apart from opts.Rand.
//
// If ctx is cancelled between trials, the best result found so far is
// returned together with ctx.Err(); the result is nil when no trial finished.
func Allocate(ctx context.Context, prefs []models.Preference, roles []models.Role, opts Options) (*models.AllocationResult, error) {
	slots, err := ExpandSlots(roles)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	prefs = Dedupe(prefs)
	if len(prefs) == 0 {
		return emptyResult(roles, len(slots), opts.Seed), nil
	}

	e := newEngine(prefs, roles, slots, opts.Logger)
	red := &reducer{onTrial: opts.OnTrial}

	if opts.Workers == 1 {
		err = e.runSequential(ctx, opts, red)
	} else {
		err = e.runParallel(ctx, opts, red)
	}
	if red.best == nil {
		return nil, err
	}

	res := e.assemble(red.best, opts)
	res.Trials = red.seen
	if res.Shortfall {
		opts.Logger.Warn("load bounds could not be met without duplicate roles",
			zap.Int("participants", len(prefs)),
			zap.Int("total_slots", len(slots)),
			zap.Int("min_per_participant", res.MinPerParticipant),
		)
	}
	if res.RelaxedCount > 0 {
		opts.Logger.Warn("duplicate role constraint relaxed",
			zap.Int("relaxed_assignments", res.RelaxedCount),
			zap.Int("best_trial", res.BestTrial),
		)
	}
	opts.Logger.Info("allocation finished",
		zap.Int("participants", len(prefs)),
		zap.Int("total_slots", len(slots)),
		zap.Int("trials", res.Trials),
		zap.Int("best_trial", res.BestTrial),
		zap.Float64("max_participant_dissatisfaction", res.MaxParticipantDissatisfaction),
		zap.Float64("satisfaction_score", res.SatisfactionScore),
	)
	return res, err
}

func (e *engine) runSequential(ctx context.Context, opts Options, red *reducer) error {
	for i := 0; i < opts.Trials; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		order := e.shuffle(opts.Rand)
		red.offer(e.runTrial(i, order))
	}
	return nil
}

type trialJob struct {
	index int
	order []int
}

type trialDone struct {
	outcome *trialOutcome
	took    time.Duration
}

// runParallel shuffles on the calling goroutine, fans trials out to
// opts.Workers goroutines and feeds finished trials to the reducer strictly
// in index order.
func (e *engine) runParallel(ctx context.Context, opts Options, red *reducer) error {
	jobs := make(chan trialJob)
	done := make(chan trialDone, opts.Workers)

	var wg sync.WaitGroup
	for w := 0; w < opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				o, took := e.runTrial(j.index, j.order)
				done <- trialDone{outcome: o, took: took}
			}
		}()
	}

	pending := make(map[int]trialDone)
	next := 0
	drain := func(d trialDone) {
		pending[d.outcome.index] = d
		for {
			d, ok := pending[next]
			if !ok {
				return
			}
			delete(pending, next)
			red.offer(d.outcome, d.took)
			next++
		}
	}

	var err error
	sent := 0
	for sent < opts.Trials {
		if err = ctx.Err(); err != nil {
			break
		}
		job := trialJob{index: sent, order: e.shuffle(opts.Rand)}
		for queued := false; !queued; {
			select {
			case jobs <- job:
				queued = true
			case d := <-done:
				drain(d)
			}
		}
		sent++
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(done)
	}()
	for d := range done {
		drain(d)
	}
	return err
}
