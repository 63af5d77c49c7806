package allocator

import (
	"fmt"
	"sort"

	"github.com/arnavshah/role-allocator-go/pkg/models"
)

func emptyResult(roles []models.Role, totalSlots int, seed int64) *models.AllocationResult {
	unassigned := make([]string, 0, len(roles))
	for _, r := range roles {
		unassigned = append(unassigned, r.ID)
	}
	return &models.AllocationResult{
		Assignments:       []models.Assignment{},
		UnassignedRoleIDs: unassigned,
		PerParticipant:    []models.ParticipantSummary{},
		TotalSlots:        totalSlots,
		Seed:              seed,
	}
}

// assemble turns the winning trial into the public result. Assignments are
// grouped by participant in input order, then by the order they were made.
func (e *engine) assemble(best *trialOutcome, opts Options) *models.AllocationResult {
	now := opts.Now()
	min, max := LoadBounds(len(e.slots), len(e.prefs))

	titles := make(map[string]string, len(e.roles))
	for _, r := range e.roles {
		titles[r.ID] = r.Title
	}

	picks := make([]pick, len(best.picks))
	copy(picks, best.picks)
	sort.SliceStable(picks, func(i, j int) bool {
		return picks[i].participant < picks[j].participant
	})

	summaries := make([]models.ParticipantSummary, len(e.prefs))
	for p, pref := range e.prefs {
		summaries[p] = models.ParticipantSummary{
			UserID:        pref.UserID,
			UserName:      pref.UserName,
			AssignedCount: best.count[p],
			TotalCost:     best.total[p],
			RoleIDs:       []string{},
			Ranks:         []int{},
		}
		if best.count[p] > 0 {
			summaries[p].Dissatisfaction = best.total[p] / float64(best.count[p])
		}
	}

	filled := make(map[string]int, len(e.roles))
	assignments := make([]models.Assignment, 0, len(picks))
	for _, pk := range picks {
		pref := e.prefs[pk.participant]
		slot := e.slots[pk.slot]
		sum := &summaries[pk.participant]

		sum.RoleIDs = append(sum.RoleIDs, slot.RoleID)
		sum.Ranks = append(sum.Ranks, e.rank[pk.participant][pk.slot])
		if pk.relaxed {
			sum.RelaxedCount++
		}
		filled[slot.RoleID]++

		assignments = append(assignments, models.Assignment{
			Key:            fmt.Sprintf("%s#%d", pref.UserID, len(sum.RoleIDs)),
			UserID:         pref.UserID,
			UserName:       pref.UserName,
			RoleID:         slot.RoleID,
			RoleName:       titles[slot.RoleID],
			PreferenceRank: e.rank[pk.participant][pk.slot],
			Cost:           e.costs[pk.participant][pk.slot],
			Relaxed:        pk.relaxed,
			Timestamp:      now,
		})
	}

	unassigned := []string{}
	for _, r := range e.roles {
		if filled[r.ID] < r.Capacity {
			unassigned = append(unassigned, r.ID)
		}
	}

	return &models.AllocationResult{
		Assignments:                   assignments,
		UnassignedRoleIDs:             unassigned,
		SatisfactionScore:             best.satisfaction,
		MaxParticipantDissatisfaction: best.maxDissatisfaction,
		PerParticipant:                summaries,
		TotalSlots:                    len(e.slots),
		MinPerParticipant:             min,
		MaxPerParticipant:             max,
		RelaxedCount:                  best.relaxed,
		Shortfall:                     best.shortfall,
		BestTrial:                     best.index,
		Seed:                          opts.Seed,
	}
}
