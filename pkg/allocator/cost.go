package allocator

import (
	"math"

	"github.com/arnavshah/role-allocator-go/pkg/models"
)

// BaseCost is the cost of a slot whose role the participant did not rank
func BaseCost(numRoleTypes int) float64 {
	return float64(2 * numRoleTypes)
}

// PreferenceRank is the 1-based position of roleID in the participant's
// list, or 0 when the role is not listed.
func PreferenceRank(pref models.Preference, roleID string) int {
	for i, id := range pref.Preferences {
		if id == roleID {
			return i + 1
		}
	}
	return 0
}

// Cost grows as 3^k with the 0-based rank k; unranked roles cost base
func Cost(pref models.Preference, roleID string, base float64) float64 {
	rank := PreferenceRank(pref, roleID)
	if rank == 0 {
		return base
	}
	return math.Pow(3, float64(rank-1))
}

// CostMatrix holds cost[participant][slot] for one set of inputs
type CostMatrix [][]float64

// NewCostMatrix evaluates Cost for every participant and slot. Rows follow
// the order of prefs, columns the order of slots.
func NewCostMatrix(prefs []models.Preference, slots []Slot, numRoleTypes int) CostMatrix {
	base := BaseCost(numRoleTypes)
	m := make(CostMatrix, len(prefs))
	for p, pref := range prefs {
		byRole := make(map[string]float64)
		row := make([]float64, len(slots))
		for s, slot := range slots {
			c, ok := byRole[slot.RoleID]
			if !ok {
				c = Cost(pref, slot.RoleID, base)
				byRole[slot.RoleID] = c
			}
			row[s] = c
		}
		m[p] = row
	}
	return m
}
