package allocator

import (
	"fmt"

	"github.com/arnavshah/role-allocator-go/pkg/models"
)

// Slot is one unit of a role's capacity
type Slot struct {
	RoleID   string
	Instance int
}

// String renders the slot the same way it is reported in logs
func (s Slot) String() string {
	return fmt.Sprintf("%s-%d", s.RoleID, s.Instance)
}

// ValidateRoles rejects role sets the allocator cannot work with
func ValidateRoles(roles []models.Role) error {
	if len(roles) == 0 {
		return ErrNoRoles
	}
	seen := make(map[string]bool, len(roles))
	for i, r := range roles {
		if r.ID == "" {
			return fmt.Errorf("role at position %d: %w", i, ErrEmptyRoleID)
		}
		if seen[r.ID] {
			return fmt.Errorf("role %q: %w", r.ID, ErrDuplicateRole)
		}
		seen[r.ID] = true
		if r.Capacity < 1 {
			return fmt.Errorf("role %q has capacity %d: %w", r.ID, r.Capacity, ErrInvalidCapacity)
		}
	}
	return nil
}

// ExpandSlots turns every role into Capacity slots, keeping role order and
// then instance order.
func ExpandSlots(roles []models.Role) ([]Slot, error) {
	if err := ValidateRoles(roles); err != nil {
		return nil, err
	}

	total := 0
	for _, r := range roles {
		total += r.Capacity
	}

	slots := make([]Slot, 0, total)
	for _, r := range roles {
		for i := 0; i < r.Capacity; i++ {
			slots = append(slots, Slot{RoleID: r.ID, Instance: i})
		}
	}
	return slots, nil
}

// Dedupe keeps one preference per user id. The last record for a user wins,
// but the user keeps the position of their first record.
func Dedupe(prefs []models.Preference) []models.Preference {
	index := make(map[string]int, len(prefs))
	out := make([]models.Preference, 0, len(prefs))
	for _, p := range prefs {
		if i, ok := index[p.UserID]; ok {
			out[i] = p
			continue
		}
		index[p.UserID] = len(out)
		out = append(out, p)
	}
	return out
}

// LoadBounds returns how many slots each participant must and may receive
func LoadBounds(totalSlots, participants int) (min, max int) {
	if participants <= 0 {
		return 0, 0
	}
	min = totalSlots / participants
	max = (totalSlots + participants - 1) / participants
	return min, max
}
