package models

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

const (
	// MaxPreferences is the longest preference list a participant may submit
	MaxPreferences = 10
	// MaxTrials caps the trial count a caller may request for one run
	MaxTrials = 10000
)

// Role is one kind of duty with a number of interchangeable slots
type Role struct {
	ID          string `json:"id" yaml:"id" binding:"required"`
	Title       string `json:"title" yaml:"title" binding:"required"`
	Description string `json:"description" yaml:"description"`
	Capacity    int    `json:"capacity" yaml:"capacity" binding:"required,min=1"`
}

// Preference is a participant's ranked list of role ids, most preferred first
type Preference struct {
	UserID      string    `json:"user_id" binding:"required"`
	UserName    string    `json:"user_name"`
	Preferences []string  `json:"preferences" binding:"required,min=1,max=10,dive,required"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
}

// Assignment pairs a participant with one role slot
type Assignment struct {
	// Key is the user id decorated with a per-run sequence number so that a
	// participant holding several slots yields distinct records.
	Key            string    `json:"key"`
	UserID         string    `json:"user_id"`
	UserName       string    `json:"user_name"`
	RoleID         string    `json:"role_id"`
	RoleName       string    `json:"role_name"`
	PreferenceRank int       `json:"preference_rank"`
	Cost           float64   `json:"cost"`
	Relaxed        bool      `json:"relaxed"`
	Timestamp      time.Time `json:"timestamp"`
}

// ParticipantSummary describes how well one participant was served
type ParticipantSummary struct {
	UserID          string   `json:"user_id"`
	UserName        string   `json:"user_name"`
	AssignedCount   int      `json:"assigned_count"`
	TotalCost       float64  `json:"total_cost"`
	Dissatisfaction float64  `json:"dissatisfaction"`
	RoleIDs         []string `json:"role_ids"`
	Ranks           []int    `json:"ranks"`
	RelaxedCount    int      `json:"relaxed_count,omitempty"`
}

// AllocationResult is the outcome of one allocation run
type AllocationResult struct {
	Assignments                   []Assignment         `json:"assignments"`
	UnassignedRoleIDs             []string             `json:"unassigned_role_ids"`
	SatisfactionScore             float64              `json:"satisfaction_score"`
	MaxParticipantDissatisfaction float64              `json:"max_participant_dissatisfaction"`
	PerParticipant                []ParticipantSummary `json:"per_participant"`

	TotalSlots        int   `json:"total_slots"`
	MinPerParticipant int   `json:"min_per_participant"`
	MaxPerParticipant int   `json:"max_per_participant"`
	RelaxedCount      int   `json:"relaxed_count"`
	Trials            int   `json:"trials"`
	BestTrial         int   `json:"best_trial"`
	Seed              int64 `json:"seed"`

	// Shortfall is set when some participant ended outside
	// [MinPerParticipant, MaxPerParticipant].
	Shortfall bool `json:"shortfall"`
}

// AllocateInput is the payload of the stateless allocation endpoint
type AllocateInput struct {
	Roles       []Role       `json:"roles" binding:"required,min=1,dive"`
	Preferences []Preference `json:"preferences" binding:"dive"`
	Trials      int          `json:"trials,omitempty" binding:"omitempty,min=1,max=10000"`
	Seed        *int64       `json:"seed,omitempty"`
}

// PreferenceInput is what a participant submits for themselves
type PreferenceInput struct {
	UserName    string   `json:"user_name" binding:"required"`
	Preferences []string `json:"preferences" binding:"required,min=1,max=10,dive,required"`
}

// RoleConflict reports a role holding more assignments than its capacity
type RoleConflict struct {
	RoleID   string `json:"role_id"`
	Assigned int    `json:"assigned"`
	Capacity int    `json:"capacity"`
}

// CleanText trims surrounding whitespace and applies NFC normalization so
// that visually identical names compare equal.
func CleanText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// Normalize cleans the user-facing fields of a role in place
func (r *Role) Normalize() {
	r.ID = CleanText(r.ID)
	r.Title = CleanText(r.Title)
	r.Description = CleanText(r.Description)
}

// Normalize cleans the identifiers of a preference in place
func (p *Preference) Normalize() {
	p.UserID = CleanText(p.UserID)
	p.UserName = CleanText(p.UserName)
	for i := range p.Preferences {
		p.Preferences[i] = CleanText(p.Preferences[i])
	}
}
