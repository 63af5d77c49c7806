package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arnavshah/role-allocator-go/pkg/allocator"
	"github.com/arnavshah/role-allocator-go/pkg/archive"
	"github.com/arnavshah/role-allocator-go/pkg/database"
	"github.com/arnavshah/role-allocator-go/pkg/events"
	"github.com/arnavshah/role-allocator-go/pkg/models"
)

// RunOutcome is what RunAllocation reports back to the operator
type RunOutcome struct {
	Run        database.AllocationRun   `json:"run"`
	Result     *models.AllocationResult `json:"result"`
	ArchiveKey string                   `json:"archive_key,omitempty"`
}

func (s *Service) options(seed int64) allocator.Options {
	return allocator.Options{
		Trials:  s.trials,
		Workers: s.workers,
		Seed:    seed,
		Logger:  s.log,
		Now:     s.now,
		OnTrial: s.metrics.ObserveTrial,
	}
}

func (s *Service) allocate(ctx context.Context, prefs []models.Preference, roles []models.Role, opts allocator.Options) (*models.AllocationResult, error) {
	start := time.Now()
	res, err := allocator.Allocate(ctx, prefs, roles, opts)
	s.metrics.ObserveRun(res, time.Since(start), err)
	return res, err
}

// RunAllocation allocates every stored role among the stored preferences,
// replaces the current assignments and leaves them unpublished.
func (s *Service) RunAllocation(ctx context.Context, actor string) (*RunOutcome, error) {
	prefs, err := s.store.ListPreferences(ctx)
	if err != nil {
		return nil, err
	}
	if len(prefs) == 0 {
		return nil, ErrNoPreferences
	}
	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return nil, err
	}

	runID := s.newID()
	seed := allocator.SeedFromString(runID)
	log := s.log.With(zap.String("run_id", runID))

	opts := s.options(seed)
	opts.Logger = log
	res, err := s.allocate(ctx, prefs, roles, opts)
	if err != nil {
		if isConfigError(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return nil, fmt.Errorf("allocate: %w", err)
	}

	if err := s.store.ReplaceAssignments(ctx, runID, res.Assignments); err != nil {
		return nil, err
	}
	run := database.AllocationRun{
		ID:                 runID,
		Seed:               seed,
		Trials:             res.Trials,
		BestTrial:          res.BestTrial,
		Participants:       len(res.PerParticipant),
		TotalSlots:         res.TotalSlots,
		Assigned:           len(res.Assignments),
		RelaxedCount:       res.RelaxedCount,
		Shortfall:          res.Shortfall,
		SatisfactionScore:  res.SatisfactionScore,
		MaxDissatisfaction: res.MaxParticipantDissatisfaction,
		UnassignedRoleIDs:  res.UnassignedRoleIDs,
		RequestedBy:        actor,
		CreatedAt:          s.now(),
	}
	if err := s.store.RecordRun(ctx, &run); err != nil {
		return nil, err
	}
	if _, err := s.store.SetStatus(ctx, false); err != nil {
		return nil, err
	}

	s.emit(ctx, events.TypeAllocationCompleted, runID, actor, events.CompletedPayload{
		Participants:       run.Participants,
		TotalSlots:         run.TotalSlots,
		Assigned:           run.Assigned,
		RelaxedCount:       run.RelaxedCount,
		Shortfall:          run.Shortfall,
		SatisfactionScore:  run.SatisfactionScore,
		MaxDissatisfaction: run.MaxDissatisfaction,
		UnassignedRoleIDs:  run.UnassignedRoleIDs,
	})

	out := &RunOutcome{Run: run, Result: res}
	key, err := s.archiver.Archive(ctx, &archive.Record{RunID: runID, CreatedAt: run.CreatedAt, Roles: roles, Result: res})
	if err != nil {
		log.Warn("archive allocation failed", zap.Error(err))
	} else {
		out.ArchiveKey = key
	}

	log.Info("allocation run stored",
		zap.String("actor", actor),
		zap.Int("assignments", run.Assigned),
		zap.Strings("unassigned_role_ids", run.UnassignedRoleIDs),
	)
	return out, nil
}

// Allocate runs the allocator on caller-supplied data without touching
// storage. A nil seed picks a fresh one.
func (s *Service) Allocate(ctx context.Context, in models.AllocateInput) (*models.AllocationResult, error) {
	if in.Trials < 0 || in.Trials > models.MaxTrials {
		return nil, invalid("trials must be between 1 and %d", models.MaxTrials)
	}
	for _, p := range in.Preferences {
		if len(p.Preferences) > models.MaxPreferences {
			return nil, invalid("user %q lists more than %d roles", p.UserID, models.MaxPreferences)
		}
	}

	roles := make([]models.Role, len(in.Roles))
	for i, r := range in.Roles {
		r.Normalize()
		roles[i] = r
	}
	prefs := make([]models.Preference, len(in.Preferences))
	for i, p := range in.Preferences {
		p.Preferences = append([]string(nil), p.Preferences...)
		p.Normalize()
		prefs[i] = p
	}

	var seed int64
	if in.Seed != nil {
		seed = *in.Seed
	} else {
		seed = allocator.SeedFromString(s.newID())
	}
	opts := s.options(seed)
	if in.Trials > 0 {
		opts.Trials = in.Trials
	}

	res, err := s.allocate(ctx, prefs, roles, opts)
	if err != nil {
		if isConfigError(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return nil, err
	}
	return res, nil
}

func isConfigError(err error) bool {
	return errors.Is(err, allocator.ErrNoRoles) ||
		errors.Is(err, allocator.ErrInvalidCapacity) ||
		errors.Is(err, allocator.ErrDuplicateRole) ||
		errors.Is(err, allocator.ErrEmptyRoleID)
}

// Validate checks an allocation payload without running it
func (s *Service) Validate(in models.AllocateInput) (totalSlots int, err error) {
	slots, err := allocator.ExpandSlots(in.Roles)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	seen := make(map[string]bool, len(in.Preferences))
	for _, p := range in.Preferences {
		if p.UserID == "" {
			return 0, invalid("preference without user_id")
		}
		if seen[p.UserID] {
			s.log.Debug("duplicate preference, last one wins", zap.String("user_id", p.UserID))
		}
		seen[p.UserID] = true
		if len(p.Preferences) > models.MaxPreferences {
			return 0, invalid("user %q lists more than %d roles", p.UserID, models.MaxPreferences)
		}
	}
	return len(slots), nil
}

// ---- publish lifecycle ----

func (s *Service) emit(ctx context.Context, eventType, runID, actor string, payload interface{}) {
	ev, err := events.New(eventType, runID, actor, payload)
	if err == nil {
		err = s.events.Publish(ctx, ev)
	}
	if err != nil {
		s.log.Warn("publish event failed", zap.String("type", eventType), zap.Error(err))
	}
}

// Status returns the publish flag
func (s *Service) Status(ctx context.Context) (database.AllocationStatus, error) {
	return s.store.GetStatus(ctx)
}

// Publish makes the current assignments visible to participants
func (s *Service) Publish(ctx context.Context, actor string) (database.AllocationStatus, error) {
	n, err := s.store.CountAssignments(ctx, "")
	if err != nil {
		return database.AllocationStatus{}, err
	}
	if n == 0 {
		return database.AllocationStatus{}, ErrNoAssignments
	}
	st, err := s.store.SetStatus(ctx, true)
	if err != nil {
		return database.AllocationStatus{}, err
	}
	s.emit(ctx, events.TypeAllocationPublished, "", actor, nil)
	return st, nil
}

// Unpublish hides the current assignments again
func (s *Service) Unpublish(ctx context.Context, actor string) (database.AllocationStatus, error) {
	st, err := s.store.SetStatus(ctx, false)
	if err != nil {
		return database.AllocationStatus{}, err
	}
	s.emit(ctx, events.TypeAllocationUnpublished, "", actor, nil)
	return st, nil
}

// DeleteResults clears every assignment and unpublishes
func (s *Service) DeleteResults(ctx context.Context, actor string) error {
	if err := s.store.ClearAssignments(ctx); err != nil {
		return err
	}
	if _, err := s.store.SetStatus(ctx, false); err != nil {
		return err
	}
	s.emit(ctx, events.TypeResultsDeleted, "", actor, nil)
	return nil
}

// Assignments returns the stored assignments regardless of the publish flag
func (s *Service) Assignments(ctx context.Context) ([]models.Assignment, error) {
	return s.store.ListAssignments(ctx)
}

// Results returns the stored assignments once they are published
func (s *Service) Results(ctx context.Context) ([]models.Assignment, error) {
	st, err := s.store.GetStatus(ctx)
	if err != nil {
		return nil, err
	}
	if !st.Completed {
		return nil, ErrNotPublished
	}
	return s.store.ListAssignments(ctx)
}

// MaxRunsLimit caps how many runs one Runs call returns
const MaxRunsLimit = 200

// Runs lists recent allocation runs, newest first
func (s *Service) Runs(ctx context.Context, limit int) ([]database.AllocationRun, error) {
	if limit > MaxRunsLimit {
		limit = MaxRunsLimit
	}
	return s.store.ListRuns(ctx, limit)
}

// ---- manual edits ----

// Reassign moves one assignment to another role. The preference rank and
// cost are recomputed from the participant's stored list. Conflicts lists
// every role now holding more assignments than its capacity.
func (s *Service) Reassign(ctx context.Context, key, roleID string) (models.Assignment, []models.RoleConflict, error) {
	a, err := s.store.GetAssignment(ctx, key)
	if err != nil {
		return models.Assignment{}, nil, err
	}
	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return models.Assignment{}, nil, err
	}
	var role *models.Role
	for i := range roles {
		if roles[i].ID == roleID {
			role = &roles[i]
			break
		}
	}
	if role == nil {
		return models.Assignment{}, nil, invalid("unknown role %q", roleID)
	}

	pref, err := s.store.GetPreference(ctx, a.UserID)
	if errors.Is(err, database.ErrNotFound) {
		pref = models.Preference{UserID: a.UserID}
	} else if err != nil {
		return models.Assignment{}, nil, err
	}

	all, err := s.store.ListAssignments(ctx)
	if err != nil {
		return models.Assignment{}, nil, err
	}
	duplicate := false
	for _, other := range all {
		if other.Key != a.Key && other.UserID == a.UserID && other.RoleID == role.ID {
			duplicate = true
			break
		}
	}

	a.RoleID = role.ID
	a.RoleName = role.Title
	a.PreferenceRank = allocator.PreferenceRank(pref, role.ID)
	a.Cost = allocator.Cost(pref, role.ID, allocator.BaseCost(len(roles)))
	a.Relaxed = duplicate
	a.Timestamp = s.now()
	if err := s.store.UpdateAssignment(ctx, a); err != nil {
		return models.Assignment{}, nil, err
	}

	conflicts, err := s.Conflicts(ctx)
	if err != nil {
		return models.Assignment{}, nil, err
	}
	if len(conflicts) > 0 {
		s.log.Warn("reassignment exceeds role capacity",
			zap.String("key", a.Key),
			zap.String("role_id", role.ID),
			zap.Int("conflicts", len(conflicts)),
		)
	}
	return a, conflicts, nil
}

// Conflicts reports roles whose assignment count exceeds their capacity, in
// role order.
func (s *Service) Conflicts(ctx context.Context) ([]models.RoleConflict, error) {
	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	assignments, err := s.store.ListAssignments(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(roles))
	for _, a := range assignments {
		counts[a.RoleID]++
	}
	conflicts := []models.RoleConflict{}
	for _, r := range roles {
		if counts[r.ID] > r.Capacity {
			conflicts = append(conflicts, models.RoleConflict{RoleID: r.ID, Assigned: counts[r.ID], Capacity: r.Capacity})
		}
	}
	return conflicts, nil
}
