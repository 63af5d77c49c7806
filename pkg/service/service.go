// Package service runs allocations against stored roles and preferences and
// manages the publish lifecycle of the results.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arnavshah/role-allocator-go/pkg/allocator"
	"github.com/arnavshah/role-allocator-go/pkg/archive"
	"github.com/arnavshah/role-allocator-go/pkg/database"
	"github.com/arnavshah/role-allocator-go/pkg/events"
	"github.com/arnavshah/role-allocator-go/pkg/metrics"
	"github.com/arnavshah/role-allocator-go/pkg/models"
)

var (
	ErrNoPreferences = errors.New("no preferences have been submitted")
	ErrNoAssignments = errors.New("no assignments to publish")
	ErrNotPublished  = errors.New("results have not been published")
	ErrRoleInUse     = errors.New("role is referenced by assignments")
	ErrInvalidInput  = errors.New("invalid input")
)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Config holds the collaborators of a Service. Store is required.
type Config struct {
	Store    *database.Store
	Events   events.Publisher
	Archiver archive.Archiver
	Metrics  *metrics.Collector
	Logger   *zap.Logger

	// Trials and Workers are passed to every allocation run
	Trials  int
	Workers int
}

// Service is the allocation application layer
type Service struct {
	store    *database.Store
	events   events.Publisher
	archiver archive.Archiver
	metrics  *metrics.Collector
	log      *zap.Logger
	trials   int
	workers  int

	now   func() time.Time
	newID func() string
}

// New creates a Service
func New(cfg Config) *Service {
	s := &Service{
		store:    cfg.Store,
		events:   cfg.Events,
		archiver: cfg.Archiver,
		metrics:  cfg.Metrics,
		log:      cfg.Logger,
		trials:   cfg.Trials,
		workers:  cfg.Workers,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.archiver == nil {
		s.archiver = archive.Nop{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.trials <= 0 {
		s.trials = allocator.DefaultTrials
	}
	return s
}

// ---- roles ----

func validateRole(r *models.Role) error {
	r.Normalize()
	switch {
	case r.ID == "":
		return invalid("role id is required")
	case r.Title == "":
		return invalid("role title is required")
	case r.Description == "":
		return invalid("role description is required")
	case r.Capacity < 1:
		return invalid("role capacity must be at least 1")
	}
	return nil
}

// Roles lists the configured roles
func (s *Service) Roles(ctx context.Context) ([]models.Role, error) {
	return s.store.ListRoles(ctx)
}

// CreateRole validates and stores a new role
func (s *Service) CreateRole(ctx context.Context, role models.Role) (models.Role, error) {
	if err := validateRole(&role); err != nil {
		return models.Role{}, err
	}
	if err := s.store.CreateRole(ctx, role); err != nil {
		return models.Role{}, err
	}
	s.log.Info("role created", zap.String("role_id", role.ID), zap.Int("capacity", role.Capacity))
	return role, nil
}

// UpdateRole validates and overwrites an existing role
func (s *Service) UpdateRole(ctx context.Context, role models.Role) (models.Role, error) {
	if err := validateRole(&role); err != nil {
		return models.Role{}, err
	}
	if err := s.store.UpdateRole(ctx, role); err != nil {
		return models.Role{}, err
	}
	return role, nil
}

// DeleteRole removes a role that no assignment refers to
func (s *Service) DeleteRole(ctx context.Context, id string) error {
	n, err := s.store.CountAssignments(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("role %q has %d assignments: %w", id, n, ErrRoleInUse)
	}
	return s.store.DeleteRole(ctx, id)
}

// ---- preferences ----

// SavePreference validates and stores a participant's ranked role list
func (s *Service) SavePreference(ctx context.Context, userID string, in models.PreferenceInput) (models.Preference, error) {
	pref := models.Preference{UserID: userID, UserName: in.UserName, Preferences: append([]string(nil), in.Preferences...)}
	pref.Normalize()

	if pref.UserID == "" {
		return models.Preference{}, invalid("user id is required")
	}
	if len(pref.Preferences) == 0 {
		return models.Preference{}, invalid("at least one preference is required")
	}
	if len(pref.Preferences) > models.MaxPreferences {
		return models.Preference{}, invalid("at most %d preferences are allowed", models.MaxPreferences)
	}

	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return models.Preference{}, err
	}
	known := make(map[string]bool, len(roles))
	for _, r := range roles {
		known[r.ID] = true
	}
	seen := make(map[string]bool, len(pref.Preferences))
	for _, id := range pref.Preferences {
		if !known[id] {
			return models.Preference{}, invalid("unknown role %q", id)
		}
		if seen[id] {
			return models.Preference{}, invalid("role %q listed twice", id)
		}
		seen[id] = true
	}

	return s.store.SavePreference(ctx, pref)
}

// Preference returns one participant's stored preference list
func (s *Service) Preference(ctx context.Context, userID string) (models.Preference, error) {
	return s.store.GetPreference(ctx, userID)
}

// DeletePreference removes one participant's preference list
func (s *Service) DeletePreference(ctx context.Context, userID string) error {
	return s.store.DeletePreference(ctx, userID)
}

// Preferences lists every stored preference
func (s *Service) Preferences(ctx context.Context) ([]models.Preference, error) {
	return s.store.ListPreferences(ctx)
}
