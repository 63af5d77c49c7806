package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/arnavshah/role-allocator-go/pkg/models"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

const statusRowID = 1

// Store reads and writes the allocation service's state
type Store struct {
	DB *gorm.DB
}

// NewStore wraps an open connection
func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// ---- roles ----

func roleFromRecord(r RoleRecord) models.Role {
	return models.Role{ID: r.ID, Title: r.Title, Description: r.Description, Capacity: r.Capacity}
}

// ListRoles returns roles in display order
func (s *Store) ListRoles(ctx context.Context) ([]models.Role, error) {
	var recs []RoleRecord
	if err := s.DB.WithContext(ctx).Order("position asc").Order("id asc").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	roles := make([]models.Role, 0, len(recs))
	for _, r := range recs {
		roles = append(roles, roleFromRecord(r))
	}
	return roles, nil
}

// GetRole fetches one role by id
func (s *Store) GetRole(ctx context.Context, id string) (models.Role, error) {
	var rec RoleRecord
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return models.Role{}, notFound(err)
	}
	return roleFromRecord(rec), nil
}

// CreateRole appends a role after the existing ones
func (s *Store) CreateRole(ctx context.Context, role models.Role) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&RoleRecord{}).Where("id = ?", role.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("role %q: %w", role.ID, ErrConflict)
		}
		var last int
		if err := tx.Model(&RoleRecord{}).Select("COALESCE(MAX(position), -1)").Scan(&last).Error; err != nil {
			return err
		}
		return tx.Create(&RoleRecord{
			ID:          role.ID,
			Title:       role.Title,
			Description: role.Description,
			Capacity:    role.Capacity,
			Position:    last + 1,
		}).Error
	})
}

// UpdateRole overwrites title, description and capacity of an existing role
func (s *Store) UpdateRole(ctx context.Context, role models.Role) error {
	res := s.DB.WithContext(ctx).Model(&RoleRecord{}).Where("id = ?", role.ID).Updates(map[string]interface{}{
		"title":       role.Title,
		"description": role.Description,
		"capacity":    role.Capacity,
	})
	if res.Error != nil {
		return fmt.Errorf("update role: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRole removes a role
func (s *Store) DeleteRole(ctx context.Context, id string) error {
	res := s.DB.WithContext(ctx).Where("id = ?", id).Delete(&RoleRecord{})
	if res.Error != nil {
		return fmt.Errorf("delete role: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SeedRoles stores defaults when the roles table is empty and returns the
// roles now in effect.
func (s *Store) SeedRoles(ctx context.Context, defaults []models.Role) ([]models.Role, error) {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&RoleRecord{}).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("count roles: %w", err)
	}
	if count == 0 && len(defaults) > 0 {
		recs := make([]RoleRecord, 0, len(defaults))
		for i, r := range defaults {
			recs = append(recs, RoleRecord{
				ID:          r.ID,
				Title:       r.Title,
				Description: r.Description,
				Capacity:    r.Capacity,
				Position:    i,
			})
		}
		if err := s.DB.WithContext(ctx).Create(&recs).Error; err != nil {
			return nil, fmt.Errorf("seed roles: %w", err)
		}
	}
	return s.ListRoles(ctx)
}

// ---- preferences ----

func preferenceFromRecord(r PreferenceRecord) models.Preference {
	return models.Preference{
		UserID:      r.UserID,
		UserName:    r.UserName,
		Preferences: r.Preferences,
		Timestamp:   r.UpdatedAt,
	}
}

// SavePreference inserts or replaces a participant's preference list
func (s *Store) SavePreference(ctx context.Context, pref models.Preference) (models.Preference, error) {
	rec := PreferenceRecord{
		UserID:      pref.UserID,
		UserName:    pref.UserName,
		Preferences: pref.Preferences,
		UpdatedAt:   time.Now().UTC(),
	}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_name", "preferences", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return models.Preference{}, fmt.Errorf("save preference: %w", err)
	}
	return preferenceFromRecord(rec), nil
}

// GetPreference fetches one participant's preference list
func (s *Store) GetPreference(ctx context.Context, userID string) (models.Preference, error) {
	var rec PreferenceRecord
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&rec).Error; err != nil {
		return models.Preference{}, notFound(err)
	}
	return preferenceFromRecord(rec), nil
}

// DeletePreference removes a participant's preference list
func (s *Store) DeletePreference(ctx context.Context, userID string) error {
	res := s.DB.WithContext(ctx).Where("user_id = ?", userID).Delete(&PreferenceRecord{})
	if res.Error != nil {
		return fmt.Errorf("delete preference: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPreferences returns every stored preference, oldest update first
func (s *Store) ListPreferences(ctx context.Context) ([]models.Preference, error) {
	var recs []PreferenceRecord
	if err := s.DB.WithContext(ctx).Order("updated_at asc").Order("user_id asc").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	prefs := make([]models.Preference, 0, len(recs))
	for _, r := range recs {
		prefs = append(prefs, preferenceFromRecord(r))
	}
	return prefs, nil
}

// ---- assignments ----

func assignmentFromRecord(r AssignmentRecord) models.Assignment {
	return models.Assignment{
		Key:            r.Key,
		UserID:         r.UserID,
		UserName:       r.UserName,
		RoleID:         r.RoleID,
		RoleName:       r.RoleName,
		PreferenceRank: r.PreferenceRank,
		Cost:           r.Cost,
		Relaxed:        r.Relaxed,
		Timestamp:      r.Timestamp,
	}
}

func assignmentRecord(runID string, a models.Assignment) AssignmentRecord {
	return AssignmentRecord{
		Key:            a.Key,
		UserID:         a.UserID,
		UserName:       a.UserName,
		RoleID:         a.RoleID,
		RoleName:       a.RoleName,
		PreferenceRank: a.PreferenceRank,
		Cost:           a.Cost,
		Relaxed:        a.Relaxed,
		RunID:          runID,
		Timestamp:      a.Timestamp,
	}
}

// ReplaceAssignments swaps the stored assignments for the given run's
// assignments in one transaction.
func (s *Store) ReplaceAssignments(ctx context.Context, runID string, assignments []models.Assignment) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&AssignmentRecord{}).Error; err != nil {
			return fmt.Errorf("clear assignments: %w", err)
		}
		if len(assignments) == 0 {
			return nil
		}
		recs := make([]AssignmentRecord, 0, len(assignments))
		for _, a := range assignments {
			recs = append(recs, assignmentRecord(runID, a))
		}
		if err := tx.CreateInBatches(&recs, 200).Error; err != nil {
			return fmt.Errorf("insert assignments: %w", err)
		}
		return nil
	})
}

// ListAssignments returns stored assignments ordered by participant
func (s *Store) ListAssignments(ctx context.Context) ([]models.Assignment, error) {
	var recs []AssignmentRecord
	if err := s.DB.WithContext(ctx).Order("user_id asc").Order("assignment_key asc").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	out := make([]models.Assignment, 0, len(recs))
	for _, r := range recs {
		out = append(out, assignmentFromRecord(r))
	}
	return out, nil
}

// GetAssignment fetches one assignment by its key
func (s *Store) GetAssignment(ctx context.Context, key string) (models.Assignment, error) {
	var rec AssignmentRecord
	if err := s.DB.WithContext(ctx).Where("assignment_key = ?", key).First(&rec).Error; err != nil {
		return models.Assignment{}, notFound(err)
	}
	return assignmentFromRecord(rec), nil
}

// UpdateAssignment rewrites the role of an existing assignment
func (s *Store) UpdateAssignment(ctx context.Context, a models.Assignment) error {
	res := s.DB.WithContext(ctx).Model(&AssignmentRecord{}).Where("assignment_key = ?", a.Key).Updates(map[string]interface{}{
		"role_id":         a.RoleID,
		"role_name":       a.RoleName,
		"preference_rank": a.PreferenceRank,
		"cost":            a.Cost,
		"relaxed":         a.Relaxed,
		"timestamp":       a.Timestamp,
	})
	if res.Error != nil {
		return fmt.Errorf("update assignment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearAssignments removes every stored assignment
func (s *Store) ClearAssignments(ctx context.Context) error {
	if err := s.DB.WithContext(ctx).Where("1 = 1").Delete(&AssignmentRecord{}).Error; err != nil {
		return fmt.Errorf("clear assignments: %w", err)
	}
	return nil
}

// CountAssignments returns the number of stored assignments, optionally for one role
func (s *Store) CountAssignments(ctx context.Context, roleID string) (int64, error) {
	q := s.DB.WithContext(ctx).Model(&AssignmentRecord{})
	if roleID != "" {
		q = q.Where("role_id = ?", roleID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count assignments: %w", err)
	}
	return count, nil
}

// ---- status ----

// GetStatus returns the publish flag; an absent row means unpublished
func (s *Store) GetStatus(ctx context.Context) (AllocationStatus, error) {
	var st AllocationStatus
	err := s.DB.WithContext(ctx).Where("id = ?", statusRowID).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return AllocationStatus{ID: statusRowID, UpdatedAt: time.Now().UTC()}, nil
	}
	if err != nil {
		return AllocationStatus{}, fmt.Errorf("get status: %w", err)
	}
	return st, nil
}

// SetStatus stores the publish flag
func (s *Store) SetStatus(ctx context.Context, completed bool) (AllocationStatus, error) {
	st := AllocationStatus{ID: statusRowID, Completed: completed, UpdatedAt: time.Now().UTC()}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"completed", "updated_at"}),
	}).Create(&st).Error
	if err != nil {
		return AllocationStatus{}, fmt.Errorf("set status: %w", err)
	}
	return st, nil
}

// ---- runs ----

// RecordRun stores the summary of an allocation run
func (s *Store) RecordRun(ctx context.Context, run *AllocationRun) error {
	if err := s.DB.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first
func (s *Store) ListRuns(ctx context.Context, limit int) ([]AllocationRun, error) {
	if limit <= 0 {
		limit = 30
	}
	var runs []AllocationRun
	if err := s.DB.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// ---- participant keys ----

// EnsureParticipantKey returns the key row for userID, creating it on first use
func (s *Store) EnsureParticipantKey(ctx context.Context, key, userID string) (*ParticipantKey, error) {
	var pk ParticipantKey
	err := s.DB.WithContext(ctx).Where(ParticipantKey{UserID: userID}).Attrs(ParticipantKey{
		Key:     key,
		Preview: preview(key),
	}).FirstOrCreate(&pk).Error
	if err != nil {
		return nil, fmt.Errorf("ensure participant key: %w", err)
	}
	return &pk, nil
}

// TouchParticipantKey stamps the key's last use
func (s *Store) TouchParticipantKey(ctx context.Context, pk *ParticipantKey) error {
	now := time.Now().UTC()
	pk.LastUsed = &now
	return s.DB.WithContext(ctx).Model(pk).Update("last_used", now).Error
}

// ListParticipantKeys returns every issued key
func (s *Store) ListParticipantKeys(ctx context.Context) ([]ParticipantKey, error) {
	var keys []ParticipantKey
	if err := s.DB.WithContext(ctx).Order("user_id asc").Find(&keys).Error; err != nil {
		return nil, fmt.Errorf("list participant keys: %w", err)
	}
	return keys, nil
}

// RevokeParticipantKey marks a participant's key as unusable
func (s *Store) RevokeParticipantKey(ctx context.Context, userID string) error {
	res := s.DB.WithContext(ctx).Model(&ParticipantKey{}).Where("user_id = ?", userID).Update("revoked", true)
	if res.Error != nil {
		return fmt.Errorf("revoke participant key: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func preview(key string) string {
	if len(key) > 8 {
		return key[:3] + "..." + key[len(key)-4:]
	}
	return "****"
}

// ---- admins ----

// CountAdmins returns the number of admin accounts
func (s *Store) CountAdmins(ctx context.Context) (int64, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&MasterUser{}).Count(&count).Error
	return count, err
}

// CreateAdmin stores a new admin account
func (s *Store) CreateAdmin(ctx context.Context, username, passwordHash string) error {
	return s.DB.WithContext(ctx).Create(&MasterUser{Username: username, PasswordHash: passwordHash}).Error
}

// FindAdmin fetches an admin account by username
func (s *Store) FindAdmin(ctx context.Context, username string) (*MasterUser, error) {
	var user MasterUser
	if err := s.DB.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}
