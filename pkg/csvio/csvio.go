// Package csvio reads roles and preferences from CSV and writes assignments
// back out.
//
// Roles use the columns id,title,description,capacity. Preferences use
// user_id,user_name,preferences where preferences is a "|" separated list of
// role ids, most preferred first.
package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/arnavshah/role-allocator-go/pkg/models"
)

func header(r *csv.Reader, required ...string) (map[string]int, error) {
	row, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(row))
	for i, h := range row {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	return cols, nil
}

func field(record []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// ReadRoles parses a roles CSV
func ReadRoles(in io.Reader) ([]models.Role, error) {
	r := csv.NewReader(in)
	r.FieldsPerRecord = -1
	cols, err := header(r, "id", "capacity")
	if err != nil {
		return nil, err
	}

	var roles []models.Role
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		capacity, err := strconv.Atoi(field(record, cols, "capacity"))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid capacity: %w", line, err)
		}
		role := models.Role{
			ID:          field(record, cols, "id"),
			Title:       field(record, cols, "title"),
			Description: field(record, cols, "description"),
			Capacity:    capacity,
		}
		if role.Title == "" {
			role.Title = role.ID
		}
		role.Normalize()
		roles = append(roles, role)
	}
	return roles, nil
}

// ReadPreferences parses a preferences CSV. Rows without a user id are skipped.
func ReadPreferences(in io.Reader) ([]models.Preference, error) {
	r := csv.NewReader(in)
	r.FieldsPerRecord = -1
	cols, err := header(r, "user_id", "preferences")
	if err != nil {
		return nil, err
	}

	var prefs []models.Preference
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		userID := field(record, cols, "user_id")
		if userID == "" {
			continue
		}
		var ranked []string
		for _, id := range strings.Split(field(record, cols, "preferences"), "|") {
			if id = strings.TrimSpace(id); id != "" {
				ranked = append(ranked, id)
			}
		}
		pref := models.Preference{
			UserID:      userID,
			UserName:    field(record, cols, "user_name"),
			Preferences: ranked,
		}
		pref.Normalize()
		prefs = append(prefs, pref)
	}
	return prefs, nil
}

// WriteAssignments writes one row per assignment
func WriteAssignments(out io.Writer, assignments []models.Assignment) error {
	w := csv.NewWriter(out)
	_ = w.Write([]string{"key", "user_id", "user_name", "role_id", "role_name", "preference_rank", "cost", "relaxed", "timestamp"})
	for _, a := range assignments {
		_ = w.Write([]string{
			a.Key,
			a.UserID,
			a.UserName,
			a.RoleID,
			a.RoleName,
			strconv.Itoa(a.PreferenceRank),
			strconv.FormatFloat(a.Cost, 'f', -1, 64),
			strconv.FormatBool(a.Relaxed),
			a.Timestamp.Format(time.RFC3339),
		})
	}
	w.Flush()
	return w.Error()
}
