package csvio

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arnavshah/role-allocator-go/pkg/models"
)

func TestReadRoles(t *testing.T) {
	in := "id,title,description,capacity\n" +
		"usher, Usher ,Greets people,2\n" +
		"cook,,,1\n"
	roles, err := ReadRoles(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []models.Role{
		{ID: "usher", Title: "Usher", Description: "Greets people", Capacity: 2},
		{ID: "cook", Title: "cook", Capacity: 1},
	}, roles)

	_, err = ReadRoles(strings.NewReader("id,capacity\nx,lots\n"))
	assert.ErrorContains(t, err, "line 2")

	_, err = ReadRoles(strings.NewReader("id,title\nx,y\n"))
	assert.ErrorContains(t, err, "capacity")
}

func TestReadPreferences(t *testing.T) {
	in := "user_id,user_name,preferences\n" +
		"u1,Ann,a|b| c\n" +
		",Nobody,a\n" +
		"u2,Bo,\n"
	prefs, err := ReadPreferences(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, prefs, 2)
	assert.Equal(t, []string{"a", "b", "c"}, prefs[0].Preferences)
	assert.Equal(t, "Bo", prefs[1].UserName)
	assert.Empty(t, prefs[1].Preferences)
}

func TestWriteAssignments(t *testing.T) {
	var out strings.Builder
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	err := WriteAssignments(&out, []models.Assignment{
		{Key: "u1#1", UserID: "u1", UserName: "Ann", RoleID: "a", RoleName: "A", PreferenceRank: 2, Cost: 3, Timestamp: ts},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "u1#1,u1,Ann,a,A,2,3,false,2024-05-01T12:00:00Z", lines[1])
}
