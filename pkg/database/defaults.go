package database

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/arnavshah/role-allocator-go/pkg/models"
)

//go:embed default_roles.yaml
var defaultRolesYAML []byte

// DefaultRoles returns the built-in role catalogue
func DefaultRoles() ([]models.Role, error) {
	return ParseRoles(defaultRolesYAML)
}

// ParseRoles decodes a YAML list of roles
func ParseRoles(data []byte) ([]models.Role, error) {
	var roles []models.Role
	if err := yaml.Unmarshal(data, &roles); err != nil {
		return nil, fmt.Errorf("parse roles: %w", err)
	}
	for i := range roles {
		roles[i].Normalize()
	}
	return roles, nil
}
