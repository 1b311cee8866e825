// Package plugins loads roster extensions from .rolechain/roles.d. Extension
// roles are appended after the configured roster: YAML files first, then Go
// files, each in path order. YAML files hold a list of definitions; Go files
// are interpreted and must define RoleDefinitions.
package plugins

import (
	"fmt"
	"strings"
	"time"

	"github.com/kingrea/rolechain/internal/roles"
)

// RoleDefinition is the on-disk schema for one extension role.
type RoleDefinition struct {
	Name             string `json:"name" yaml:"name"`
	FrequencyMinutes int    `json:"frequency_minutes,omitempty" yaml:"frequency_minutes,omitempty"`
}

// Normalized returns a trimmed copy of the definition.
func (def RoleDefinition) Normalized() RoleDefinition {
	return RoleDefinition{
		Name:             strings.TrimSpace(def.Name),
		FrequencyMinutes: def.FrequencyMinutes,
	}
}

// Validate ensures the definition names a role and carries a sane frequency.
func (def RoleDefinition) Validate() error {
	normalized := def.Normalized()
	if normalized.Name == "" {
		return fmt.Errorf("plugin: name is required")
	}
	if normalized.FrequencyMinutes < 0 {
		return fmt.Errorf("plugin %s: frequency_minutes must not be negative", normalized.Name)
	}
	return nil
}

// Role converts the definition into a registry entry.
func (def RoleDefinition) Role() roles.Role {
	normalized := def.Normalized()
	return roles.Role{
		Name:      normalized.Name,
		Frequency: time.Duration(normalized.FrequencyMinutes) * time.Minute,
	}
}
