package plugins

import (
	"fmt"

	"github.com/kingrea/rolechain/internal/roles"
)

// DirName is the roster extension directory under .rolechain.
const DirName = "roles.d"

// Extend appends every role declared under dir to base and returns the
// combined registry. base is returned unchanged when dir holds no extensions.
func Extend(base *roles.Registry, dir string) (*roles.Registry, error) {
	if base == nil {
		return nil, fmt.Errorf("plugin: base registry is required")
	}
	files, err := loadAllDefinitionFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return base, nil
	}
	combined := base.Roles()
	seen := make(map[string]string, len(combined))
	for _, role := range combined {
		seen[role.Name] = "configured roster"
	}
	for _, file := range files {
		for _, def := range file.Definitions {
			if existing, ok := seen[def.Name]; ok {
				return nil, fmt.Errorf("plugin: duplicate role %s (%s and %s)", def.Name, existing, file.Path)
			}
			seen[def.Name] = file.Path
			combined = append(combined, def.Role())
		}
	}
	return roles.New(combined)
}

func loadAllDefinitionFiles(dir string) ([]DefinitionFile, error) {
	yamlDefs, err := LoadDefinitionDir(dir)
	if err != nil {
		return nil, err
	}
	goDefs, err := LoadGoDefinitionDir(dir)
	if err != nil {
		return nil, err
	}
	return append(yamlDefs, goDefs...), nil
}
