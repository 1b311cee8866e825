package roles

import "time"

// DefaultRoster is the stock priority order shipped in a fresh config.yaml.
// Frequencies start at two minutes and grow by one minute per position.
var DefaultRoster = []string{
	"github-credentials",
	"directive-notice",
	"technical-hr-lead",
	"devops-engineer",
	"lead-developer",
	"qa-engineer",
	"security-engineer",
	"system-architect",
	"performance-engineer",
	"documentation-engineer",
	"ux-designer",
	"product-manager",
	"project-manager",
	"data-analyst",
	"mobile-developer",
	"ml-engineer",
	"technical-support-engineer",
	"blockchain-developer",
	"quantum-cryptography-specialist",
	"edge-computing-engineer",
	"international-expansion-manager",
}

// Default returns the stock registry.
func Default() *Registry {
	defs := make([]Role, len(DefaultRoster))
	for i, name := range DefaultRoster {
		defs[i] = Role{Name: name, Frequency: time.Duration(i+2) * time.Minute}
	}
	return MustNew(defs)
}
