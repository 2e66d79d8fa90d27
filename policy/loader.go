package policy

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/arch-labs/orchestrator/core"
)

// Load parses a phase-policy YAML document at path. A missing file is
// not an error: callers fall back to the router's hard-coded defaults
// when Load returns (nil, nil).
func Load(path string) (*Policy, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, core.NewError("policy.Load", core.ErrPolicyLoad, "", "", err)
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, core.NewError("policy.Load", core.ErrPolicyLoad, "", "", err)
	}
	return &p, nil
}
