package alert

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/arch-labs/orchestrator/core"
)

// LoadPolicy parses an alert-policy YAML document at path. A missing or
// empty path is not an error: callers run with no rules rather than
// aborting the watcher loop.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, core.NewError("alert.LoadPolicy", core.ErrPolicyLoad, "", "", err)
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, core.NewError("alert.LoadPolicy", core.ErrPolicyLoad, "", "", err)
	}
	for i := range p.Rules {
		if p.Rules[i].Condition.Agent == "" {
			p.Rules[i].Condition.Agent = "*"
		}
	}
	return &p, nil
}
