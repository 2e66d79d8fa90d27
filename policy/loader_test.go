package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsNil(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestLoadEmptyPathReturnsNil(t *testing.T) {
	p, err := Load("")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestLoadParsesRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "phase_policy.yaml")
	content := `
task_result_rules:
  - id: default_task_result
    destination: ARCH
    escalation_level: none
error_rules:
  - id: default_error
    destination: CC
    escalation_level: agent
    conditions:
      - field: retry_count
        operator: lt
        value: 3
error_classes:
  - type: critical_error
    retry_count: 0
  - type: resource_constraint
    retry_count: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Len(t, p.TaskResultRules, 1)
	assert.Equal(t, "ARCH", p.TaskResultRules[0].Destination)
	require.Len(t, p.ErrorRules[0].Conditions, 1)
	assert.Equal(t, "lt", p.ErrorRules[0].Conditions[0].Operator)
	assert.Equal(t, 5, p.ErrorClasses[1].RetryCount)
}
