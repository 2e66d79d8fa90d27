package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearPlan() *Plan {
	return &Plan{
		PlanID: "PLAN-1",
		Tasks: []Task{
			{TaskID: "T1", Agent: "CA"},
			{TaskID: "T2", Agent: "CA", Dependencies: []string{"T1"}},
			{TaskID: "T3", Agent: "CA", Dependencies: []string{"T2"}},
		},
	}
}

func diamondPlan() *Plan {
	return &Plan{
		PlanID: "PLAN-2",
		Tasks: []Task{
			{TaskID: "T1", Agent: "CA"},
			{TaskID: "T2", Agent: "CA", Dependencies: []string{"T1"}},
			{TaskID: "T3", Agent: "CC", Dependencies: []string{"T1"}},
			{TaskID: "T4", Agent: "CA", Dependencies: []string{"T2", "T3"}},
		},
	}
}

func TestBuildLinearOrder(t *testing.T) {
	d, err := Build(linearPlan())
	require.NoError(t, err)
	assert.Equal(t, []string{"T1"}, d.RootNodes)
	assert.Equal(t, []string{"T3"}, d.LeafNodes)

	pos := map[string]int{}
	for i, id := range d.ExecutionOrder {
		pos[id] = i
	}
	assert.Less(t, pos["T1"], pos["T2"])
	assert.Less(t, pos["T2"], pos["T3"])
}

func TestBuildRejectsSelfDependency(t *testing.T) {
	p := &Plan{PlanID: "PLAN-3", Tasks: []Task{{TaskID: "T1", Agent: "CA", Dependencies: []string{"T1"}}}}
	_, err := Build(p)
	assert.Error(t, err)
}

func TestBuildRejectsUnknownDependency(t *testing.T) {
	p := &Plan{PlanID: "PLAN-4", Tasks: []Task{{TaskID: "T1", Agent: "CA", Dependencies: []string{"GHOST"}}}}
	_, err := Build(p)
	assert.Error(t, err)
}

func TestBuildRejectsCycle(t *testing.T) {
	p := &Plan{
		PlanID: "PLAN-5",
		Tasks: []Task{
			{TaskID: "T1", Agent: "CA", Dependencies: []string{"T2"}},
			{TaskID: "T2", Agent: "CA", Dependencies: []string{"T1"}},
		},
	}
	_, err := Build(p)
	assert.Error(t, err)
}

func TestLayersMaximizeParallelism(t *testing.T) {
	d, err := Build(diamondPlan())
	require.NoError(t, err)

	layers := d.Layers()
	require.Len(t, layers, 3)
	assert.Equal(t, []string{"T1"}, layers[0])
	assert.ElementsMatch(t, []string{"T2", "T3"}, layers[1])
	assert.Equal(t, []string{"T4"}, layers[2])
}

func TestLayersLinearAllSingleton(t *testing.T) {
	d, err := Build(linearPlan())
	require.NoError(t, err)
	layers := d.Layers()
	require.Len(t, layers, 3)
	for _, l := range layers {
		assert.Len(t, l, 1)
	}
}

func TestValidateIntegrityReportsShape(t *testing.T) {
	d, err := Build(diamondPlan())
	require.NoError(t, err)

	report := d.ValidateIntegrity()
	assert.True(t, report.Valid)
	assert.Equal(t, 4, report.TotalTasks)
	assert.Equal(t, 1, report.RootTasks)
	assert.Equal(t, 1, report.LeafTasks)
	assert.Equal(t, 2, report.MaxDepth)
	assert.Equal(t, 3, report.ParallelizableLayers)
	assert.Equal(t, 2, report.AgentsInvolved)
	assert.Empty(t, report.Warnings)
}

func TestValidateIntegrityConnectedPlanHasNoWarnings(t *testing.T) {
	p := &Plan{
		PlanID: "PLAN-6",
		Tasks: []Task{
			{TaskID: "T1", Agent: "CA"},
			{TaskID: "T2", Agent: "CA", Dependencies: []string{"T1"}},
		},
	}
	d, err := Build(p)
	require.NoError(t, err)
	report := d.ValidateIntegrity()
	assert.Empty(t, report.Warnings)
}
