package plan

import (
	"fmt"
	"sort"

	"github.com/arch-labs/orchestrator/core"
)

// Node is a task as represented inside the DAG, resolved from its plan
// definition.
type Node struct {
	Task
}

// DAG is a directed acyclic graph of task nodes, built once per run and
// never mutated afterward.
type DAG struct {
	Nodes         map[string]*Node
	Edges         map[string][]string // task_id -> dependents
	ReverseEdges  map[string][]string // task_id -> prerequisites
	RootNodes     []string
	LeafNodes     []string
	ExecutionOrder []string
}

// Build constructs a DAG from a validated plan: materializes nodes,
// verifies dependency references, builds forward/reverse edges, and
// computes a topological execution order via Kahn's algorithm.
func Build(p *Plan) (*DAG, error) {
	if len(p.Tasks) == 0 {
		return nil, core.NewError("plan.Build", core.ErrInvalidPlan, p.PlanID, "", fmt.Errorf("plan contains no tasks"))
	}

	nodes := make(map[string]*Node, len(p.Tasks))
	for i := range p.Tasks {
		t := p.Tasks[i]
		nodes[t.TaskID] = &Node{Task: t}
	}

	for id, n := range nodes {
		for _, dep := range n.Dependencies {
			if dep == id {
				return nil, core.NewError("plan.Build", core.ErrInvalidPlan, p.PlanID, id, fmt.Errorf("task %q cannot depend on itself", id))
			}
			if _, ok := nodes[dep]; !ok {
				return nil, core.NewError("plan.Build", core.ErrInvalidPlan, p.PlanID, id, fmt.Errorf("task %q depends on non-existent task %q", id, dep))
			}
		}
	}

	edges := map[string][]string{}
	reverseEdges := map[string][]string{}
	for id, n := range nodes {
		for _, dep := range n.Dependencies {
			edges[dep] = append(edges[dep], id)
			reverseEdges[id] = append(reverseEdges[id], dep)
		}
	}

	var rootNodes, leafNodes []string
	for id, n := range nodes {
		if len(n.Dependencies) == 0 {
			rootNodes = append(rootNodes, id)
		}
		if len(edges[id]) == 0 {
			leafNodes = append(leafNodes, id)
		}
	}

	order, err := topologicalSort(nodes, reverseEdges)
	if err != nil {
		return nil, core.NewError("plan.Build", core.ErrInvalidPlan, p.PlanID, "", err)
	}

	return &DAG{
		Nodes:          nodes,
		Edges:          edges,
		ReverseEdges:   reverseEdges,
		RootNodes:      rootNodes,
		LeafNodes:      leafNodes,
		ExecutionOrder: order,
	}, nil
}

func topologicalSort(nodes map[string]*Node, reverseEdges map[string][]string) ([]string, error) {
	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	inDegree := make(map[string]int, len(nodes))
	for _, id := range ids {
		inDegree[id] = len(reverseEdges[id])
	}

	var queue []string
	for _, id := range ids {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	var result []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		for _, id := range ids {
			for _, dep := range nodes[id].Dependencies {
				if dep == current {
					inDegree[id]--
					if inDegree[id] == 0 {
						queue = append(queue, id)
					}
				}
			}
		}
	}

	if len(result) != len(nodes) {
		return nil, fmt.Errorf("cycle detected during topological sort")
	}
	return result, nil
}

// Layers groups tasks into maximum-parallelism layers: layer i contains
// every task whose dependencies are all satisfied by layers 0..i-1.
// Deterministic: within a layer, tasks are ordered by ExecutionOrder.
func (d *DAG) Layers() [][]string {
	completed := map[string]bool{}
	var layers [][]string

	for len(completed) < len(d.Nodes) {
		var ready []string
		for _, id := range d.ExecutionOrder {
			if completed[id] {
				continue
			}
			n := d.Nodes[id]
			allDone := true
			for _, dep := range n.Dependencies {
				if !completed[dep] {
					allDone = false
					break
				}
			}
			if allDone {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			break // unreachable: Build already rejects cycles
		}
		layers = append(layers, ready)
		for _, id := range ready {
			completed[id] = true
		}
	}
	return layers
}

// IntegrityReport summarizes DAG structure for operational visibility.
type IntegrityReport struct {
	Valid               bool
	Errors              []string
	Warnings            []string
	TotalTasks          int
	RootTasks           int
	LeafTasks           int
	MaxDepth            int
	ParallelizableLayers int
	AgentsInvolved      int
}

// ValidateIntegrity reports max depth, root/leaf counts, agents
// involved, and isolated nodes (in a plan of more than one task, a task
// with no dependencies and no dependents is flagged as a warning, not
// an error).
func (d *DAG) ValidateIntegrity() IntegrityReport {
	report := IntegrityReport{
		Valid:                true,
		TotalTasks:           len(d.Nodes),
		RootTasks:            len(d.RootNodes),
		LeafTasks:            len(d.LeafNodes),
		ParallelizableLayers: len(d.Layers()),
	}

	agents := map[string]bool{}
	for _, n := range d.Nodes {
		agents[n.Agent] = true
	}
	report.AgentsInvolved = len(agents)

	referenced := map[string]bool{}
	for _, n := range d.Nodes {
		for _, dep := range n.Dependencies {
			referenced[dep] = true
		}
	}
	for id, deps := range d.Edges {
		if len(deps) > 0 {
			referenced[id] = true
		}
	}
	var isolated []string
	for id, n := range d.Nodes {
		if len(d.Nodes) > 1 && !referenced[id] && len(n.Dependencies) == 0 {
			isolated = append(isolated, id)
		}
	}
	if len(isolated) > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("isolated tasks found: %v", isolated))
	}

	memo := map[string]int{}
	var depth func(id string) int
	depth = func(id string) int {
		if v, ok := memo[id]; ok {
			return v
		}
		n := d.Nodes[id]
		if len(n.Dependencies) == 0 {
			memo[id] = 0
			return 0
		}
		max := 0
		for _, dep := range n.Dependencies {
			if dd := depth(dep); dd > max {
				max = dd
			}
		}
		memo[id] = max + 1
		return memo[id]
	}
	maxDepth := 0
	for id := range d.Nodes {
		if dd := depth(id); dd > maxDepth {
			maxDepth = dd
		}
	}
	report.MaxDepth = maxDepth

	return report
}
