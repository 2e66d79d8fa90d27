package envelope

import "strings"

// StaticChecklistEnforcer injects a fixed compliance checklist into a
// task assignment's content, grounded on the source's per-agent
// checklist reminder (a static summary appended to the task description
// plus a structured block for later compliance review). It is an
// optional ChecklistEnforcer; no agent is flagged by default.
type StaticChecklistEnforcer struct {
	Items []string
}

// NewStaticChecklistEnforcer builds an enforcer from a flat list of
// compliance items, e.g. branch-naming or review requirements.
func NewStaticChecklistEnforcer(items []string) *StaticChecklistEnforcer {
	return &StaticChecklistEnforcer{Items: items}
}

func (e *StaticChecklistEnforcer) Enforce(agent string, content map[string]interface{}) bool {
	if len(e.Items) == 0 {
		return false
	}
	content["compliance_checklist"] = append([]string(nil), e.Items...)
	if desc, ok := content["description"].(string); ok {
		content["description"] = desc + "\n\n" + e.summary()
	}
	return true
}

func (e *StaticChecklistEnforcer) summary() string {
	var b strings.Builder
	b.WriteString("Compliance checklist:\n")
	for _, item := range e.Items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	return b.String()
}
