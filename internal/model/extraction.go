package model

import "strings"

// Condition is a candidate diagnosis reported by the model. Probability is
// the model's self-reported confidence (0-100), not independently verified.
type Condition struct {
	Name        string `json:"name"`
	Probability int    `json:"probability"`
	Reason      string `json:"reason,omitempty"`
}

// ExtractedEntities is the structured view of a conversation that the model
// emits in a fenced json block.
type ExtractedEntities struct {
	Age            *int        `json:"age,omitempty"`
	Symptoms       []string    `json:"symptoms"`
	Duration       string      `json:"duration,omitempty"`
	Location       string      `json:"location,omitempty"`
	MedicalHistory []string    `json:"medicalHistory,omitempty"`
	Conditions     []Condition `json:"conditions"`
	ReadyToSearch  bool        `json:"readyToSearch"`
}

// ConditionNames returns the trimmed, non-blank condition names in mention
// order.
func (e ExtractedEntities) ConditionNames() []string {
	names := make([]string, 0, len(e.Conditions))
	for _, c := range e.Conditions {
		if n := strings.TrimSpace(c.Name); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// Searchable reports whether the extraction asks for a search and names at
// least one condition. A ready extraction with no conditions is not an
// error, just nothing to search for.
func (e ExtractedEntities) Searchable() bool {
	return e.ReadyToSearch && len(e.ConditionNames()) > 0
}

// IntPtr is a convenience for optional integer fields.
func IntPtr(v int) *int {
	return &v
}
