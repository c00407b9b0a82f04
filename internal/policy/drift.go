package policy

import (
	"fmt"
	"sort"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// TransitionEdge is one legal from→to hop in the lifecycle graph.
type TransitionEdge struct {
	FromState domain.TicketState `json:"from_state"`
	ToState   domain.TicketState `json:"to_state"`
}

func (e TransitionEdge) String() string {
	return fmt.Sprintf("%s->%s", e.FromState, e.ToState)
}

// DriftReport is the outcome of comparing the catalog's implied
// transition graph against the datastore's own legality constraint.
// Any populated slice means the two sources of truth disagree and the
// service must report unhealthy.
type DriftReport struct {
	MissingEdges     []TransitionEdge `json:"missing_edges"`
	ExtraEdges       []TransitionEdge `json:"extra_edges"`
	OverrideOverlaps []TransitionEdge `json:"override_overlaps"`
}

// Healthy reports whether the graphs match exactly.
func (r DriftReport) Healthy() bool {
	return len(r.MissingEdges) == 0 && len(r.ExtraEdges) == 0 && len(r.OverrideOverlaps) == 0
}

// ContractEdges derives the transition graph implied by the catalog,
// split into normal and override edge sets. Tools without a declared
// source set or resulting state contribute no edges.
func ContractEdges() (normal, override map[TransitionEdge][]string) {
	return contractEdgesFor(CatalogPolicies())
}

// CatalogPolicies returns every catalog entry.
func CatalogPolicies() []ToolPolicy {
	entries := make([]ToolPolicy, 0, len(catalog))
	for _, entry := range catalog {
		entries = append(entries, entry)
	}
	return entries
}

func contractEdgesFor(entries []ToolPolicy) (normal, override map[TransitionEdge][]string) {
	normal = make(map[TransitionEdge][]string)
	override = make(map[TransitionEdge][]string)
	for _, entry := range entries {
		if !entry.Mutating || entry.AllowedFromStates == nil || entry.ResultingState == "" {
			continue
		}
		target := normal
		if entry.Override {
			target = override
		}
		for _, from := range entry.AllowedFromStates {
			edge := TransitionEdge{FromState: from, ToState: entry.ResultingState}
			target[edge] = append(target[edge], entry.ToolName)
		}
	}
	return normal, override
}

// DetectDrift compares the catalog graph with the datastore's edge
// set. The datastore must carry exactly the union of normal and
// override edges; an override edge that duplicates a normal tool's
// from→to pair is reported even when the datastore agrees, because the
// override tool is silently shadowing a normal path.
func DetectDrift(storeEdges []TransitionEdge) DriftReport {
	return DetectDriftFor(CatalogPolicies(), storeEdges)
}

// DetectDriftFor runs the comparison against an explicit policy set.
func DetectDriftFor(entries []ToolPolicy, storeEdges []TransitionEdge) DriftReport {
	normal, override := contractEdgesFor(entries)

	contract := make(map[TransitionEdge]struct{}, len(normal)+len(override))
	for edge := range normal {
		contract[edge] = struct{}{}
	}
	for edge := range override {
		contract[edge] = struct{}{}
	}

	store := make(map[TransitionEdge]struct{}, len(storeEdges))
	for _, edge := range storeEdges {
		store[edge] = struct{}{}
	}

	var report DriftReport
	for edge := range contract {
		if _, ok := store[edge]; !ok {
			report.MissingEdges = append(report.MissingEdges, edge)
		}
	}
	for _, edge := range storeEdges {
		if _, ok := contract[edge]; !ok {
			report.ExtraEdges = append(report.ExtraEdges, edge)
		}
	}
	for edge := range override {
		if _, ok := normal[edge]; ok {
			report.OverrideOverlaps = append(report.OverrideOverlaps, edge)
		}
	}

	sortEdges(report.MissingEdges)
	sortEdges(report.ExtraEdges)
	sortEdges(report.OverrideOverlaps)
	return report
}

func sortEdges(edges []TransitionEdge) {
	sort.Slice(edges, func(i, j int) bool {
		return edges[i].String() < edges[j].String()
	})
}
