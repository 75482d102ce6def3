// Package constraints derives the tabu rules handed to the DAG
// structure learner from a variable-to-stage mapping.
package constraints

import (
	"sort"
	"strings"
)

// DefaultAtmosphericMarkers flags temperature, precipitation and radiation
// variables by substring.
var DefaultAtmosphericMarkers = []string{"tmean", "rain", "rad"}

// #region types
// Edge is a directed (From -> To) pair.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// StagedVariable pairs a variable with its stage level.
type StagedVariable struct {
	Level    int    `json:"level"`
	Variable string `json:"variable"`
}

// Set is the immutable output of one generation run.
type Set struct {
	// Edges lists every forbidden edge once, sorted by (From, To).
	Edges []Edge `json:"tabu_edges"`
	// TabuChild holds the earliest-stage variables; they never receive an edge.
	TabuChild []string `json:"tabu_child"`
	// TabuParent is always empty; the learner still expects the argument.
	TabuParent []string         `json:"tabu_parent"`
	Variables  []string         `json:"variables"`
	Staged     []StagedVariable `json:"staged"`

	forbidden map[Edge]struct{}
}

// #endregion types

// #region generator
// Generator builds constraint sets. Markers decide which variables are
// atmospheric.
type Generator struct {
	Markers []string
}

// NewGenerator returns a generator using markers, or the defaults if none.
func NewGenerator(markers ...string) *Generator {
	if len(markers) == 0 {
		markers = DefaultAtmosphericMarkers
	}
	return &Generator{Markers: markers}
}

// Generate derives constraints with the default atmospheric markers.
func Generate(m StageMap) Set {
	return NewGenerator().Generate(m)
}

// IsAtmospheric reports whether name contains any marker.
func (g *Generator) IsAtmospheric(name string) bool {
	for _, marker := range g.Markers {
		if marker != "" && strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

// Generate derives the forbidden edges and roles for m. An empty mapping
// yields an empty set.
func (g *Generator) Generate(m StageMap) Set {
	staged := sortStaged(m)
	set := Set{
		Edges:      []Edge{},
		TabuChild:  []string{},
		TabuParent: []string{},
		Variables:  make([]string, 0, len(m)),
		Staged:     staged,
		forbidden:  make(map[Edge]struct{}),
	}
	if len(staged) == 0 {
		return set
	}

	for name := range m {
		set.Variables = append(set.Variables, name)
	}
	sort.Strings(set.Variables)

	// staged is sorted by level, so the minimum level leads
	minLevel := staged[0].Level
	for _, s := range staged {
		if s.Level == minLevel {
			set.TabuChild = append(set.TabuChild, s.Variable)
		}
	}

	// temporal rules: an edge may only point exactly one stage forward
	for _, a := range staged {
		for _, b := range staged {
			if a.Variable == b.Variable {
				continue
			}
			if b.Level <= a.Level || b.Level > a.Level+1 {
				set.add(a.Variable, b.Variable)
			}
		}
	}

	// atmospheric rules: mutually isolated, and nothing points into them
	var atmospheric []string
	for _, name := range set.Variables {
		if g.IsAtmospheric(name) {
			atmospheric = append(atmospheric, name)
		}
	}
	for _, from := range set.Variables {
		for _, to := range atmospheric {
			if from != to {
				set.add(from, to)
			}
		}
	}

	set.Edges = make([]Edge, 0, len(set.forbidden))
	for e := range set.forbidden {
		set.Edges = append(set.Edges, e)
	}
	sort.Slice(set.Edges, func(i, j int) bool {
		if set.Edges[i].From != set.Edges[j].From {
			return set.Edges[i].From < set.Edges[j].From
		}
		return set.Edges[i].To < set.Edges[j].To
	})
	return set
}

// #endregion generator

// #region queries
// Forbids reports whether the edge from -> to is tabu.
func (s *Set) Forbids(from, to string) bool {
	if s.forbidden == nil {
		s.index()
	}
	_, ok := s.forbidden[Edge{From: from, To: to}]
	return ok
}

// Allowed returns every non-self edge the set does not forbid, sorted.
func (s *Set) Allowed() []Edge {
	var out []Edge
	for _, from := range s.Variables {
		for _, to := range s.Variables {
			if from != to && !s.Forbids(from, to) {
				out = append(out, Edge{From: from, To: to})
			}
		}
	}
	return out
}

func (s *Set) add(from, to string) {
	s.forbidden[Edge{From: from, To: to}] = struct{}{}
}

// index rebuilds the lookup after the set was decoded from storage.
func (s *Set) index() {
	s.forbidden = make(map[Edge]struct{}, len(s.Edges))
	for _, e := range s.Edges {
		s.forbidden[e] = struct{}{}
	}
}

// #endregion queries

func sortStaged(m StageMap) []StagedVariable {
	staged := make([]StagedVariable, 0, len(m))
	for name, level := range m {
		staged = append(staged, StagedVariable{Level: level, Variable: name})
	}
	sort.Slice(staged, func(i, j int) bool {
		if staged[i].Level != staged[j].Level {
			return staged[i].Level < staged[j].Level
		}
		return staged[i].Variable < staged[j].Variable
	})
	return staged
}
