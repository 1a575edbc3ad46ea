package graph

import (
	"fmt"
	"sort"
)

// Graph is the validated dependency structure over a set of service specs.
// It is a pure planning artifact; building it has no side effects.
type Graph struct {
	Specs map[string]*Spec
	// Order is a topological ordering: every service appears after all of
	// its dependencies. Ties are broken by name for determinism.
	Order []string

	dependents map[string][]string // reverse edges
}

// New validates specs, normalizes defaults, and computes a topological
// order. It returns ErrInvalidSpec for malformed declarations (duplicate
// or unknown names) and ErrCyclicDependency when the graph has a cycle.
func New(specs []Spec) (*Graph, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no services declared", ErrInvalidSpec)
	}
	g := &Graph{
		Specs:      make(map[string]*Spec, len(specs)),
		dependents: make(map[string][]string),
	}
	for i := range specs {
		s := specs[i]
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := g.Specs[s.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate service %s", ErrInvalidSpec, s.Name)
		}
		s.Normalize()
		g.Specs[s.Name] = &s
	}
	for name, s := range g.Specs {
		for _, dep := range s.DependsOn {
			if _, ok := g.Specs[dep]; !ok {
				return nil, fmt.Errorf("%w: service %s depends on unknown service %s", ErrInvalidSpec, name, dep)
			}
			g.dependents[dep] = append(g.dependents[dep], name)
		}
	}
	order, err := g.topoSort()
	if err != nil {
		return nil, err
	}
	g.Order = order
	return g, nil
}

// topoSort is Kahn's algorithm with lexicographic tie-breaking.
func (g *Graph) topoSort() ([]string, error) {
	indeg := make(map[string]int, len(g.Specs))
	for name, s := range g.Specs {
		indeg[name] = len(s.DependsOn)
	}
	var ready []string
	for name, d := range indeg {
		if d == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)
	order := make([]string, 0, len(g.Specs))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		deps := append([]string(nil), g.dependents[n]...)
		sort.Strings(deps)
		for _, m := range deps {
			indeg[m]--
			if indeg[m] == 0 {
				ready = insertSorted(ready, m)
			}
		}
	}
	if len(order) != len(g.Specs) {
		var cyclic []string
		for name, d := range indeg {
			if d > 0 {
				cyclic = append(cyclic, name)
			}
		}
		sort.Strings(cyclic)
		return nil, fmt.Errorf("%w: involving %v", ErrCyclicDependency, cyclic)
	}
	return order, nil
}

func insertSorted(ss []string, s string) []string {
	i := sort.SearchStrings(ss, s)
	ss = append(ss, "")
	copy(ss[i+1:], ss[i:])
	ss[i] = s
	return ss
}

// Dependents returns the direct dependents of name.
func (g *Graph) Dependents(name string) []string {
	out := append([]string(nil), g.dependents[name]...)
	sort.Strings(out)
	return out
}

// TransitiveDependents returns every service that directly or indirectly
// depends on name, sorted by name.
func (g *Graph) TransitiveDependents(name string) []string {
	seen := make(map[string]bool)
	var walk func(n string)
	walk = func(n string) {
		for _, d := range g.dependents[n] {
			if !seen[d] {
				seen[d] = true
				walk(d)
			}
		}
	}
	walk(name)
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Roots returns services with no dependencies, sorted by name.
func (g *Graph) Roots() []string {
	var out []string
	for name, s := range g.Specs {
		if len(s.DependsOn) == 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
