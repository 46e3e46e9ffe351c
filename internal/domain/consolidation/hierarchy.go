package consolidation

import (
	"sort"

	"github.com/google/uuid"
)

// HierarchyGraph is a read-only arena over one org's units: nodes indexed by
// position with explicit parent indices, so cycle detection never depends on
// pointer identity. It owns traversal only and never mutates units.
type HierarchyGraph struct {
	units   []*OrgUnit
	index   map[uuid.UUID]int // unit id -> arena position
	parents []int             // arena position -> parent position, -1 for roots/orphans
	childs  [][]int           // arena position -> child positions, creation order
}

// NewHierarchyGraph builds the arena from a flat unit list. Construction
// does not validate; call Validate before trusting traversal results.
func NewHierarchyGraph(units []*OrgUnit) *HierarchyGraph {
	g := &HierarchyGraph{
		units:   units,
		index:   make(map[uuid.UUID]int, len(units)),
		parents: make([]int, len(units)),
		childs:  make([][]int, len(units)),
	}
	for i, u := range units {
		g.index[u.ID] = i
	}
	for i, u := range units {
		g.parents[i] = -1
		if u.ParentID == nil {
			continue
		}
		if pi, ok := g.index[*u.ParentID]; ok {
			g.parents[i] = pi
			g.childs[pi] = append(g.childs[pi], i)
		}
	}
	return g
}

// Validate checks that every non-nil parent reference resolves to a loaded
// unit and that the parent graph is a forest. The walk is a bounded DFS over
// arena indices; a node revisited on the current path signals a cycle.
func (g *HierarchyGraph) Validate() error {
	for i, u := range g.units {
		if u.ParentID != nil && g.parents[i] == -1 {
			return NewOrphanError(u.Code)
		}
	}

	const (
		unvisited = 0
		onPath    = 1
		done      = 2
	)
	state := make([]int, len(g.units))
	for start := range g.units {
		if state[start] != unvisited {
			continue
		}
		// Walk parent edges from each node; bounded by the arena size.
		path := make([]int, 0, 8)
		i := start
		for i != -1 && state[i] == unvisited {
			state[i] = onPath
			path = append(path, i)
			i = g.parents[i]
		}
		if i != -1 && state[i] == onPath {
			return NewCycleError(g.units[i].Code)
		}
		for _, p := range path {
			state[p] = done
		}
	}
	return nil
}

// ResolveScope returns the closed set of unit ids included in a run. With no
// requested ids the full forest is in scope. When includeDescendants is set,
// each requested unit is unioned with everything reachable via child edges.
// Inactive units are excluded. An empty result is ErrScopeEmpty.
func (g *HierarchyGraph) ResolveScope(orgUnitIDs []uuid.UUID, includeDescendants bool) ([]uuid.UUID, error) {
	include := make(map[int]bool, len(g.units))
	if len(orgUnitIDs) == 0 {
		for i := range g.units {
			include[i] = true
		}
	} else {
		for _, id := range orgUnitIDs {
			i, ok := g.index[id]
			if !ok {
				continue
			}
			include[i] = true
			if includeDescendants {
				g.collectDescendants(i, include)
			}
		}
	}

	out := make([]uuid.UUID, 0, len(include))
	for i := range include {
		if g.units[i].Active {
			out = append(out, g.units[i].ID)
		}
	}
	if len(out) == 0 {
		return nil, ErrScopeEmpty
	}
	sort.Slice(out, func(a, b int) bool { return g.index[out[a]] < g.index[out[b]] })
	return out, nil
}

func (g *HierarchyGraph) collectDescendants(i int, into map[int]bool) {
	for _, c := range g.childs[i] {
		if !into[c] {
			into[c] = true
			g.collectDescendants(c, into)
		}
	}
}

// SubtreeOf returns the subtree rooted at unitID in post-order: every child
// appears before its parent, which is the fold order the rollup needs.
func (g *HierarchyGraph) SubtreeOf(unitID uuid.UUID) []uuid.UUID {
	i, ok := g.index[unitID]
	if !ok {
		return nil
	}
	out := make([]uuid.UUID, 0, 8)
	g.postOrder(i, &out)
	return out
}

// PostOrder returns the given scope in post-order. Units outside the scope
// are skipped but their in-scope descendants still precede in-scope
// ancestors.
func (g *HierarchyGraph) PostOrder(scope []uuid.UUID) []uuid.UUID {
	inScope := make(map[int]bool, len(scope))
	for _, id := range scope {
		if i, ok := g.index[id]; ok {
			inScope[i] = true
		}
	}
	out := make([]uuid.UUID, 0, len(scope))
	seen := make(map[int]bool, len(scope))
	for i := range g.units {
		if g.parents[i] == -1 || !inScope[g.parents[i]] {
			g.postOrderFiltered(i, inScope, seen, &out)
		}
	}
	return out
}

func (g *HierarchyGraph) postOrder(i int, out *[]uuid.UUID) {
	for _, c := range g.childs[i] {
		g.postOrder(c, out)
	}
	*out = append(*out, g.units[i].ID)
}

func (g *HierarchyGraph) postOrderFiltered(i int, inScope, seen map[int]bool, out *[]uuid.UUID) {
	if seen[i] {
		return
	}
	seen[i] = true
	for _, c := range g.childs[i] {
		g.postOrderFiltered(c, inScope, seen, out)
	}
	if inScope[i] {
		*out = append(*out, g.units[i].ID)
	}
}

// Children returns the ids of a unit's direct children.
func (g *HierarchyGraph) Children(unitID uuid.UUID) []uuid.UUID {
	i, ok := g.index[unitID]
	if !ok {
		return nil
	}
	out := make([]uuid.UUID, 0, len(g.childs[i]))
	for _, c := range g.childs[i] {
		out = append(out, g.units[c].ID)
	}
	return out
}

// Unit returns the unit for an id, if loaded.
func (g *HierarchyGraph) Unit(unitID uuid.UUID) (*OrgUnit, bool) {
	i, ok := g.index[unitID]
	if !ok {
		return nil, false
	}
	return g.units[i], true
}

// Len returns the number of loaded units.
func (g *HierarchyGraph) Len() int {
	return len(g.units)
}
