package catalog

import (
	"fmt"
)

// Graph is an ordered set of resource descriptors.
type Graph struct {
	resources []*Resource
	byName    map[string]*Resource
}

// New builds a graph. Names must be unique and non-empty.
func New(resources ...*Resource) (*Graph, error) {
	g := &Graph{byName: make(map[string]*Resource, len(resources))}
	for _, r := range resources {
		if r == nil || r.Name == "" {
			return nil, fmt.Errorf("catalog: resource without a name")
		}
		if _, dup := g.byName[r.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate resource %q", r.Name)
		}
		g.byName[r.Name] = r
		g.resources = append(g.resources, r)
	}
	return g, nil
}

// Find looks a resource up by name.
func (g *Graph) Find(name string) (*Resource, bool) {
	r, ok := g.byName[name]
	return r, ok
}

// Resources returns every descriptor in declaration order.
func (g *Graph) Resources() []*Resource {
	out := make([]*Resource, len(g.resources))
	copy(out, g.resources)
	return out
}

// Roots returns the descriptors that start a traversal.
func (g *Graph) Roots() []*Resource {
	var roots []*Resource
	for _, r := range g.resources {
		if !r.IsChild {
			roots = append(roots, r)
		}
	}
	return roots
}

// Validate checks graph integrity:
//   - every declared child resolves and is marked IsChild
//   - children of children are only the variant inventory relationship
//   - variants declared anywhere require the variant inventory resource
func (g *Graph) Validate() error {
	for _, r := range g.resources {
		for _, name := range r.Children {
			child, ok := g.byName[name]
			if !ok {
				return fmt.Errorf("%w: %q declared as child of %q", ErrUnknownResource, name, r.Name)
			}
			if !child.IsChild {
				return fmt.Errorf("catalog: %q is a child of %q but not marked IsChild", name, r.Name)
			}
			if r.IsChild && !(r.Name == Variants && name == VariantInventoryRecords) {
				return fmt.Errorf("catalog: nesting %q under child %q exceeds supported depth", name, r.Name)
			}
		}
	}
	if _, ok := g.byName[Variants]; ok {
		if _, ok := g.byName[VariantInventoryRecords]; !ok {
			return fmt.Errorf("%w: %q is required when %q is declared", ErrUnknownResource, VariantInventoryRecords, Variants)
		}
	}
	return nil
}
