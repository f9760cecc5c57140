package ipgen

import (
	"fmt"
	"strings"
)

// Levels groups the templates by dependency depth. Level 0 depends on
// nothing; inside a level templates keep their declaration order.
func (r *Registry) Levels() ([][]string, error) {
	depth := make(map[string]int, len(r.templates))
	var visit func(name string, stack map[string]bool) (int, error)
	visit = func(name string, stack map[string]bool) (int, error) {
		if d, ok := depth[name]; ok {
			return d, nil
		}
		if stack[name] {
			return 0, fmt.Errorf("dependency cycle through template %s", name)
		}
		stack[name] = true
		defer delete(stack, name)

		t := r.templates[r.index[name]]
		d := 0
		for _, dep := range t.DependsOn {
			if _, ok := r.index[dep]; !ok {
				return 0, fmt.Errorf("template %s depends on unknown template %s", name, dep)
			}
			dd, err := visit(dep, stack)
			if err != nil {
				return 0, err
			}
			if dd+1 > d {
				d = dd + 1
			}
		}
		depth[name] = d
		return d, nil
	}

	var levels [][]string
	for _, t := range r.templates {
		d, err := visit(t.Name, make(map[string]bool))
		if err != nil {
			return nil, err
		}
		for len(levels) <= d {
			levels = append(levels, nil)
		}
	}
	for _, t := range r.templates {
		d := depth[t.Name]
		levels[d] = append(levels[d], t.Name)
	}
	return levels, nil
}

// Ordered returns the templates flattened in dependency order
func (r *Registry) Ordered() ([]Template, error) {
	levels, err := r.Levels()
	if err != nil {
		return nil, err
	}
	out := make([]Template, 0, len(r.templates))
	for _, level := range levels {
		for _, name := range level {
			out = append(out, r.templates[r.index[name]])
		}
	}
	return out, nil
}

// FormatLevels renders the dependency levels for verbose output
func FormatLevels(levels [][]string) string {
	var b strings.Builder
	for i, level := range levels {
		b.WriteString(fmt.Sprintf("  level %d (%d): %s\n", i, len(level), strings.Join(level, ", ")))
	}
	return b.String()
}
