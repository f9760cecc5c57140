package facts

import "strings"

// FilterTablesByInstances returns a new Tables object containing only the
// given instances, their parameters, bindings and driven nets, and the IP
// records of their modules.
func FilterTablesByInstances(tables Tables, instances map[string]bool) Tables {
	if len(instances) == 0 {
		return emptyTables()
	}
	out := emptyTables()

	modules := make(map[string]bool)
	for _, row := range tables.Instances {
		if instances[row.Name] {
			out.Instances = append(out.Instances, row)
			modules[row.Module] = true
		}
	}
	for _, row := range tables.Params {
		if instances[row.Instance] {
			out.Params = append(out.Params, row)
		}
	}
	nets := make(map[string]bool)
	for _, row := range tables.Bindings {
		if instances[row.Instance] {
			out.Bindings = append(out.Bindings, row)
			if row.Net != "" {
				nets[row.Net] = true
			}
		}
	}
	for _, row := range tables.Nets {
		if nets[row.Name] {
			out.Nets = append(out.Nets, row)
		}
	}
	for _, row := range tables.Drivers {
		inst, _, found := strings.Cut(row.Driver, ".")
		if found && instances[inst] {
			out.Drivers = append(out.Drivers, row)
		}
	}
	for _, row := range tables.IPInstances {
		if modules[row.Module] {
			out.IPInstances = append(out.IPInstances, row)
		}
	}
	for _, row := range tables.IPOptions {
		if modules[row.Module] {
			out.IPOptions = append(out.IPOptions, row)
		}
	}

	return out
}

// FilterDeltaByInstances returns a new Delta containing only rows for the
// specified instances.
func FilterDeltaByInstances(delta Delta, instances map[string]bool) Delta {
	if len(instances) == 0 {
		return Delta{
			Added:   emptyTables(),
			Removed: emptyTables(),
		}
	}
	return Delta{
		Added:   FilterTablesByInstances(delta.Added, instances),
		Removed: FilterTablesByInstances(delta.Removed, instances),
	}
}
