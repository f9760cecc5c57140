package facts

import "strconv"

// Delta captures added and removed fact rows between two snapshots.
type Delta struct {
	Added   Tables `json:"added"`
	Removed Tables `json:"removed"`
}

// ComputeDelta computes row-level additions and removals between two snapshots.
func ComputeDelta(prev, next Tables) Delta {
	return Delta{
		Added:   diffTables(prev, next),
		Removed: diffTables(next, prev),
	}
}

// Empty reports whether the snapshots were identical
func (d Delta) Empty() bool {
	for _, n := range d.Added.Counts() {
		if n > 0 {
			return false
		}
	}
	for _, n := range d.Removed.Counts() {
		if n > 0 {
			return false
		}
	}
	return true
}

func diffTables(from, to Tables) Tables {
	out := emptyTables()

	out.Domains = diffRows(from.Domains, to.Domains, func(r DomainRow) string {
		return r.Name + "|" + r.Clock + "|" + r.Reset + "|" + boolKey(r.External)
	})
	out.Nets = diffRows(from.Nets, to.Nets, func(r NetRow) string {
		return r.Name + "|" + strconv.Itoa(r.Width) + "|" + r.Domain + "|" + boolKey(r.Top) + "|" + r.Direction
	})
	out.Instances = diffRows(from.Instances, to.Instances, func(r InstanceRow) string {
		return r.Name + "|" + r.Module + "|" + r.Kind
	})
	out.Params = diffRows(from.Params, to.Params, func(r ParamRow) string {
		return r.Instance + "|" + r.Name + "|" + r.Value
	})
	out.Bindings = diffRows(from.Bindings, to.Bindings, func(r BindingRow) string {
		return r.Instance + "|" + r.Port + "|" + r.Direction + "|" + r.Net + "|" + r.PortDomain + "|" + r.NetDomain +
			"|" + boolKey(r.Inverted) + "|" + r.Constant + "|" + boolKey(r.Open)
	})
	out.Drivers = diffRows(from.Drivers, to.Drivers, func(r DriverRow) string {
		return r.Net + "|" + r.Driver
	})
	out.Assigns = diffRows(from.Assigns, to.Assigns, func(r AssignRow) string {
		return r.Target + "|" + r.Source + "|" + r.TargetDomain + "|" + r.SourceDomain + "|" + boolKey(r.Inverted)
	})
	out.Crossings = diffRows(from.Crossings, to.Crossings, func(r CrossingRow) string {
		return r.Name + "|" + r.Kind + "|" + r.Target + "|" + r.ToDomain + "|" + strconv.Itoa(r.Stages)
	})
	out.CrossingSources = diffRows(from.CrossingSources, to.CrossingSources, func(r CrossingSourceRow) string {
		return r.Crossing + "|" + r.Net + "|" + r.Domain + "|" + boolKey(r.ActiveLow)
	})
	out.Constraints = diffRows(from.Constraints, to.Constraints, func(r ConstraintRow) string {
		return r.Net + "|" + strconv.FormatFloat(r.PeriodNS, 'g', -1, 64)
	})
	out.IPInstances = diffRows(from.IPInstances, to.IPInstances, func(r IPInstanceRow) string {
		return r.Module + "|" + r.Template + "|" + r.IPType + "|" + strconv.Itoa(r.Order)
	})
	out.IPOptions = diffRows(from.IPOptions, to.IPOptions, func(r IPOptionRow) string {
		return r.Module + "|" + r.Option + "|" + r.Value
	})

	return out
}

func diffRows[T any](from, to []T, key func(T) string) []T {
	fromSet := make(map[string]T, len(from))
	for _, row := range from {
		fromSet[key(row)] = row
	}
	var diff []T
	for _, row := range to {
		rowKey := key(row)
		if _, ok := fromSet[rowKey]; !ok {
			diff = append(diff, row)
		}
	}
	if diff == nil {
		diff = []T{}
	}
	return diff
}

func boolKey(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
