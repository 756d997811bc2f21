// Package layout arranges a site's monitors into the two dashboard columns.
package layout

import (
	"sort"

	"sitemonitor/internal/database"
)

// Layout partitions monitors into two columns.
//
// Without a preference for a column, the monitors are ordered by id and split
// at n/2: the first half goes to column one, the rest to column two. A column
// with a stored ordering is replaced entirely by the monitors named in that
// ordering. Entries that no longer match a monitor of the site are skipped.
func Layout(monitors []database.Monitor, pref *database.PreferenceData) (col1, col2 []database.Monitor) {
	sorted := make([]database.Monitor, len(monitors))
	copy(sorted, monitors)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	half := len(sorted) / 2
	col1 = append([]database.Monitor{}, sorted[:half]...)
	col2 = append([]database.Monitor{}, sorted[half:]...)

	if pref == nil {
		return col1, col2
	}

	byEndPoint := make(map[string]database.Monitor, len(sorted))
	for _, m := range sorted {
		if _, dup := byEndPoint[m.EndPoint]; !dup {
			byEndPoint[m.EndPoint] = m
		}
	}

	if pref.Col1 != nil {
		col1 = ordered(byEndPoint, pref.Col1)
	}
	if pref.Col2 != nil {
		col2 = ordered(byEndPoint, pref.Col2)
	}
	return col1, col2
}

func ordered(byEndPoint map[string]database.Monitor, order []string) []database.Monitor {
	out := make([]database.Monitor, 0, len(order))
	for _, endPoint := range order {
		if m, ok := byEndPoint[endPoint]; ok {
			out = append(out, m)
		}
	}
	return out
}

// Stale returns the entries of order that name no monitor in monitors.
func Stale(monitors []database.Monitor, order []string) []string {
	known := make(map[string]bool, len(monitors))
	for _, m := range monitors {
		known[m.EndPoint] = true
	}
	var stale []string
	for _, endPoint := range order {
		if !known[endPoint] {
			stale = append(stale, endPoint)
		}
	}
	return stale
}

// Prune drops stale entries from both columns. It reports whether anything
// was removed. Nil columns stay nil.
func Prune(monitors []database.Monitor, pref *database.PreferenceData) bool {
	known := make(map[string]bool, len(monitors))
	for _, m := range monitors {
		known[m.EndPoint] = true
	}

	changed := false
	prune := func(col []string) []string {
		if col == nil {
			return nil
		}
		kept := make([]string, 0, len(col))
		for _, endPoint := range col {
			if known[endPoint] {
				kept = append(kept, endPoint)
			} else {
				changed = true
			}
		}
		return kept
	}
	pref.Col1 = prune(pref.Col1)
	pref.Col2 = prune(pref.Col2)
	return changed
}
