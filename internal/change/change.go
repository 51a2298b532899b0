// Package change computes and renders the diff between two reports for
// the same version: which items newly matched, broke, improved, or
// regressed, plus the Markdown comment body posted back to the forge.
package change

import "github.com/decomp-dev/reportcore/internal/report"

// Kind classifies one item's fuzzy-match-percent transition.
type Kind int

const (
	// KindIgnored marks a transition the classification table doesn't
	// surface in the rendered comment (e.g. unchanged, or both ends 0%).
	KindIgnored Kind = iota
	KindNewMatch
	KindBrokenMatch
	KindImprovement
	KindRegression
)

func (k Kind) String() string {
	switch k {
	case KindNewMatch:
		return "NewMatch"
	case KindBrokenMatch:
		return "BrokenMatch"
	case KindImprovement:
		return "Improvement"
	case KindRegression:
		return "Regression"
	default:
		return "Ignored"
	}
}

// classify applies the fixed classification table to one item's
// from/to fuzzy-match percentages.
func classify(from, to float64) Kind {
	switch {
	case to == 100:
		return KindNewMatch
	case from == 100:
		return KindBrokenMatch
	case to > from:
		return KindImprovement
	case from > 0 && to < from:
		return KindRegression
	default:
		return KindIgnored
	}
}

// ItemChange is one row of the rendered diff: a single section or
// function inside a unit whose size/fuzzy-match summary changed.
type ItemChange struct {
	UnitName    string
	ItemName    string
	Kind        Kind
	FromSize    uint64
	ToSize      uint64
	FromPercent float64
	ToPercent   float64
}

// MatchedBytesDelta is the change in estimated matched bytes: each side's
// size scaled by its fuzzy-match percentage, then differenced. This is the
// "Bytes" column in the rendered table, and what rows sort by — not the
// raw item size delta, which a match-percent-only change (the common case)
// would otherwise report as zero.
func (c ItemChange) MatchedBytesDelta() int64 {
	from := int64(c.FromPercent / 100 * float64(c.FromSize))
	to := int64(c.ToPercent / 100 * float64(c.ToSize))
	return to - from
}

// Changes is the result of diffing two reports for one version: the
// top-level measures on each side (for the totals block) and every
// item whose transition the classification table surfaces.
type Changes struct {
	FromMeasures report.Measures
	ToMeasures   report.Measures
	Items        []ItemChange
}

// Compute diffs prev against curr. Either may be nil, representing "no
// report on that side" (every item in the other side's units is scored
// against a synthetic absent item with size 0, percent 0).
func Compute(prev, curr *report.Report) Changes {
	out := Changes{}
	if prev != nil {
		out.FromMeasures = prev.Measures
	}
	if curr != nil {
		out.ToMeasures = curr.Measures
	}

	prevUnits := indexUnitsByName(prev)
	currUnits := indexUnitsByName(curr)

	seen := map[string]bool{}
	for name, pu := range prevUnits {
		seen[name] = true
		cu := currUnits[name]
		out.Items = append(out.Items, diffUnit(name, pu, cu)...)
	}
	for name, cu := range currUnits {
		if seen[name] {
			continue
		}
		out.Items = append(out.Items, diffUnit(name, nil, cu)...)
	}
	return out
}

func indexUnitsByName(r *report.Report) map[string]*report.ReportUnit {
	out := map[string]*report.ReportUnit{}
	if r == nil {
		return out
	}
	for _, u := range r.Units {
		out[u.Name] = u
	}
	return out
}

// diffUnit diffs one unit's sections and functions. Either side may be
// nil, meaning the unit is wholly added or wholly removed.
func diffUnit(unitName string, prev, curr *report.ReportUnit) []ItemChange {
	var out []ItemChange
	out = append(out, diffItems(unitName, itemsOf(prev, true), itemsOf(curr, true))...)
	out = append(out, diffItems(unitName, itemsOf(prev, false), itemsOf(curr, false))...)
	return out
}

func itemsOf(u *report.ReportUnit, sections bool) []report.ReportItem {
	if u == nil {
		return nil
	}
	if sections {
		return u.Sections
	}
	return u.Functions
}

// diffItems matches items by name first, falling back to equal virtual
// address (when both sides carry metadata with HasVirtualAddr set), per
// the matching rule: exact name, else equal virtual address.
func diffItems(unitName string, prev, curr []report.ReportItem) []ItemChange {
	currByName := map[string]report.ReportItem{}
	currByAddr := map[uint64]report.ReportItem{}
	matchedCurr := map[string]bool{}
	for _, it := range curr {
		currByName[it.Name] = it
		if it.Metadata != nil && it.Metadata.HasVirtualAddr {
			currByAddr[it.Metadata.VirtualAddress] = it
		}
	}

	var out []ItemChange

	for _, p := range prev {
		c, ok := currByName[p.Name]
		if !ok && p.Metadata != nil && p.Metadata.HasVirtualAddr {
			c, ok = currByAddr[p.Metadata.VirtualAddress]
		}
		if ok {
			matchedCurr[c.Name] = true
			if p.Size == c.Size && p.FuzzyMatchPercent == c.FuzzyMatchPercent {
				continue
			}
			out = append(out, buildChange(unitName, displayName(c), p.Size, c.Size, p.FuzzyMatchPercent, c.FuzzyMatchPercent))
			continue
		}
		// Removed: no corresponding item in curr.
		out = append(out, buildChange(unitName, displayName(p), p.Size, 0, p.FuzzyMatchPercent, 0))
	}

	for _, c := range curr {
		if matchedCurr[c.Name] {
			continue
		}
		out = append(out, buildChange(unitName, displayName(c), 0, c.Size, 0, c.FuzzyMatchPercent))
	}

	return out
}

// displayName prefers an item's demangled name, when metadata carries one,
// over its raw symbol or section name.
func displayName(it report.ReportItem) string {
	if it.Metadata != nil && it.Metadata.DemangledName != "" {
		return it.Metadata.DemangledName
	}
	return it.Name
}

func buildChange(unitName, itemName string, fromSize, toSize uint64, fromPct, toPct float64) ItemChange {
	return ItemChange{
		UnitName:    unitName,
		ItemName:    itemName,
		Kind:        classify(fromPct, toPct),
		FromSize:    fromSize,
		ToSize:      toSize,
		FromPercent: fromPct,
		ToPercent:   toPct,
	}
}
