// Package report holds the in-memory shapes for decompilation-progress
// reports: Measures, ReportCategory, ReportItem, ReportUnit, and Report
// itself, plus the pure migration functions the store treats as a black
// box (Migrate, Split).
package report

import "encoding/hex"

// CurrentFormatVersion is the format_version a freshly decoded or migrated
// Report always carries. Migrate maps any older numbered layout
// up to this value.
const CurrentFormatVersion = 3

// Measures is a fixed record of numeric counters, summable by adding counts
// and recomputing percentages — never by averaging percentages directly.
type Measures struct {
	CodeBytesTotal    uint64
	CodeBytesMatched  uint64
	CodeBytesComplete uint64
	DataBytesTotal    uint64
	DataBytesMatched  uint64
	DataBytesComplete uint64
	FunctionsTotal    uint64
	FunctionsMatched  uint64
	UnitsTotal        uint64
	UnitsComplete     uint64

	// Derived. Always recomputed by RecomputePercentages after any
	// arithmetic combination; never set directly and never compared for
	// equality independent of the counters that produced them.
	CodePercent     float64
	CodeCompletePct float64
	DataPercent     float64
	DataCompletePct float64
	FunctionPercent float64
	UnitPercent     float64
}

// RecomputePercentages derives the percentage fields from the counters.
// Call this after any combination of Measures — Combine already does.
func (m *Measures) RecomputePercentages() {
	m.CodePercent = percent(m.CodeBytesMatched, m.CodeBytesTotal)
	m.CodeCompletePct = percent(m.CodeBytesComplete, m.CodeBytesTotal)
	m.DataPercent = percent(m.DataBytesMatched, m.DataBytesTotal)
	m.DataCompletePct = percent(m.DataBytesComplete, m.DataBytesTotal)
	m.FunctionPercent = percent(m.FunctionsMatched, m.FunctionsTotal)
	m.UnitPercent = percent(m.UnitsComplete, m.UnitsTotal)
}

func percent(part, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// Combine adds two Measures' counters and recomputes percentages from the
// sums. Used to build category or top-level aggregates from parts.
func Combine(a, b Measures) Measures {
	out := Measures{
		CodeBytesTotal:    a.CodeBytesTotal + b.CodeBytesTotal,
		CodeBytesMatched:  a.CodeBytesMatched + b.CodeBytesMatched,
		CodeBytesComplete: a.CodeBytesComplete + b.CodeBytesComplete,
		DataBytesTotal:    a.DataBytesTotal + b.DataBytesTotal,
		DataBytesMatched:  a.DataBytesMatched + b.DataBytesMatched,
		DataBytesComplete: a.DataBytesComplete + b.DataBytesComplete,
		FunctionsTotal:    a.FunctionsTotal + b.FunctionsTotal,
		FunctionsMatched:  a.FunctionsMatched + b.FunctionsMatched,
		UnitsTotal:        a.UnitsTotal + b.UnitsTotal,
		UnitsComplete:     a.UnitsComplete + b.UnitsComplete,
	}
	out.RecomputePercentages()
	return out
}

// ReportCategory is an orthogonal partition of the report. The synthetic
// ID "all" denotes the top-level aggregate view.
type ReportCategory struct {
	ID       string
	Name     string
	Measures *Measures
}

// AllCategoryID is the synthetic category id for the top-level aggregate.
const AllCategoryID = "all"

// ReportItemMetadata carries optional per-item detail. Fields are opaque
// passthrough where the core does not interpret them (Language, Categories)
// per the supplemented original_source decoder.
type ReportItemMetadata struct {
	DemangledName  string
	VirtualAddress uint64
	HasVirtualAddr bool
	SourcePath     string
	Language       string
	Categories     []string
}

// ReportItem is a named, sized entry (a section or function) inside a unit.
type ReportItem struct {
	Name              string
	Size              uint64
	FuzzyMatchPercent float64
	Metadata          *ReportItemMetadata
}

// UnitKey is the 32-byte BLAKE3 hash of a unit's canonical serialized bytes.
// Two units with equal canonical bytes always produce equal keys.
type UnitKey [32]byte

func (k UnitKey) String() string { return hex.EncodeToString(k[:]) }

// ParseUnitKey decodes a hex-encoded unit key, as stored in report_units.id.
func ParseUnitKey(s string) (UnitKey, error) {
	var k UnitKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, err
	}
	if len(b) != len(k) {
		return k, errInvalidKeyLength(len(b))
	}
	copy(k[:], b)
	return k, nil
}

type errInvalidKeyLength int

func (e errInvalidKeyLength) Error() string {
	return "report: invalid unit key length"
}

// ReportUnit is a translation-unit-sized grouping: an ordered list of
// sections, an ordered list of functions, optional measures, and free-form
// metadata. Units are content-addressed — see Key.
type ReportUnit struct {
	Name      string
	Measures  *Measures
	Sections  []ReportItem
	Functions []ReportItem
	Metadata  map[string]string
}

// Report is a single report: its format version, top-level measures, the
// ordered list of unit bodies, and its categories. This is the full
// in-memory shape used by migration, diffing, and insertion; Header (in
// the store package) is the lighter key-only shape used for reads that
// haven't upgraded to full bodies yet. See DESIGN.md for why these are
// modeled as two separate concrete types rather than one generic type
// parameterized over the unit slot.
type Report struct {
	FormatVersion int32
	Measures      Measures
	Categories    []ReportCategory
	Units         []*ReportUnit
}
