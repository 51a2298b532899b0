package report

import "fmt"

// Migrate maps an older numbered report layout to CurrentFormatVersion.
// It is the pure, store-agnostic function the persistence layer treats as
// a black box: called before the header/body split on every report whose
// stored data_version is behind current (see internal/store's startup
// migration pass).
func Migrate(r *Report) (*Report, error) {
	if r == nil {
		return nil, fmt.Errorf("report: migrate: nil report")
	}
	if r.FormatVersion < 0 {
		return nil, fmt.Errorf("report: migrate: invalid format_version %d", r.FormatVersion)
	}
	if r.FormatVersion > CurrentFormatVersion {
		return nil, fmt.Errorf("report: migrate: format_version %d is newer than supported %d", r.FormatVersion, CurrentFormatVersion)
	}

	out := r
	if out.FormatVersion < 2 {
		out = migrateV1ToV2(out)
	}
	if out.FormatVersion < 3 {
		out = migrateV2ToV3(out)
	}

	out.FormatVersion = CurrentFormatVersion
	out.Measures.RecomputePercentages()
	for _, c := range out.Categories {
		if c.Measures != nil {
			c.Measures.RecomputePercentages()
		}
	}
	ensureAllCategory(out)
	return out, nil
}

// migrateV1ToV2 accounts for the earliest layout, which only tracked a
// matched-bytes counter and conflated "matched" with "fully complete"
// (bit-exact). Reports at this version never populated *_complete; derive
// it as equal to *_matched, which is the original tool's own behavior —
// see original_source/src/models.rs's combine() for format_version 1.
func migrateV1ToV2(r *Report) *Report {
	if r.Measures.CodeBytesComplete == 0 {
		r.Measures.CodeBytesComplete = r.Measures.CodeBytesMatched
	}
	if r.Measures.DataBytesComplete == 0 {
		r.Measures.DataBytesComplete = r.Measures.DataBytesMatched
	}
	for _, u := range r.Units {
		if u.Measures == nil {
			continue
		}
		if u.Measures.CodeBytesComplete == 0 {
			u.Measures.CodeBytesComplete = u.Measures.CodeBytesMatched
		}
		if u.Measures.DataBytesComplete == 0 {
			u.Measures.DataBytesComplete = u.Measures.DataBytesMatched
		}
	}
	return r
}

// migrateV2ToV3 introduces per-unit free-form Metadata; version-2 reports
// never populated it, so normalize to a non-nil empty map so downstream
// code (canonical hashing, store inserts) never branches on nil.
func migrateV2ToV3(r *Report) *Report {
	for _, u := range r.Units {
		if u.Metadata == nil {
			u.Metadata = map[string]string{}
		}
	}
	return r
}

// ensureAllCategory guarantees the synthetic "all" category is present,
// backed by the report's top-level Measures — the authoritative totals
// view per the data model's category invariant.
func ensureAllCategory(r *Report) {
	for _, c := range r.Categories {
		if c.ID == AllCategoryID {
			return
		}
	}
	m := r.Measures
	r.Categories = append([]ReportCategory{{ID: AllCategoryID, Name: "All", Measures: &m}}, r.Categories...)
}

// VersionedReport pairs a recognized version name (e.g. a ROM/region code)
// with the single-version Report split out of a combined artifact.
type VersionedReport struct {
	Version string
	Report  *Report
}

// Split breaks a combined-artifact Report — one whose categories are
// actually per-version partitions — into one Report per version name. The
// ingestion pipeline calls this only when an artifact's mapped version
// string is exactly "combined" (case-insensitive); see internal/ingest.
//
// A combined report's categories use "<version>:<name>" ids (the
// convention the original multi-version build tooling emits); any
// category without that separator is dropped rather than guessed at.
func Split(r *Report) ([]VersionedReport, error) {
	if r == nil {
		return nil, fmt.Errorf("report: split: nil report")
	}

	byVersion := map[string]*Report{}
	var order []string

	for _, c := range r.Categories {
		version, name, ok := splitCategoryID(c.ID)
		if !ok {
			continue
		}
		vr, exists := byVersion[version]
		if !exists {
			vr = &Report{FormatVersion: r.FormatVersion}
			byVersion[version] = vr
			order = append(order, version)
		}
		cc := c
		cc.ID = name
		vr.Categories = append(vr.Categories, cc)
	}

	// Units referenced by a version's categories are not separately
	// tagged in the combined artifact; a combined report's units already
	// carry the version in their Metadata (set by the upstream build),
	// so partition by that instead of by category membership.
	for _, u := range r.Units {
		version := u.Metadata["version"]
		if version == "" {
			continue
		}
		vr, exists := byVersion[version]
		if !exists {
			vr = &Report{FormatVersion: r.FormatVersion}
			byVersion[version] = vr
			order = append(order, version)
		}
		vr.Units = append(vr.Units, u)
	}

	out := make([]VersionedReport, 0, len(order))
	for _, v := range order {
		vr := byVersion[v]
		for _, c := range vr.Categories {
			if c.ID == AllCategoryID && c.Measures != nil {
				vr.Measures = *c.Measures
			}
		}
		ensureAllCategory(vr)
		out = append(out, VersionedReport{Version: v, Report: vr})
	}
	return out, nil
}

func splitCategoryID(id string) (version, name string, ok bool) {
	for i := 0; i < len(id); i++ {
		if id[i] == ':' {
			return id[:i], id[i+1:], true
		}
	}
	return "", "", false
}
