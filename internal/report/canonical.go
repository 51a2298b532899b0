package report

import (
	"github.com/decomp-dev/reportcore/internal/report/pb"
	"lukechampine.com/blake3"
)

// CanonicalBytes returns u's canonical serialized form — the exact bytes
// whose BLAKE3 hash is the unit's content-address key. Map metadata is
// serialized in sorted-key order so equal units always produce identical
// bytes regardless of how the map was built.
func CanonicalBytes(u *ReportUnit) []byte {
	return pb.AppendUnit(nil, toPBUnit(u))
}

// Key computes u's content-address key: the 32-byte BLAKE3 hash of
// CanonicalBytes(u).
func Key(u *ReportUnit) UnitKey {
	return UnitKey(blake3.Sum256(CanonicalBytes(u)))
}

func toPBMeasures(m *Measures) *pb.Measures {
	if m == nil {
		return nil
	}
	return &pb.Measures{
		CodeTotal: m.CodeBytesTotal, CodeMatched: m.CodeBytesMatched, CodeComplete: m.CodeBytesComplete,
		DataTotal: m.DataBytesTotal, DataMatched: m.DataBytesMatched, DataComplete: m.DataBytesComplete,
		FuncTotal: m.FunctionsTotal, FuncMatched: m.FunctionsMatched,
		UnitTotal: m.UnitsTotal, UnitComplete: m.UnitsComplete,
	}
}

func fromPBMeasures(m pb.Measures) Measures {
	out := Measures{
		CodeBytesTotal: m.CodeTotal, CodeBytesMatched: m.CodeMatched, CodeBytesComplete: m.CodeComplete,
		DataBytesTotal: m.DataTotal, DataBytesMatched: m.DataMatched, DataBytesComplete: m.DataComplete,
		FunctionsTotal: m.FuncTotal, FunctionsMatched: m.FuncMatched,
		UnitsTotal: m.UnitTotal, UnitsComplete: m.UnitComplete,
	}
	out.RecomputePercentages()
	return out
}

func toPBItemMetadata(m *ReportItemMetadata) *pb.ItemMetadata {
	if m == nil {
		return nil
	}
	return &pb.ItemMetadata{
		DemangledName:  m.DemangledName,
		VirtualAddress: m.VirtualAddress,
		HasVirtualAddr: m.HasVirtualAddr,
		SourcePath:     m.SourcePath,
		Language:       m.Language,
		Categories:     m.Categories,
	}
}

func fromPBItemMetadata(m *pb.ItemMetadata) *ReportItemMetadata {
	if m == nil {
		return nil
	}
	return &ReportItemMetadata{
		DemangledName:  m.DemangledName,
		VirtualAddress: m.VirtualAddress,
		HasVirtualAddr: m.HasVirtualAddr,
		SourcePath:     m.SourcePath,
		Language:       m.Language,
		Categories:     m.Categories,
	}
}

func toPBItem(it ReportItem) pb.Item {
	return pb.Item{
		Name:              it.Name,
		Size:              it.Size,
		FuzzyMatchPercent: it.FuzzyMatchPercent,
		Metadata:          toPBItemMetadata(it.Metadata),
	}
}

func fromPBItem(it pb.Item) ReportItem {
	return ReportItem{
		Name:              it.Name,
		Size:              it.Size,
		FuzzyMatchPercent: it.FuzzyMatchPercent,
		Metadata:          fromPBItemMetadata(it.Metadata),
	}
}

func toPBItems(items []ReportItem) []pb.Item {
	out := make([]pb.Item, len(items))
	for i, it := range items {
		out[i] = toPBItem(it)
	}
	return out
}

func fromPBItems(items []pb.Item) []ReportItem {
	out := make([]ReportItem, len(items))
	for i, it := range items {
		out[i] = fromPBItem(it)
	}
	return out
}

func toPBUnit(u *ReportUnit) pb.Unit {
	return pb.Unit{
		Name:      u.Name,
		Measures:  toPBMeasures(u.Measures),
		Sections:  toPBItems(u.Sections),
		Functions: toPBItems(u.Functions),
		Metadata:  u.Metadata,
	}
}

func fromPBUnit(u pb.Unit) *ReportUnit {
	var measures *Measures
	if u.Measures != nil {
		m := fromPBMeasures(*u.Measures)
		measures = &m
	}
	return &ReportUnit{
		Name:      u.Name,
		Measures:  measures,
		Sections:  fromPBItems(u.Sections),
		Functions: fromPBItems(u.Functions),
		Metadata:  u.Metadata,
	}
}

func toPBCategory(c ReportCategory) pb.Category {
	return pb.Category{ID: c.ID, Name: c.Name, Measures: toPBMeasures(c.Measures)}
}

func fromPBCategory(c pb.Category) ReportCategory {
	var measures *Measures
	if c.Measures != nil {
		m := fromPBMeasures(*c.Measures)
		measures = &m
	}
	return ReportCategory{ID: c.ID, Name: c.Name, Measures: measures}
}

// EncodeUnit serializes a unit body for storage (the report_units.data
// column, prior to codec compression).
func EncodeUnit(u *ReportUnit) []byte {
	return pb.AppendUnit(nil, toPBUnit(u))
}

// DecodeUnit parses a unit body previously produced by EncodeUnit.
func DecodeUnit(b []byte) (*ReportUnit, error) {
	u, err := pb.ConsumeUnit(b)
	if err != nil {
		return nil, err
	}
	return fromPBUnit(u), nil
}

// EncodeHeader serializes the report header (no unit list) for storage
// (the reports.data column, prior to codec compression).
func EncodeHeader(formatVersion int32, m Measures, categories []ReportCategory) []byte {
	h := pb.Header{FormatVersion: formatVersion, Measures: *toPBMeasures(&m)}
	for _, c := range categories {
		h.Categories = append(h.Categories, toPBCategory(c))
	}
	return pb.AppendHeader(nil, h)
}

// DecodeHeader parses a header previously produced by EncodeHeader.
func DecodeHeader(b []byte) (formatVersion int32, m Measures, categories []ReportCategory, err error) {
	h, err := pb.ConsumeHeader(b)
	if err != nil {
		return 0, Measures{}, nil, err
	}
	for _, c := range h.Categories {
		categories = append(categories, fromPBCategory(c))
	}
	return h.FormatVersion, fromPBMeasures(h.Measures), categories, nil
}

// Decode parses a full artifact-wire Report — the protobuf bytes a CI
// artifact's report.bin/report.json payload decodes into before Migrate.
func Decode(b []byte) (*Report, error) {
	r, err := pb.Decode(b)
	if err != nil {
		return nil, err
	}
	out := &Report{FormatVersion: r.FormatVersion, Measures: fromPBMeasures(r.Measures)}
	for _, c := range r.Categories {
		out.Categories = append(out.Categories, fromPBCategory(c))
	}
	for _, u := range r.Units {
		out.Units = append(out.Units, fromPBUnit(u))
	}
	return out, nil
}

// Encode serializes a full Report to the artifact wire format.
func Encode(r *Report) []byte {
	pr := pb.Report{FormatVersion: r.FormatVersion, Measures: *toPBMeasures(&r.Measures)}
	for _, c := range r.Categories {
		pr.Categories = append(pr.Categories, toPBCategory(c))
	}
	for _, u := range r.Units {
		pr.Units = append(pr.Units, toPBUnit(u))
	}
	return pb.Encode(pr)
}
