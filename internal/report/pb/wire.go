// Package pb implements the protobuf wire encoding for reports. It is
// written directly against google.golang.org/protobuf/encoding/protowire
// rather than generated from a .proto file — see DESIGN.md for why no
// protoc-generated bindings were produced — but the bytes it reads and
// writes are ordinary protobuf: any protoc-generated decoder pointed at
// the matching .proto (reproduced in doc.go) reads them correctly.
package pb

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers. Kept centralized so the wire layout is visible in one
// place instead of scattered across Append calls.
const (
	fMeasuresCodeTotal     = 1
	fMeasuresCodeMatched   = 2
	fMeasuresCodeComplete  = 3
	fMeasuresDataTotal     = 4
	fMeasuresDataMatched   = 5
	fMeasuresDataComplete  = 6
	fMeasuresFuncTotal     = 7
	fMeasuresFuncMatched   = 8
	fMeasuresUnitTotal     = 9
	fMeasuresUnitComplete  = 10

	fItemName              = 1
	fItemSize              = 2
	fItemFuzzyMatchPercent = 3
	fItemMetadata          = 4

	fMetaDemangledName   = 1
	fMetaVirtualAddress  = 2
	fMetaHasVirtualAddr  = 3
	fMetaSourcePath      = 4
	fMetaLanguage        = 5
	fMetaCategory        = 6

	fUnitName      = 1
	fUnitMeasures  = 2
	fUnitSections  = 3
	fUnitFunctions = 4
	fUnitMetaEntry = 5

	fMapKey   = 1
	fMapValue = 2

	fCategoryID       = 1
	fCategoryName     = 2
	fCategoryMeasures = 3

	fHeaderFormatVersion = 1
	fHeaderMeasures      = 2
	fHeaderCategories    = 3

	fReportFormatVersion = 1
	fReportMeasures      = 2
	fReportCategories    = 3
	fReportUnits         = 4
)

// Measures mirrors the report.Measures counters with no derived fields —
// percentages are never put on the wire, only recomputed after decode.
type Measures struct {
	CodeTotal, CodeMatched, CodeComplete uint64
	DataTotal, DataMatched, DataComplete uint64
	FuncTotal, FuncMatched               uint64
	UnitTotal, UnitComplete              uint64
}

func AppendMeasures(b []byte, m Measures) []byte {
	b = protowire.AppendTag(b, fMeasuresCodeTotal, protowire.VarintType)
	b = protowire.AppendVarint(b, m.CodeTotal)
	b = protowire.AppendTag(b, fMeasuresCodeMatched, protowire.VarintType)
	b = protowire.AppendVarint(b, m.CodeMatched)
	b = protowire.AppendTag(b, fMeasuresCodeComplete, protowire.VarintType)
	b = protowire.AppendVarint(b, m.CodeComplete)
	b = protowire.AppendTag(b, fMeasuresDataTotal, protowire.VarintType)
	b = protowire.AppendVarint(b, m.DataTotal)
	b = protowire.AppendTag(b, fMeasuresDataMatched, protowire.VarintType)
	b = protowire.AppendVarint(b, m.DataMatched)
	b = protowire.AppendTag(b, fMeasuresDataComplete, protowire.VarintType)
	b = protowire.AppendVarint(b, m.DataComplete)
	b = protowire.AppendTag(b, fMeasuresFuncTotal, protowire.VarintType)
	b = protowire.AppendVarint(b, m.FuncTotal)
	b = protowire.AppendTag(b, fMeasuresFuncMatched, protowire.VarintType)
	b = protowire.AppendVarint(b, m.FuncMatched)
	b = protowire.AppendTag(b, fMeasuresUnitTotal, protowire.VarintType)
	b = protowire.AppendVarint(b, m.UnitTotal)
	b = protowire.AppendTag(b, fMeasuresUnitComplete, protowire.VarintType)
	b = protowire.AppendVarint(b, m.UnitComplete)
	return b
}

func ConsumeMeasures(b []byte) (Measures, error) {
	var m Measures
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return m, fmt.Errorf("pb: measures: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		v, n := protowire.ConsumeVarint(b)
		if n < 0 || typ != protowire.VarintType {
			return m, fmt.Errorf("pb: measures: bad varint field %d", num)
		}
		b = b[n:]
		switch num {
		case fMeasuresCodeTotal:
			m.CodeTotal = v
		case fMeasuresCodeMatched:
			m.CodeMatched = v
		case fMeasuresCodeComplete:
			m.CodeComplete = v
		case fMeasuresDataTotal:
			m.DataTotal = v
		case fMeasuresDataMatched:
			m.DataMatched = v
		case fMeasuresDataComplete:
			m.DataComplete = v
		case fMeasuresFuncTotal:
			m.FuncTotal = v
		case fMeasuresFuncMatched:
			m.FuncMatched = v
		case fMeasuresUnitTotal:
			m.UnitTotal = v
		case fMeasuresUnitComplete:
			m.UnitComplete = v
		}
	}
	return m, nil
}

// ItemMetadata mirrors report.ReportItemMetadata.
type ItemMetadata struct {
	DemangledName  string
	VirtualAddress uint64
	HasVirtualAddr bool
	SourcePath     string
	Language       string
	Categories     []string
}

func appendItemMetadata(b []byte, m *ItemMetadata) []byte {
	if m == nil {
		return b
	}
	var body []byte
	if m.DemangledName != "" {
		body = protowire.AppendTag(body, fMetaDemangledName, protowire.BytesType)
		body = protowire.AppendString(body, m.DemangledName)
	}
	if m.HasVirtualAddr {
		body = protowire.AppendTag(body, fMetaVirtualAddress, protowire.VarintType)
		body = protowire.AppendVarint(body, m.VirtualAddress)
		body = protowire.AppendTag(body, fMetaHasVirtualAddr, protowire.VarintType)
		body = protowire.AppendVarint(body, 1)
	}
	if m.SourcePath != "" {
		body = protowire.AppendTag(body, fMetaSourcePath, protowire.BytesType)
		body = protowire.AppendString(body, m.SourcePath)
	}
	if m.Language != "" {
		body = protowire.AppendTag(body, fMetaLanguage, protowire.BytesType)
		body = protowire.AppendString(body, m.Language)
	}
	for _, c := range m.Categories {
		body = protowire.AppendTag(body, fMetaCategory, protowire.BytesType)
		body = protowire.AppendString(body, c)
	}
	b = protowire.AppendTag(b, fItemMetadata, protowire.BytesType)
	b = protowire.AppendBytes(b, body)
	return b
}

func consumeItemMetadata(b []byte) (*ItemMetadata, error) {
	m := &ItemMetadata{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("pb: item metadata: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("pb: item metadata: bad bytes field %d", num)
			}
			b = b[n:]
			switch num {
			case fMetaDemangledName:
				m.DemangledName = string(v)
			case fMetaSourcePath:
				m.SourcePath = string(v)
			case fMetaLanguage:
				m.Language = string(v)
			case fMetaCategory:
				m.Categories = append(m.Categories, string(v))
			}
		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("pb: item metadata: bad varint field %d", num)
			}
			b = b[n:]
			switch num {
			case fMetaVirtualAddress:
				m.VirtualAddress = v
			case fMetaHasVirtualAddr:
				m.HasVirtualAddr = v != 0
			}
		default:
			return nil, fmt.Errorf("pb: item metadata: unsupported wire type %d", typ)
		}
	}
	return m, nil
}

// Item mirrors report.ReportItem.
type Item struct {
	Name              string
	Size              uint64
	FuzzyMatchPercent float64
	Metadata          *ItemMetadata
}

func AppendItem(b []byte, it Item) []byte {
	b = protowire.AppendTag(b, fItemName, protowire.BytesType)
	b = protowire.AppendString(b, it.Name)
	b = protowire.AppendTag(b, fItemSize, protowire.VarintType)
	b = protowire.AppendVarint(b, it.Size)
	b = protowire.AppendTag(b, fItemFuzzyMatchPercent, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(it.FuzzyMatchPercent))
	b = appendItemMetadata(b, it.Metadata)
	return b
}

func ConsumeItem(b []byte) (Item, error) {
	var it Item
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return it, fmt.Errorf("pb: item: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch typ {
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return it, fmt.Errorf("pb: item: bad bytes field %d", num)
			}
			b = b[n:]
			switch num {
			case fItemName:
				it.Name = string(v)
			case fItemMetadata:
				md, err := consumeItemMetadata(v)
				if err != nil {
					return it, err
				}
				it.Metadata = md
			}
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return it, fmt.Errorf("pb: item: bad varint field %d", num)
			}
			b = b[n:]
			if num == fItemSize {
				it.Size = v
			}
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return it, fmt.Errorf("pb: item: bad fixed64 field %d", num)
			}
			b = b[n:]
			if num == fItemFuzzyMatchPercent {
				it.FuzzyMatchPercent = math.Float64frombits(v)
			}
		default:
			return it, fmt.Errorf("pb: item: unsupported wire type %d", typ)
		}
	}
	return it, nil
}

// Category mirrors report.ReportCategory.
type Category struct {
	ID       string
	Name     string
	Measures *Measures
}

func AppendCategory(b []byte, c Category) []byte {
	b = protowire.AppendTag(b, fCategoryID, protowire.BytesType)
	b = protowire.AppendString(b, c.ID)
	b = protowire.AppendTag(b, fCategoryName, protowire.BytesType)
	b = protowire.AppendString(b, c.Name)
	if c.Measures != nil {
		b = protowire.AppendTag(b, fCategoryMeasures, protowire.BytesType)
		b = protowire.AppendBytes(b, AppendMeasures(nil, *c.Measures))
	}
	return b
}

func ConsumeCategory(b []byte) (Category, error) {
	var c Category
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return c, fmt.Errorf("pb: category: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		if typ != protowire.BytesType {
			return c, fmt.Errorf("pb: category: unsupported wire type %d", typ)
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return c, fmt.Errorf("pb: category: bad bytes field %d", num)
		}
		b = b[n:]
		switch num {
		case fCategoryID:
			c.ID = string(v)
		case fCategoryName:
			c.Name = string(v)
		case fCategoryMeasures:
			m, err := ConsumeMeasures(v)
			if err != nil {
				return c, err
			}
			c.Measures = &m
		}
	}
	return c, nil
}

// Unit mirrors report.ReportUnit for the purpose of canonical hashing and
// persistence; it excludes the content-address key itself, which is
// computed over these exact bytes.
type Unit struct {
	Name      string
	Measures  *Measures
	Sections  []Item
	Functions []Item
	Metadata  map[string]string
}

func AppendUnit(b []byte, u Unit) []byte {
	b = protowire.AppendTag(b, fUnitName, protowire.BytesType)
	b = protowire.AppendString(b, u.Name)
	if u.Measures != nil {
		b = protowire.AppendTag(b, fUnitMeasures, protowire.BytesType)
		b = protowire.AppendBytes(b, AppendMeasures(nil, *u.Measures))
	}
	for _, s := range u.Sections {
		b = protowire.AppendTag(b, fUnitSections, protowire.BytesType)
		b = protowire.AppendBytes(b, AppendItem(nil, s))
	}
	for _, f := range u.Functions {
		b = protowire.AppendTag(b, fUnitFunctions, protowire.BytesType)
		b = protowire.AppendBytes(b, AppendItem(nil, f))
	}
	// Metadata keys are sorted so that two structurally identical units
	// produce byte-identical canonical encodings regardless of map
	// iteration order — required for content addressing to be stable.
	for _, k := range sortedKeys(u.Metadata) {
		entry := protowire.AppendTag(nil, fMapKey, protowire.BytesType)
		entry = protowire.AppendString(entry, k)
		entry = protowire.AppendTag(entry, fMapValue, protowire.BytesType)
		entry = protowire.AppendString(entry, u.Metadata[k])
		b = protowire.AppendTag(b, fUnitMetaEntry, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b
}

func ConsumeUnit(b []byte) (Unit, error) {
	u := Unit{Metadata: map[string]string{}}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return u, fmt.Errorf("pb: unit: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		if typ != protowire.BytesType {
			return u, fmt.Errorf("pb: unit: unsupported wire type %d", typ)
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return u, fmt.Errorf("pb: unit: bad bytes field %d", num)
		}
		b = b[n:]
		switch num {
		case fUnitName:
			u.Name = string(v)
		case fUnitMeasures:
			m, err := ConsumeMeasures(v)
			if err != nil {
				return u, err
			}
			u.Measures = &m
		case fUnitSections:
			it, err := ConsumeItem(v)
			if err != nil {
				return u, err
			}
			u.Sections = append(u.Sections, it)
		case fUnitFunctions:
			it, err := ConsumeItem(v)
			if err != nil {
				return u, err
			}
			u.Functions = append(u.Functions, it)
		case fUnitMetaEntry:
			key, val, err := consumeMapEntry(v)
			if err != nil {
				return u, err
			}
			u.Metadata[key] = val
		}
	}
	return u, nil
}

func consumeMapEntry(b []byte) (key, value string, err error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", "", fmt.Errorf("pb: map entry: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		if typ != protowire.BytesType {
			return "", "", fmt.Errorf("pb: map entry: unsupported wire type %d", typ)
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return "", "", fmt.Errorf("pb: map entry: bad bytes field %d", num)
		}
		b = b[n:]
		switch num {
		case fMapKey:
			key = string(v)
		case fMapValue:
			value = string(v)
		}
	}
	return key, value, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Insertion sort is fine; unit metadata maps are small (a handful of
	// entries), and avoiding a sort import keeps this file dependency-free.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// Header mirrors the persisted `reports.data` blob: measures, categories,
// and format version, with no unit list — unit ordering is reconstructed
// from the report_report_units join table, never from this blob.
type Header struct {
	FormatVersion int32
	Measures      Measures
	Categories    []Category
}

func AppendHeader(b []byte, h Header) []byte {
	b = protowire.AppendTag(b, fHeaderFormatVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(h.FormatVersion))
	b = protowire.AppendTag(b, fHeaderMeasures, protowire.BytesType)
	b = protowire.AppendBytes(b, AppendMeasures(nil, h.Measures))
	for _, c := range h.Categories {
		b = protowire.AppendTag(b, fHeaderCategories, protowire.BytesType)
		b = protowire.AppendBytes(b, AppendCategory(nil, c))
	}
	return b
}

func ConsumeHeader(b []byte) (Header, error) {
	var h Header
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return h, fmt.Errorf("pb: header: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return h, fmt.Errorf("pb: header: bad varint field %d", num)
			}
			b = b[n:]
			if num == fHeaderFormatVersion {
				h.FormatVersion = int32(v)
			}
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return h, fmt.Errorf("pb: header: bad bytes field %d", num)
			}
			b = b[n:]
			switch num {
			case fHeaderMeasures:
				m, err := ConsumeMeasures(v)
				if err != nil {
					return h, err
				}
				h.Measures = m
			case fHeaderCategories:
				c, err := ConsumeCategory(v)
				if err != nil {
					return h, err
				}
				h.Categories = append(h.Categories, c)
			}
		default:
			return h, fmt.Errorf("pb: header: unsupported wire type %d", typ)
		}
	}
	return h, nil
}

// Report is the full artifact wire format: a header plus inline unit
// bodies, in order. This is what CI runs upload and what Decode parses;
// the store immediately splits it into a Header blob and per-unit blobs.
type Report struct {
	FormatVersion int32
	Measures      Measures
	Categories    []Category
	Units         []Unit
}

func Encode(r Report) []byte {
	var b []byte
	b = protowire.AppendTag(b, fReportFormatVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.FormatVersion))
	b = protowire.AppendTag(b, fReportMeasures, protowire.BytesType)
	b = protowire.AppendBytes(b, AppendMeasures(nil, r.Measures))
	for _, c := range r.Categories {
		b = protowire.AppendTag(b, fReportCategories, protowire.BytesType)
		b = protowire.AppendBytes(b, AppendCategory(nil, c))
	}
	for _, u := range r.Units {
		b = protowire.AppendTag(b, fReportUnits, protowire.BytesType)
		b = protowire.AppendBytes(b, AppendUnit(nil, u))
	}
	return b
}

func Decode(b []byte) (Report, error) {
	var r Report
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, fmt.Errorf("pb: report: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, fmt.Errorf("pb: report: bad varint field %d", num)
			}
			b = b[n:]
			if num == fReportFormatVersion {
				r.FormatVersion = int32(v)
			}
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, fmt.Errorf("pb: report: bad bytes field %d", num)
			}
			b = b[n:]
			switch num {
			case fReportMeasures:
				m, err := ConsumeMeasures(v)
				if err != nil {
					return r, err
				}
				r.Measures = m
			case fReportCategories:
				c, err := ConsumeCategory(v)
				if err != nil {
					return r, err
				}
				r.Categories = append(r.Categories, c)
			case fReportUnits:
				u, err := ConsumeUnit(v)
				if err != nil {
					return r, err
				}
				r.Units = append(r.Units, u)
			}
		default:
			return r, fmt.Errorf("pb: report: unsupported wire type %d", typ)
		}
	}
	return r, nil
}
