package pb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeasuresRoundTrip(t *testing.T) {
	m := Measures{CodeTotal: 100, CodeMatched: 50, FuncTotal: 10, FuncMatched: 5}
	got, err := ConsumeMeasures(AppendMeasures(nil, m))
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestItemRoundTrip(t *testing.T) {
	it := Item{
		Name:              "foo",
		Size:              128,
		FuzzyMatchPercent: 87.5,
		Metadata: &ItemMetadata{
			DemangledName:  "Foo::bar()",
			VirtualAddress: 0x8000_1000,
			HasVirtualAddr: true,
			SourcePath:     "src/foo.c",
			Categories:     []string{"a", "b"},
		},
	}
	got, err := ConsumeItem(AppendItem(nil, it))
	require.NoError(t, err)
	assert.Equal(t, it, got)
}

func TestUnitRoundTripIsDeterministic(t *testing.T) {
	u := Unit{
		Name:      "unit.c",
		Measures:  &Measures{CodeTotal: 10},
		Sections:  []Item{{Name: "s1", Size: 4}},
		Functions: []Item{{Name: "foo", Size: 8, FuzzyMatchPercent: 100}},
		Metadata:  map[string]string{"b": "2", "a": "1"},
	}

	b1 := AppendUnit(nil, u)
	b2 := AppendUnit(nil, u)
	assert.Equal(t, b1, b2, "canonical encoding must be order-independent of map iteration")

	got, err := ConsumeUnit(b1)
	require.NoError(t, err)
	assert.Equal(t, u.Name, got.Name)
	assert.Equal(t, u.Metadata, got.Metadata)
}

func TestReportRoundTrip(t *testing.T) {
	r := Report{
		FormatVersion: 3,
		Measures:      Measures{CodeTotal: 1000, CodeMatched: 400},
		Categories:    []Category{{ID: "all", Name: "All"}},
		Units: []Unit{
			{Name: "a.c", Metadata: map[string]string{}},
			{Name: "b.c", Metadata: map[string]string{}},
		},
	}
	got, err := Decode(Encode(r))
	require.NoError(t, err)
	assert.Equal(t, r.FormatVersion, got.FormatVersion)
	assert.Equal(t, r.Measures, got.Measures)
	require.Len(t, got.Units, 2)
	assert.Equal(t, "a.c", got.Units[0].Name)
	assert.Equal(t, "b.c", got.Units[1].Name)
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		FormatVersion: 3,
		Measures:      Measures{CodeTotal: 1000},
		Categories:    []Category{{ID: "all", Name: "All"}},
	}
	got, err := ConsumeHeader(AppendHeader(nil, h))
	require.NoError(t, err)
	assert.Equal(t, h, got)
}
