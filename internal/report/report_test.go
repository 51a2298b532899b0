package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleUnit(name string) *ReportUnit {
	return &ReportUnit{
		Name:     name,
		Measures: &Measures{CodeBytesTotal: 100, CodeBytesMatched: 50},
		Sections: []ReportItem{{Name: "sec", Size: 16}},
		Functions: []ReportItem{
			{Name: "foo", Size: 100, FuzzyMatchPercent: 50},
		},
		Metadata: map[string]string{},
	}
}

func TestKeyStableAcrossEqualUnits(t *testing.T) {
	a := sampleUnit("a.c")
	b := sampleUnit("a.c")
	assert.Equal(t, Key(a), Key(b))
}

func TestKeyDiffersForDifferentContent(t *testing.T) {
	a := sampleUnit("a.c")
	b := sampleUnit("b.c")
	assert.NotEqual(t, Key(a), Key(b))
}

func TestUnitEncodeDecodeRoundTrip(t *testing.T) {
	u := sampleUnit("a.c")
	got, err := DecodeUnit(EncodeUnit(u))
	require.NoError(t, err)
	assert.Equal(t, u.Name, got.Name)
	require.NotNil(t, got.Measures)
	assert.Equal(t, u.Measures.CodeBytesTotal, got.Measures.CodeBytesTotal)
	assert.Equal(t, Key(u), Key(got), "decoded unit must hash identically to the original")
}

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	m := Measures{CodeBytesTotal: 100, CodeBytesMatched: 40}
	m.RecomputePercentages()
	cats := []ReportCategory{{ID: AllCategoryID, Name: "All", Measures: &m}}

	version, gotM, gotCats, err := DecodeHeader(EncodeHeader(CurrentFormatVersion, m, cats))
	require.NoError(t, err)
	assert.Equal(t, int32(CurrentFormatVersion), version)
	assert.Equal(t, m.CodeBytesTotal, gotM.CodeBytesTotal)
	require.Len(t, gotCats, 1)
	assert.Equal(t, AllCategoryID, gotCats[0].ID)
}

func TestCombineSumsAndRecomputes(t *testing.T) {
	a := Measures{CodeBytesTotal: 100, CodeBytesMatched: 50}
	b := Measures{CodeBytesTotal: 50, CodeBytesMatched: 50}
	out := Combine(a, b)
	assert.Equal(t, uint64(150), out.CodeBytesTotal)
	assert.Equal(t, uint64(100), out.CodeBytesMatched)
	assert.InDelta(t, 66.67, out.CodePercent, 0.01)
}

func TestMigrateV1DerivesCompleteFromMatched(t *testing.T) {
	r := &Report{
		FormatVersion: 1,
		Measures:      Measures{CodeBytesTotal: 100, CodeBytesMatched: 60},
		Units:         []*ReportUnit{{Name: "a.c", Measures: &Measures{CodeBytesMatched: 10}}},
	}
	out, err := Migrate(r)
	require.NoError(t, err)
	assert.Equal(t, int32(CurrentFormatVersion), out.FormatVersion)
	assert.Equal(t, uint64(60), out.Measures.CodeBytesComplete)
	assert.Equal(t, uint64(10), out.Units[0].Measures.CodeBytesComplete)
	assert.NotNil(t, out.Units[0].Metadata)
}

func TestMigrateIsIdempotentAtCurrentVersion(t *testing.T) {
	r := &Report{FormatVersion: CurrentFormatVersion, Measures: Measures{CodeBytesTotal: 10, CodeBytesMatched: 5}}
	out, err := Migrate(r)
	require.NoError(t, err)
	again, err := Migrate(out)
	require.NoError(t, err)
	assert.Equal(t, out.Measures, again.Measures)
}

func TestMigrateRejectsFutureVersion(t *testing.T) {
	_, err := Migrate(&Report{FormatVersion: CurrentFormatVersion + 1})
	assert.Error(t, err)
}

func TestEnsureAllCategoryAddsWhenMissing(t *testing.T) {
	r := &Report{Measures: Measures{CodeBytesTotal: 10}}
	ensureAllCategory(r)
	require.Len(t, r.Categories, 1)
	assert.Equal(t, AllCategoryID, r.Categories[0].ID)
}

func TestSplitCombinedArtifact(t *testing.T) {
	r := &Report{
		FormatVersion: CurrentFormatVersion,
		Categories: []ReportCategory{
			{ID: "GALE01:all", Name: "All", Measures: &Measures{CodeBytesTotal: 10}},
			{ID: "GALJ01:all", Name: "All", Measures: &Measures{CodeBytesTotal: 20}},
		},
		Units: []*ReportUnit{
			{Name: "a.c", Metadata: map[string]string{"version": "GALE01"}},
			{Name: "b.c", Metadata: map[string]string{"version": "GALJ01"}},
		},
	}
	out, err := Split(r)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "GALE01", out[0].Version)
	assert.Equal(t, "GALJ01", out[1].Version)
	assert.Len(t, out[0].Report.Units, 1)
	assert.Equal(t, "a.c", out[0].Report.Units[0].Name)
}

func TestReportEncodeDecodeRoundTrip(t *testing.T) {
	r := &Report{
		FormatVersion: CurrentFormatVersion,
		Measures:      Measures{CodeBytesTotal: 10, CodeBytesMatched: 5},
		Units:         []*ReportUnit{sampleUnit("a.c"), sampleUnit("b.c")},
	}
	got, err := Decode(Encode(r))
	require.NoError(t, err)
	require.Len(t, got.Units, 2)
	assert.Equal(t, "a.c", got.Units[0].Name)
	assert.Equal(t, "b.c", got.Units[1].Name)
}
