package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSchemes(t *testing.T) {
	cases := []struct {
		tag    string
		ok     bool
		scheme Scheme
	}{
		{"1.25.3", true, SchemeSemantic},
		{"v1.25.3", true, SchemeSemantic},
		{"1.25.3-alpine", true, SchemeSemantic},
		{"1.25.3-4", true, SchemeSemantic},
		{"1.2.3.4", true, SchemeSemantic}, // ambiguous: prefers three-plus-build
		{"2024.01.15", true, SchemeDate},
		{"2024.13.15", true, SchemeSemantic}, // month out of range, not a date
		{"42", true, SchemeNumeric},
		{"", false, SchemeUnknown},
		{"latest", false, SchemeUnknown},
	}
	for _, c := range cases {
		v, ok := Parse(c.tag)
		assert.Equal(t, c.ok, ok, c.tag)
		if ok {
			assert.Equal(t, c.scheme, v.Scheme, c.tag)
		}
	}
}

func TestParseAmbiguousFourComponents(t *testing.T) {
	v, ok := Parse("1.2.3.4")
	assert.True(t, ok)
	assert.Equal(t, []int{1, 2, 3}, v.Components)
	assert.True(t, v.HasBuild)
	assert.False(t, v.BuildOpaque)
	assert.Equal(t, 4, v.Build)
}

func TestParseOpaqueBuild(t *testing.T) {
	v, ok := Parse("1.25.3-alpine")
	assert.True(t, ok)
	assert.True(t, v.BuildOpaque)
	assert.Equal(t, "alpine", v.BuildRaw)
}

func TestCompareWithinScheme(t *testing.T) {
	a, _ := Parse("1.25.3")
	b, _ := Parse("1.25.4")
	assert.Equal(t, Less, Compare(a, b))
	assert.Equal(t, Greater, Compare(b, a))
	assert.Equal(t, Equal, Compare(a, a))
}

func TestCompareAcrossSchemesIsIncomparable(t *testing.T) {
	sem, _ := Parse("1.25.3")
	date, _ := Parse("2024.01.15")
	assert.Equal(t, Incomparable, Compare(sem, date))
}

func TestCompareMissingBuildIsLowerButStillBuildDiff(t *testing.T) {
	a, _ := Parse("1.25.3")
	b, _ := Parse("1.25.3-1")
	assert.Equal(t, Less, Compare(a, b))
	assert.Equal(t, DiffBuild, Classify(a, b, "X", "X"))
}

func TestClassifyRoundTrip(t *testing.T) {
	v, _ := Parse("1.25.3")
	assert.Equal(t, DiffNone, Classify(v, v, "sha256:a", "sha256:a"))
	assert.Equal(t, DiffDigest, Classify(v, v, "sha256:a", "sha256:b"))
}

func TestClassifyPositional(t *testing.T) {
	cur, _ := Parse("1.25.3")
	cases := []struct {
		next string
		want DiffKind
	}{
		{"2.0.0", DiffMajor},
		{"1.26.0", DiffMinor},
		{"1.25.4", DiffPatch},
		{"1.25.3-1", DiffBuild},
	}
	for _, c := range cases {
		next, ok := Parse(c.next)
		assert.True(t, ok, c.next)
		assert.Equal(t, c.want, Classify(cur, next, "A", "B"), c.next)
	}
}

func TestClassifySchemeChange(t *testing.T) {
	sem, _ := Parse("1.25.3")
	date, _ := Parse("2024.01.15")
	assert.Equal(t, DiffSchemeChange, Classify(sem, date, "A", "B"))
}

func TestClassifyDateAlwaysPatch(t *testing.T) {
	a, _ := Parse("2024.01.15")
	b, _ := Parse("2024.02.01")
	assert.Equal(t, DiffPatch, Classify(a, b, "A", "B"))
}

func TestMajorMinorAccessors(t *testing.T) {
	v, _ := Parse("42")
	assert.Equal(t, 42, v.Major())
	assert.Equal(t, 0, v.Minor())
}
