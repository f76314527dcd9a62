// Package version implements the Version Model (SPEC_FULL.md §4.1): tag
// parsing, scheme classification, ordering, and diff-kind classification.
package version

import (
	"regexp"
	"strconv"
	"strings"
)

// Scheme is the shape class of a parsed tag.
type Scheme int

const (
	SchemeUnknown Scheme = iota
	SchemeSemantic
	SchemeDate
	SchemeNumeric
)

func (s Scheme) String() string {
	switch s {
	case SchemeSemantic:
		return "semantic"
	case SchemeDate:
		return "date"
	case SchemeNumeric:
		return "numeric"
	default:
		return "unknown"
	}
}

// Version is a parsed tag: an optional immutable prefix, a numeric
// component sequence, an optional build suffix, and the scheme that
// shape implied.
type Version struct {
	Raw        string
	Prefix     string // leading "v"/"V", preserved verbatim for rendering
	Scheme     Scheme
	Components []int // numeric components in order
	HasBuild   bool
	Build      int    // numeric build suffix, valid when BuildOpaque == false
	BuildRaw   string // original text of the suffix, for opaque suffixes
	BuildOpaque bool  // true when the suffix after "-" is not itself numeric
}

var numericRun = regexp.MustCompile(`\d+`)

// Parse attempts to parse tag into a Version. It returns false when tag
// does not match any recognized scheme.
func Parse(tag string) (Version, bool) {
	raw := tag
	prefix := ""
	rest := tag
	if strings.HasPrefix(rest, "v") || strings.HasPrefix(rest, "V") {
		prefix = rest[:1]
		rest = rest[1:]
	}

	base := rest
	buildRaw := ""
	hasBuild := false
	if idx := strings.Index(rest, "-"); idx != -1 {
		base = rest[:idx]
		buildRaw = rest[idx+1:]
		hasBuild = true
	}

	if base == "" {
		return Version{}, false
	}

	parts := strings.Split(base, ".")
	if len(parts) == 0 || len(parts) > 4 {
		return Version{}, false
	}

	// A fourth component is only valid when dash-separated (§3); four
	// dot-separated numeric parts with no dash is the ambiguous shape
	// the spec resolves by preferring "three-plus-build" (§4.1): the
	// last part becomes the build suffix instead of a fourth component.
	if !hasBuild && len(parts) == 4 {
		hasBuild = true
		buildRaw = parts[3]
		parts = parts[:3]
	}

	components := make([]int, 0, len(parts))
	for _, p := range parts {
		if p == "" || !isAllDigits(p) {
			return Version{}, false
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, false
		}
		components = append(components, n)
	}

	v := Version{Raw: raw, Prefix: prefix, Components: components}

	if hasBuild {
		v.HasBuild = true
		v.BuildRaw = buildRaw
		if isAllDigits(buildRaw) {
			n, err := strconv.Atoi(buildRaw)
			if err == nil {
				v.Build = n
			} else {
				v.BuildOpaque = true
			}
		} else {
			v.BuildOpaque = true
		}
	}

	// Date shape: exactly three components, no build suffix beyond the
	// fourth slot, with year/month/day plausibility bounds.
	if len(components) == 3 && isPlausibleDate(components) && !hasBuild {
		v.Scheme = SchemeDate
		return v, true
	}

	switch {
	case len(components) == 1 && !hasBuild:
		v.Scheme = SchemeNumeric
		return v, true
	case len(components) >= 1 && len(components) <= 4:
		v.Scheme = SchemeSemantic
		return v, true
	default:
		return Version{}, false
	}
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isPlausibleDate(c []int) bool {
	year, month, day := c[0], c[1], c[2]
	return year >= 1970 && month >= 1 && month <= 12 && day >= 1 && day <= 31
}

// Ordering is the result of comparing two versions.
type Ordering int

const (
	Incomparable Ordering = iota
	Less
	Equal
	Greater
)

// Compare orders a and b. It returns Incomparable when their schemes
// differ (SPEC_FULL.md §4.1).
func Compare(a, b Version) Ordering {
	if a.Scheme != b.Scheme {
		return Incomparable
	}

	la, lb := len(a.Components), len(b.Components)
	l := la
	if lb > l {
		l = lb
	}
	for i := 0; i < l; i++ {
		av, bv := 0, 0
		if i < la {
			av = a.Components[i]
		}
		if i < lb {
			bv = b.Components[i]
		}
		if av < bv {
			return Less
		}
		if av > bv {
			return Greater
		}
	}

	// Components equal; compare build suffixes. A missing build suffix
	// ranks lowest, never higher than an opaque or numeric one, but the
	// difference itself is only ever classified as "build" (§4.1 edge
	// cases), never patch/minor/major.
	switch {
	case !a.HasBuild && !b.HasBuild:
		return Equal
	case !a.HasBuild && b.HasBuild:
		return Less
	case a.HasBuild && !b.HasBuild:
		return Greater
	case a.BuildOpaque || b.BuildOpaque:
		if a.BuildRaw == b.BuildRaw {
			return Equal
		}
		// Opaque suffixes have no semantic order; differing ones are
		// ordered lexically so that comparison is total, while the
		// difference still routes through DiffKind=build.
		if a.BuildRaw < b.BuildRaw {
			return Less
		}
		return Greater
	default:
		switch {
		case a.Build < b.Build:
			return Less
		case a.Build > b.Build:
			return Greater
		default:
			return Equal
		}
	}
}

// DiffKind classifies the step from old to new (SPEC_FULL.md §3).
type DiffKind string

const (
	DiffNone         DiffKind = "none"
	DiffDigest       DiffKind = "digest"
	DiffBuild        DiffKind = "build"
	DiffPatch        DiffKind = "patch"
	DiffMinor        DiffKind = "minor"
	DiffMajor        DiffKind = "major"
	DiffSchemeChange DiffKind = "scheme-change"
)

// Classify implements the §3 DiffKind table. oldDigest/newDigest are
// opaque content-address strings; equality is all that matters here.
func Classify(old, new Version, oldDigest, newDigest string) DiffKind {
	if old.Scheme != new.Scheme {
		return DiffSchemeChange
	}

	ord := Compare(old, new)
	if ord == Equal {
		if oldDigest != newDigest {
			return DiffDigest
		}
		return DiffNone
	}

	// Compare component-by-component for the first divergence. The date
	// scheme's three components are still year/month/day positionally,
	// so a date-to-date change is reported as "patch" per §4.1's edge
	// case note, regardless of which of the three components moved.
	if old.Scheme == SchemeDate {
		return DiffPatch
	}

	la, lb := len(old.Components), len(new.Components)
	l := la
	if lb > l {
		l = lb
	}
	for i := 0; i < l; i++ {
		// A component missing on one side entirely (rather than present
		// and merely equal-or-differing on both) is always a build
		// difference per §4.1's "missing vs. present" edge case — never
		// promoted to major/minor/patch just because of its position.
		if i >= la || i >= lb {
			return DiffBuild
		}
		ov, nv := old.Components[i], new.Components[i]
		if ov != nv {
			switch i {
			case 0:
				return DiffMajor
			case 1:
				return DiffMinor
			case 2:
				return DiffPatch
			default:
				return DiffBuild
			}
		}
	}

	// All positional components equal; only the build suffix differs,
	// including the "missing vs. present" case already handled by
	// Compare's Equal/Less/Greater split above.
	return DiffBuild
}

// Major, Minor report the first two numeric components, 0 when absent —
// used by lag-policy evaluation (SPEC_FULL.md §4.4).
func (v Version) Major() int {
	if len(v.Components) > 0 {
		return v.Components[0]
	}
	return 0
}

func (v Version) Minor() int {
	if len(v.Components) > 1 {
		return v.Components[1]
	}
	return 0
}
