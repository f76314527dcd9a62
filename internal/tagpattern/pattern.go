// Package tagpattern implements the Tag-Pattern Inducer (SPEC_FULL.md
// §4.2): deriving a regular-language filter from a reference tag.
package tagpattern

import (
	"regexp"
	"strings"
)

var digitRun = regexp.MustCompile(`\d+`)

// Pattern is the regular expression induced from a reference tag, with
// every numeric run replaced by a digit-placeholder.
type Pattern struct {
	Reference string
	regex     *regexp.Regexp
}

// Induce builds a Pattern from the currently-running container's tag by
// replacing every numeric run with `\d+` and keeping everything else
// literal, per §4.2.
func Induce(referenceTag string) Pattern {
	var b strings.Builder
	b.WriteString("^")

	last := 0
	for _, loc := range digitRun.FindAllStringIndex(referenceTag, -1) {
		b.WriteString(regexp.QuoteMeta(referenceTag[last:loc[0]]))
		b.WriteString(`\d+`)
		last = loc[1]
	}
	b.WriteString(regexp.QuoteMeta(referenceTag[last:]))
	b.WriteString("$")

	return Pattern{
		Reference: referenceTag,
		regex:     regexp.MustCompile(b.String()),
	}
}

// Matches reports whether tag conforms to the induced shape.
func (p Pattern) Matches(tag string) bool {
	return p.regex.MatchString(tag)
}

// Filter returns the subset of tags matching p, preserving order.
func (p Pattern) Filter(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if p.Matches(t) {
			out = append(out, t)
		}
	}
	return out
}
