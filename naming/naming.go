// Package naming derives filesystem-safe names and archive identifiers
// from raw video metadata. Every function is pure and deterministic.
package naming

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxIdentifierLen is the hard length limit the archive backend places on
// item identifiers.
const MaxIdentifierLen = 80

var (
	bracketTag    = regexp.MustCompile(`\s\[[^\]]*\]`)
	nonAlnumRun   = regexp.MustCompile(`[^\da-zA-Z]+`)
	underscoreRun = regexp.MustCompile(`_{2,}`)
)

// Clean reduces a raw title to the safe character set [0-9a-zA-Z_]:
// non-printable and non-ASCII runes become underscores, the first
// bracketed annotation group (" [1080p]") is stripped, runs of other
// characters collapse to a single underscore, and leading/trailing
// underscores are trimmed. Clean is idempotent.
func Clean(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range title {
		if r >= 0x20 && r <= 0x7e || r == '\t' || r == '\n' || r == '\r' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	name := b.String()
	// Only the first group is an annotation; later bracketed text is
	// part of the title and must survive (as underscored words) so
	// distinct titles keep distinct identifiers.
	if loc := bracketTag.FindStringIndex(name); loc != nil {
		name = name[:loc[0]] + name[loc[1]:]
	}
	name = nonAlnumRun.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	return underscoreRun.ReplaceAllString(name, "_")
}

// SplitDate splits a YYYYMMDD upload date into year, month and day.
// Malformed input falls back to zeroed parts so naming stays total.
func SplitDate(uploadDate string) (year, month, day string) {
	if len(uploadDate) != 8 {
		return "0000", "00", "00"
	}
	return uploadDate[:4], uploadDate[4:6], uploadDate[6:]
}

// BaseName builds the local artifact base name, date-prefixed so listing
// a directory sorts by upload order.
func BaseName(uploadDate, title string) string {
	y, m, d := SplitDate(uploadDate)
	return fmt.Sprintf("%s-%s-%s__%s", y, m, d, Clean(title))
}

// Identifier builds the globally unique archive identifier
// {date}_{channel}_{truncated title}, never longer than MaxIdentifierLen
// and containing no spaces.
func Identifier(uploadDate, channelName, title string) string {
	y, m, d := SplitDate(uploadDate)
	prefix := fmt.Sprintf("%s-%s-%s_%s", y, m, d, channelName)

	clean := Clean(title)
	left := MaxIdentifierLen - (len(prefix) + 1)
	switch {
	case left <= 0:
		if len(prefix) > MaxIdentifierLen {
			prefix = prefix[:MaxIdentifierLen]
		}
		prefix = strings.TrimRight(prefix, "_")
	case left < len(clean):
		// Truncation can land right after a separator; a trailing
		// underscore is noise, not title.
		prefix = prefix + "_" + strings.TrimRight(clean[:left], "_")
	default:
		prefix = prefix + "_" + clean
	}
	return strings.TrimSpace(strings.ReplaceAll(prefix, " ", ""))
}
