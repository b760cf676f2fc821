package render

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"
)

// TruncateLength is the number of characters kept from a long item label.
const TruncateLength = 97

const ellipsis = "..."

var imageTag = regexp.MustCompile(`(?i)<img[^>]+>`)

// StripLabelMarkup removes every tag except <img> from s. Text is kept verbatim,
// including entities; the content of script and style elements is dropped.
func StripLabelMarkup(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return b.String()
		}
		raw := append([]byte(nil), z.Raw()...)
		switch tt {
		case html.TextToken:
			if skip == 0 {
				b.Write(raw)
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Img:
				if skip == 0 {
					b.Write(raw)
				}
			case atom.Script, atom.Style:
				if tt == html.StartTagToken {
					skip++
				}
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if a := atom.Lookup(name); (a == atom.Script || a == atom.Style) && skip > 0 {
				skip--
			}
		}
	}
}

// HasImage reports whether s contains an image tag, in any letter case.
func HasImage(s string) bool {
	return strings.Contains(strings.ToLower(s), "<img")
}

// ReplaceImagesWithPlaceholder substitutes placeholder for every image tag in s.
// Text without an image tag is returned unchanged.
func ReplaceImagesWithPlaceholder(s, placeholder string) string {
	if !HasImage(s) {
		return s
	}
	return imageTag.ReplaceAllLiteralString(s, placeholder)
}

// HTMLToText renders markup as a single line of plain text.
func HTMLToText(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken, html.EndTagToken:
			name, _ := z.TagName()
			switch a := atom.Lookup(name); a {
			case atom.Script, atom.Style:
				if tt == html.StartTagToken {
					skip++
				} else if tt == html.EndTagToken && skip > 0 {
					skip--
				}
			case atom.Br, atom.P, atom.Div, atom.Li, atom.Tr, atom.Td, atom.Th,
				atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
				b.WriteByte(' ')
			}
		}
	}
}

// Truncate shortens s to limit characters plus an ellipsis when it has at least
// limit characters. Characters are counted on the NFC form of s. Shorter text
// is returned as given apart from invalid UTF-8, which is always replaced so
// the result is valid and a cut never lands inside a character.
func Truncate(s string, limit int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	composed := norm.NFC.String(s)
	if utf8.RuneCountInString(composed) < limit {
		return s
	}
	s = composed
	cut := len(s)
	n := 0
	for i := range s {
		if n == limit {
			cut = i
			break
		}
		n++
	}
	return strings.TrimSpace(s[:cut]) + ellipsis
}

// FormatString is the default display formatter for directory names: NFC form
// with runs of whitespace collapsed.
func FormatString(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
