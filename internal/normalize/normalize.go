// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package normalize cleans raw upstream response text for terminal display.
//
// Upstream replies sometimes arrive double-encoded: the whole reply wrapped
// in a {"response":"..."} JSON envelope, newlines as literal \n sequences,
// and markdown markers left inline. Normalize applies a fixed sequence of
// pure rewrite steps so the cleaned text renders correctly. Applying
// Normalize to already-normalized text leaves it unchanged, except for
// escaped backslash runs (see StripEscapes).
package normalize

import (
	"regexp"
	"strings"
)

// ANSI sequences used for inline rendering. Raw constants keep the pipeline
// deterministic regardless of terminal profile.
const (
	ansiBold    = "\x1b[1m"
	ansiBoldOff = "\x1b[22m"
	ansiHeading = "\x1b[1;4m"
	ansiReset   = "\x1b[0m"
)

var (
	envelopeRe = regexp.MustCompile(`^\s*\{\s*"response"\s*:\s*"([\s\S]*)"\s*\}\s*$`)
	escapeRe   = regexp.MustCompile(`\\(.)`)
	boldRe     = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	headingRe  = regexp.MustCompile(`(?m)^###\s+(.+)$`)
)

// Normalize applies all cleanup steps in order and returns the display text.
func Normalize(s string) string {
	s = UnwrapEnvelope(s)
	s = DecodeNewlines(s)
	s = StripEscapes(s)
	s = RenderBold(s)
	s = RenderHeadings(s)
	s = StripWrappingQuotes(s)
	return s
}

// UnwrapEnvelope removes a {"response":"..."} JSON envelope wrapping the
// entire text. The inner value is returned still escaped; later steps decode
// it. Text that is not exactly an envelope passes through unchanged.
func UnwrapEnvelope(s string) string {
	m := envelopeRe.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	return m[1]
}

// DecodeNewlines converts literal \n two-character sequences into newlines.
func DecodeNewlines(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}

// StripEscapes removes the backslash from any remaining \X escape sequence,
// keeping the escaped character. Runs of escaped backslashes lose one level
// of escaping per application, so text containing \\ is the one input class
// where repeated normalization keeps rewriting.
func StripEscapes(s string) string {
	return escapeRe.ReplaceAllString(s, "$1")
}

// RenderBold converts **text** spans to ANSI bold.
func RenderBold(s string) string {
	return boldRe.ReplaceAllString(s, ansiBold+"$1"+ansiBoldOff)
}

// RenderHeadings converts ### heading lines to an underlined bold line with
// a line break on each side. Rendered headings no longer start with ###, so
// repeated application leaves them alone.
func RenderHeadings(s string) string {
	return headingRe.ReplaceAllString(s, "\n"+ansiHeading+"$1"+ansiReset+"\n")
}

// StripWrappingQuotes removes a single symmetric pair of double quotes
// wrapping the whole text. The pair is only removed when the inner text is
// not itself quote-wrapped, so repeated application strips at most one pair.
func StripWrappingQuotes(s string) string {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return s
	}
	inner := s[1 : len(s)-1]
	if len(inner) >= 2 && inner[0] == '"' && inner[len(inner)-1] == '"' {
		return s
	}
	return inner
}
