// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package normalize

import (
	"strings"
	"testing"
)

func TestUnwrapEnvelope(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text untouched", "hello", "hello"},
		{"envelope unwrapped", `{"response":"hi there"}`, "hi there"},
		{"envelope with whitespace", `  {"response":"hi"}  `, "hi"},
		{"escaped content kept escaped", `{"response":"hi\nthere"}`, `hi\nthere`},
		{"non-envelope JSON untouched", `{"other":"hi"}`, `{"other":"hi"}`},
		{"partial envelope untouched", `{"response":"hi"} trailing`, `{"response":"hi"} trailing`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UnwrapEnvelope(tt.input); got != tt.want {
				t.Errorf("UnwrapEnvelope(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDecodeNewlines(t *testing.T) {
	if got := DecodeNewlines(`line1\nline2`); got != "line1\nline2" {
		t.Errorf("got %q", got)
	}
}

func TestStripEscapes(t *testing.T) {
	if got := StripEscapes(`say \"hi\"`); got != `say "hi"` {
		t.Errorf("got %q", got)
	}
	if got := StripEscapes("no escapes"); got != "no escapes" {
		t.Errorf("got %q", got)
	}
}

func TestRenderBold(t *testing.T) {
	got := RenderBold("a **strong** word")
	if !strings.Contains(got, "\x1b[1mstrong\x1b[22m") {
		t.Errorf("bold span not rendered: %q", got)
	}
	if strings.Contains(got, "**") {
		t.Errorf("marker left behind: %q", got)
	}
}

func TestRenderHeadings(t *testing.T) {
	got := RenderHeadings("intro\n### Section One\nbody")
	if !strings.Contains(got, "\n\x1b[1;4mSection One\x1b[0m\n") {
		t.Errorf("heading not surrounded by line breaks: %q", got)
	}
	if strings.Contains(got, "###") {
		t.Errorf("marker left behind: %q", got)
	}
}

func TestRenderHeadingsAtEndOfInput(t *testing.T) {
	got := RenderHeadings("### Title")
	want := "\n\x1b[1;4mTitle\x1b[0m\n"
	if got != want {
		t.Errorf("RenderHeadings = %q, want %q", got, want)
	}
	if got != RenderHeadings(got) {
		t.Errorf("rendered heading changed on second pass: %q", RenderHeadings(got))
	}
}

func TestStripWrappingQuotes(t *testing.T) {
	if got := StripWrappingQuotes(`"quoted"`); got != "quoted" {
		t.Errorf("got %q", got)
	}
	if got := StripWrappingQuotes(`not "quoted"`); got != `not "quoted"` {
		t.Errorf("got %q", got)
	}
	// A doubly wrapped string loses at most one pair.
	if got := StripWrappingQuotes(`""hi""`); got != `""hi""` {
		t.Errorf("got %q", got)
	}
}

func TestNormalizeEnvelope(t *testing.T) {
	got := Normalize(`{"response":"hi\nthere"}`)
	if got != "hi\nthere" {
		t.Errorf("Normalize = %q, want %q", got, "hi\nthere")
	}
}

func TestNormalizeComposite(t *testing.T) {
	in := `{"response":"### Results\n**Done.** All \"checks\" passed."}`
	got := Normalize(in)

	if strings.Contains(got, `\n`) || strings.Contains(got, "**") || strings.Contains(got, "###") {
		t.Errorf("markers remain after normalization: %q", got)
	}
	if !strings.Contains(got, "\x1b[1;4mResults\x1b[0m\n") {
		t.Errorf("heading missing its trailing break: %q", got)
	}
	if !strings.Contains(got, "\x1b[1mDone.\x1b[22m") {
		t.Errorf("bold missing: %q", got)
	}
	if !strings.Contains(got, `"checks"`) {
		t.Errorf("escaped quotes not decoded: %q", got)
	}
}

func TestNormalizeHeadingOnly(t *testing.T) {
	got := Normalize("### Title")
	want := "\n\x1b[1;4mTitle\x1b[0m\n"
	if got != want {
		t.Errorf("Normalize = %q, want %q", got, want)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		`{"response":"hi\nthere"}`,
		"plain text",
		"**bold** and ### Heading\ntext",
		`"wrapped"`,
		"already\nnormalized text",
		"",
	}

	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}
