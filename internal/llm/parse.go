// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/pdiddy/scholarqa/pkg/types"
)

// SafeJSON decodes the first JSON object or array in raw into out. Code
// fences and any prose around the JSON are ignored.
func SafeJSON(raw string, out any) error {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	if err := json.Unmarshal([]byte(s), out); err == nil {
		return nil
	}
	slice, ok := firstBalanced(s)
	if !ok {
		return fmt.Errorf("no JSON value in model output")
	}
	if err := json.Unmarshal([]byte(slice), out); err != nil {
		return fmt.Errorf("parsing model JSON: %w", err)
	}
	return nil
}

// firstBalanced returns the first balanced {...} or [...] slice of s,
// skipping brackets inside JSON strings.
func firstBalanced(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}
	var stack []byte
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, ch)
		case '}', ']':
			if len(stack) == 0 {
				return "", false
			}
			open := stack[len(stack)-1]
			if (open == '{' && ch != '}') || (open == '[' && ch != ']') {
				return "", false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// SectionText is a parsed section reply.
type SectionText struct {
	Title  string
	Format types.SectionFormat
	TLDR   string
	Body   string
}

var (
	formatTagRe = regexp.MustCompile(`(?i)\s*\((list|synthesis)\)`)
	tldrRe      = regexp.MustCompile(`(?i)\S*tldr\S*`)
)

// ParseSectionText splits a section reply into title, TLDR, and body. The
// first line is the title, optionally tagged "(list)" or "(synthesis)";
// the TLDR follows the first token containing "TLDR" up to the end of its
// line; the rest is the body.
func ParseSectionText(text string) (SectionText, error) {
	loc := tldrRe.FindStringIndex(text)
	if loc == nil {
		return SectionText{}, fmt.Errorf("%w: section has no TLDR line", ErrMalformed)
	}

	head := strings.TrimSpace(text[:loc[0]])
	rest := strings.TrimSpace(text[loc[1]:])
	tldr, body, _ := strings.Cut(rest, "\n")

	st := SectionText{Format: types.FormatProse}
	if m := formatTagRe.FindStringSubmatch(head); m != nil {
		st.Format = types.ParseSectionFormat(strings.ToLower(m[1]))
	}
	st.Title = strings.TrimSpace(strings.Trim(formatTagRe.ReplaceAllString(head, ""), "#* "))
	st.TLDR = strings.TrimSpace(strings.Trim(tldr, "#*: "))
	st.Body = strings.TrimSpace(body)
	if st.Title == "" || st.Body == "" {
		return SectionText{}, fmt.Errorf("%w: section is missing a title or body", ErrMalformed)
	}
	return st, nil
}
