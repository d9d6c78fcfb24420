// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/scholarqa/pkg/types"
)

func TestSafeJSON(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr bool
	}{
		{"plain", `{"quotes": ["a", "b"]}`, []string{"a", "b"}, false},
		{"fenced", "```json\n{\"quotes\": [\"a\"]}\n```", []string{"a"}, false},
		{"prose around", `Here you go: {"quotes": ["x]y"]} Hope this helps {`, []string{"x]y"}, false},
		{"escaped quote in string", `noise {"quotes": ["say \"hi}\""]}`, []string{`say "hi}"`}, false},
		{"no json", `I could not find anything.`, nil, true},
		{"unbalanced", `{"quotes": ["a"]`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out Quotes
			err := SafeJSON(tt.raw, &out)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Quotes)
		})
	}
}

func TestParseSectionText(t *testing.T) {
	text := "## Retrieval Methods (list)\n**TLDR:** Dense and sparse retrievers trade off recall.\n\n- Dense retrievers [1 | A | 2020 | Citations: 3]\n- Sparse retrievers"

	st, err := ParseSectionText(text)
	require.NoError(t, err)
	assert.Equal(t, "Retrieval Methods", st.Title)
	assert.Equal(t, types.FormatList, st.Format)
	assert.Equal(t, "Dense and sparse retrievers trade off recall.", st.TLDR)
	assert.Equal(t, "- Dense retrievers [1 | A | 2020 | Citations: 3]\n- Sparse retrievers", st.Body)
}

func TestParseSectionTextSynthesis(t *testing.T) {
	st, err := ParseSectionText("Background (synthesis)\nTLDR: Short.\nLong text.")
	require.NoError(t, err)
	assert.Equal(t, "Background", st.Title)
	assert.Equal(t, types.FormatProse, st.Format)
	assert.Equal(t, "Short.", st.TLDR)
	assert.Equal(t, "Long text.", st.Body)
}

func TestParseSectionTextMalformed(t *testing.T) {
	for _, text := range []string{
		"No summary line at all.",
		"TLDR: summary only\nbody",
		"Title\nTLDR: summary but no body",
	} {
		_, err := ParseSectionText(text)
		assert.True(t, errors.Is(err, ErrMalformed), "text %q: err = %v", text, err)
	}
}
