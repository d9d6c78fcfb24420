// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package export renders answers as JSON, YAML, or markdown, and the
// papers they cite as BibTeX or CSL-YAML.
package export

import (
	"encoding/json"
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/scholarqa/pkg/types"
)

// Format is an answer output format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts "json", "yaml", "yml", "markdown", and "md".
func ParseFormat(s string) (Format, error) {
	switch s {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown format %q (want json, yaml, or markdown)", s)
	}
}

// Write renders r to w in format f.
func Write(r *types.TaskResult, f Format, w io.Writer) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(r)
	case FormatMarkdown:
		_, err := io.WriteString(w, Markdown(r))
		return err
	default:
		return fmt.Errorf("unknown format %q", f)
	}
}
