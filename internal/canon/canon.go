// Package canon implements deterministic, kind-specific normalization of
// artifact content and the BLAKE3 hashing that drives content-addressed
// receipts.
package canon

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// Kind identifies which normalization rules apply to a piece of content.
type Kind string

const (
	KindMarkdown Kind = "markdown"
	KindYAML     Kind = "yaml"
	KindJSON     Kind = "json"
	KindText     Kind = "text"
)

// KindFromName infers a Kind from a file name's extension, defaulting to
// KindText for anything unrecognized (including the ".core.yaml" double
// extension, which is still YAML).
func KindFromName(name string) Kind {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".md"), strings.HasSuffix(lower, ".markdown"):
		return KindMarkdown
	case strings.HasSuffix(lower, ".yaml"), strings.HasSuffix(lower, ".yml"):
		return KindYAML
	case strings.HasSuffix(lower, ".json"):
		return KindJSON
	default:
		return KindText
	}
}

// Normalize applies the kind-specific deterministic normalization to text.
func Normalize(text string, kind Kind) (string, error) {
	switch kind {
	case KindYAML:
		return normalizeYAML(text)
	case KindJSON:
		return normalizeJSON(text)
	case KindMarkdown:
		return normalizeMarkdown(text), nil
	default:
		return normalizeLineEndings(text), nil
	}
}

// Hash normalizes text per kind, then returns the lowercase hex BLAKE3
// digest (full 32 bytes) of the normalized bytes.
func Hash(text string, kind Kind) (string, error) {
	normalized, err := Normalize(text, kind)
	if err != nil {
		return "", err
	}
	return hashBytes([]byte(normalized)), nil
}

func hashBytes(b []byte) string {
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// normalizeLineEndings converts CRLF/CR to LF. Used for Text and unknown
// kinds, and as the first step for Markdown.
func normalizeLineEndings(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return text
}

// normalizeMarkdown normalizes line endings, strips a leading BOM, strips
// trailing whitespace per line, and collapses runs of 3+ blank lines to one.
func normalizeMarkdown(text string) string {
	text = strings.TrimPrefix(text, "﻿")
	text = normalizeLineEndings(text)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}

	var out []string
	blankRun := 0
	for _, line := range lines {
		if line == "" {
			blankRun++
			if blankRun <= 1 {
				out = append(out, line)
			}
			continue
		}
		blankRun = 0
		out = append(out, line)
	}

	return strings.Join(out, "\n")
}

// normalizeYAML parses text, recursively sorts every mapping's keys by
// Unicode code point, drops all tags except the YAML 1.1 core schema
// (!!str, !!int, !!float, !!bool, !!null, !!map, !!seq), rejects duplicate
// mapping keys, and reserializes with fixed style: double-quoted strings,
// no aliases, no flow style, a fixed indent.
func normalizeYAML(text string) (string, error) {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(text), &root); err != nil {
		return "", fmt.Errorf("canon: yaml parse: %w", err)
	}
	if len(root.Content) == 0 {
		return "", nil
	}

	doc := root.Content[0]
	if err := canonicalizeNode(doc); err != nil {
		return "", err
	}

	var buf strings.Builder
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("canon: yaml encode: %w", err)
	}
	enc.Close()

	return strings.TrimRight(buf.String(), "\n") + "\n", nil
}

var coreSchemaTags = map[string]bool{
	"!!str": true, "!!int": true, "!!float": true, "!!bool": true,
	"!!null": true, "!!map": true, "!!seq": true,
}

func canonicalizeNode(n *yaml.Node) error {
	switch n.Kind {
	case yaml.AliasNode:
		return fmt.Errorf("canon: yaml aliases are not permitted in canonical form")
	case yaml.DocumentNode:
		for _, c := range n.Content {
			if err := canonicalizeNode(c); err != nil {
				return err
			}
		}
	case yaml.MappingNode:
		if err := rejectDuplicateKeys(n); err != nil {
			return err
		}
		type pair struct{ key, value *yaml.Node }
		pairs := make([]pair, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			pairs = append(pairs, pair{n.Content[i], n.Content[i+1]})
		}
		sort.SliceStable(pairs, func(i, j int) bool {
			return pairs[i].key.Value < pairs[j].key.Value
		})
		content := make([]*yaml.Node, 0, len(n.Content))
		for _, p := range pairs {
			if err := canonicalizeNode(p.key); err != nil {
				return err
			}
			if err := canonicalizeNode(p.value); err != nil {
				return err
			}
			content = append(content, p.key, p.value)
		}
		n.Content = content
		n.Style = 0
		normalizeTag(n, yaml.MappingNode)
	case yaml.SequenceNode:
		for _, c := range n.Content {
			if err := canonicalizeNode(c); err != nil {
				return err
			}
		}
		n.Style = 0
		normalizeTag(n, yaml.SequenceNode)
	case yaml.ScalarNode:
		normalizeScalarStyle(n)
	}
	return nil
}

func rejectDuplicateKeys(mapping *yaml.Node) error {
	seen := make(map[string]bool, len(mapping.Content)/2)
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := mapping.Content[i].Value
		if seen[key] {
			return fmt.Errorf("canon: duplicate mapping key %q at line %d", key, mapping.Content[i].Line)
		}
		seen[key] = true
	}
	return nil
}

func normalizeTag(n *yaml.Node, kind yaml.Kind) {
	if !coreSchemaTags[n.Tag] {
		if kind == yaml.MappingNode {
			n.Tag = "!!map"
		} else {
			n.Tag = "!!seq"
		}
	}
}

func normalizeScalarStyle(n *yaml.Node) {
	if !coreSchemaTags[n.Tag] {
		n.Tag = "!!str"
	}
	if n.Tag == "!!str" {
		n.Style = yaml.DoubleQuotedStyle
	} else {
		n.Style = 0
	}
}
