package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// yamlToJSON re-encodes a YAML document as JSON so the strict JSON decoder
// (unknown fields rejected) handles both formats. Errors carry the YAML line.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return []byte("{}"), nil
	}
	v, err := nodeValue(doc.Content[0])
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func nodeValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return nodeValue(n.Alias)
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("yaml line %d: %w", n.Line, err)
		}
		return v, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := nodeValue(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		if err := mergeMapping(out, n, false); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("yaml line %d: unsupported node", n.Line)
	}
}

// mergeMapping copies the pairs of n into out. "<<" merge keys are expanded;
// merged values never override keys set explicitly.
func mergeMapping(out map[string]any, n *yaml.Node, merged bool) error {
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("yaml line %d: merge value must be a mapping", n.Line)
	}
	seen := make(map[string]bool, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, val := n.Content[i], n.Content[i+1]
		if k.Kind != yaml.ScalarNode {
			return fmt.Errorf("yaml line %d: mapping keys must be scalars", k.Line)
		}
		if k.Value == "<<" && k.Tag == "!!merge" {
			if err := mergeMappingOrList(out, val); err != nil {
				return err
			}
			continue
		}
		if seen[k.Value] {
			return fmt.Errorf("yaml line %d: duplicate key %q", k.Line, k.Value)
		}
		seen[k.Value] = true
		if _, set := out[k.Value]; set && merged {
			continue
		}
		v, err := nodeValue(val)
		if err != nil {
			return err
		}
		out[k.Value] = v
	}
	return nil
}

func mergeMappingOrList(out map[string]any, val *yaml.Node) error {
	if val.Kind != yaml.SequenceNode {
		return mergeMapping(out, val, true)
	}
	for _, c := range val.Content {
		if err := mergeMapping(out, c, true); err != nil {
			return err
		}
	}
	return nil
}
