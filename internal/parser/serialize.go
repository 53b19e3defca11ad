package parser

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Serialize writes meta as a fenced front matter block followed by body.
// Recognized keys come first in a fixed order, extra keys follow sorted by
// name, so Parse(Serialize(m, b)) yields m and b again.
func Serialize(meta Meta, body string) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key string, val *yaml.Node) {
		root.Content = append(root.Content, strNode(key), val)
	}

	if meta.Layout != "" {
		add(KeyLayout, strNode(meta.Layout))
	}
	if meta.Title != "" {
		add(KeyTitle, strNode(meta.Title))
	}
	if meta.Description != "" {
		add(KeyDescription, strNode(meta.Description))
	}
	switch len(meta.Tags) {
	case 0:
	case 1:
		add(KeyTag, strNode(meta.Tags[0]))
	default:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, t := range meta.Tags {
			seq.Content = append(seq.Content, strNode(t))
		}
		add(KeyTags, seq)
	}
	if !meta.Date.IsZero() {
		add(KeyDate, strNode(formatDate(meta.Date)))
	}
	if meta.Permalink != "" {
		add(KeyPermalink, strNode(meta.Permalink))
	}
	if meta.Published != nil {
		add(KeyPublished, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(*meta.Published)})
	}

	keys := make([]string, 0, len(meta.Extra))
	for k := range meta.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n, err := nodeFromAny(meta.Extra[k])
		if err != nil {
			return nil, fmt.Errorf("parser: serialize %s: %w", k, err)
		}
		add(k, n)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	if len(root.Content) > 0 {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(root); err != nil {
			_ = enc.Close()
			return nil, fmt.Errorf("parser: serialize: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("parser: serialize: %w", err)
		}
	}
	buf.WriteString("---\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}

func formatDate(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 && t.Location() == time.UTC {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}

func strNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func nodeFromAny(v any) (*yaml.Node, error) {
	switch vv := v.(type) {
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	case string:
		return strNode(vv), nil
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(vv)}, nil
	case int:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(vv)}, nil
	case []any:
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		for _, item := range vv {
			n, err := nodeFromAny(item)
			if err != nil {
				return nil, err
			}
			seq.Content = append(seq.Content, n)
		}
		return seq, nil
	case map[string]any:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := &yaml.Node{Kind: yaml.MappingNode}
		for _, k := range keys {
			n, err := nodeFromAny(vv[k])
			if err != nil {
				return nil, err
			}
			m.Content = append(m.Content, strNode(k), n)
		}
		return m, nil
	default:
		var n yaml.Node
		if err := n.Encode(v); err != nil {
			return nil, err
		}
		return &n, nil
	}
}
