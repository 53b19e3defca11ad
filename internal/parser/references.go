package parser

import (
	"regexp"
	"strings"
)

// postURLRe matches {% post_url fragment %}, with optional {%- -%} trim
// markers. The fragment never spans a closing %}; a placeholder without one
// yields an empty fragment.
var postURLRe = regexp.MustCompile(`\{%-?\s*post_url(?:\s+([^%]*?))?\s*-?%\}`)

// References returns the post_url fragments found in body, deduplicated, in
// order of first appearance.
func References(body string) []string {
	matches := postURLRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		frag := strings.TrimSpace(m[1])
		if frag == "" {
			continue
		}
		if _, ok := seen[frag]; ok {
			continue
		}
		seen[frag] = struct{}{}
		out = append(out, frag)
	}
	return out
}

// ReplaceReferences substitutes every post_url placeholder in body with the
// value returned by fn. It stops at the first error.
func ReplaceReferences(body string, fn func(fragment string) (string, error)) (string, error) {
	locs := postURLRe.FindAllStringSubmatchIndex(body, -1)
	if len(locs) == 0 {
		return body, nil
	}

	var b strings.Builder
	b.Grow(len(body))
	last := 0
	for _, loc := range locs {
		var frag string
		if loc[2] >= 0 {
			frag = strings.TrimSpace(body[loc[2]:loc[3]])
		}
		repl, err := fn(frag)
		if err != nil {
			return "", err
		}
		b.WriteString(body[last:loc[0]])
		b.WriteString(repl)
		last = loc[1]
	}
	b.WriteString(body[last:])
	return b.String(), nil
}
