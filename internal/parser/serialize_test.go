package parser

import (
	"reflect"
	"testing"
	"time"
)

func TestSerialize_RoundTrip(t *testing.T) {
	published := false
	cases := []struct {
		name string
		meta Meta
		body string
	}{
		{name: "empty", meta: Meta{}, body: "body\n"},
		{
			name: "all recognized keys",
			meta: Meta{
				Layout:      "article",
				Title:       "Why `auto` is {% raw %}fine{% endraw %}",
				Description: "true",
				Tags:        []string{"cpp"},
				Date:        time.Date(2014, 6, 19, 0, 0, 0, 0, time.UTC),
				Permalink:   "/cpp/auto/",
				Published:   &published,
			},
			body: "<p>{% post_url other %}</p>\n",
		},
		{
			name: "single label with a space",
			meta: Meta{Tags: []string{"error handling"}},
			body: "b",
		},
		{
			name: "label set with spaces",
			meta: Meta{Tags: []string{"error handling", "cpp"}},
			body: "b",
		},
		{
			name: "tag set and extras",
			meta: Meta{
				Layout: "default",
				Tags:   []string{"cpp", "deprecation"},
				Extra: map[string]any{
					"comments": true,
					"order":    3,
					"authors":  []any{"a", "b"},
				},
			},
			body: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := Serialize(tc.meta, tc.body)
			if err != nil {
				t.Fatalf("Serialize: %v", err)
			}
			r, err := Parse(raw, Options{})
			if err != nil {
				t.Fatalf("Parse(%q): %v", raw, err)
			}
			if r.Body != tc.body {
				t.Errorf("body = %q, want %q", r.Body, tc.body)
			}
			got, want := r.Meta, tc.meta
			if !got.Date.Equal(want.Date) {
				t.Errorf("date = %v, want %v", got.Date, want.Date)
			}
			got.Date, want.Date = time.Time{}, time.Time{}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("meta = %+v, want %+v", got, want)
			}

			again, err := Serialize(r.Meta, r.Body)
			if err != nil {
				t.Fatalf("Serialize again: %v", err)
			}
			if string(again) != string(raw) {
				t.Errorf("not idempotent:\n%s\n%s", raw, again)
			}
		})
	}
}
