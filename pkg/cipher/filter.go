package cipher

import "strings"

// Schema describes which fields of a response a given endpoint may filter.
// Root and Required fields are kept regardless of Include; Optional fields
// are kept when Include is empty or names them. Apply does not consult
// Selection.Tags.
type Schema struct {
	Root     []string
	Required []string
	Optional []string
}

// Selection is the caller-supplied field selection, parsed from the
// include, exclude, and tags query parameters.
type Selection struct {
	Include []string
	Exclude []string
	Tags    []string
}

// ParseSelection parses comma-separated include/exclude/tags query values.
func ParseSelection(include, exclude, tags string) Selection {
	return Selection{
		Include: splitCSV(include),
		Exclude: splitCSV(exclude),
		Tags:    splitCSV(tags),
	}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Apply returns a filtered copy of a JSON-shaped map (body itself is not
// modified) per schema and sel: root fields
// always survive; required fields always survive; optional fields survive
// only if selected via Include (or no Include list was given, i.e. the
// caller did not ask to narrow the response); anything in Exclude is
// dropped last, even a root field, since an explicit exclude is a stronger
// signal than the schema's defaults.
func Apply(body map[string]any, schema Schema, sel Selection) map[string]any {
	keep := make(map[string]bool, len(body))
	for _, f := range schema.Root {
		keep[f] = true
	}
	for _, f := range schema.Required {
		keep[f] = true
	}

	wantOptional := len(sel.Include) == 0
	includeSet := toSet(sel.Include)
	for _, f := range schema.Optional {
		if wantOptional || includeSet[f] {
			keep[f] = true
		}
	}

	// Any explicitly included field not in the schema at all is still
	// honored, since schemas describe known optional fields, not a
	// closed universe of what a caller may ask for.
	for f := range includeSet {
		keep[f] = true
	}

	excludeSet := toSet(sel.Exclude)

	out := make(map[string]any, len(body))
	for k, v := range body {
		if !keep[k] {
			continue
		}
		if excludeSet[k] {
			continue
		}
		out[k] = v
	}
	return out
}

func toSet(xs []string) map[string]bool {
	m := make(map[string]bool, len(xs))
	for _, x := range xs {
		m[x] = true
	}
	return m
}
