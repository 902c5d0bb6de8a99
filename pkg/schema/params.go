package schema

// Params is the per-invocation configuration map a parent flow hands to
// the node it is about to run. Distinct from Shared: params are scalar
// configuration for one pass (e.g. a batch item's identifier), read-only
// from the node's perspective during that invocation.
type Params map[string]any

// Clone returns an independent copy of the params map.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// MergeOver returns a new Params with p laid over base: keys present in
// both take p's value.
func (p Params) MergeOver(base Params) Params {
	out := make(Params, len(base)+len(p))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range p {
		out[k] = v
	}
	return out
}

// String returns the value for key as a string, or "" if absent or not
// a string.
func (p Params) String(key string) string {
	v, _ := p[key].(string)
	return v
}

// Int returns the value for key as an int, or 0 if absent or not an
// integer-typed value.
func (p Params) Int(key string) int {
	switch n := p[key].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
