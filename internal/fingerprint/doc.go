// Package fingerprint normalises upstream payloads (nested maps produced by
// decoding arbitrary JSON) and computes stable, non-cryptographic content
// hashes used purely for change detection (spec.md §4.1).
//
// Every payload in this package is represented as the result of decoding
// JSON into Go values: map[string]any, []any, string, float64, bool, nil.
// That is the shape encoding/json produces and the shape every example
// repo's ad-hoc JSON handling works with, so there is no dedicated DTO
// layer here — a typed struct would need a case for every upstream field
// the feed might ever add, which the spec explicitly says is not ours to
// enumerate.
package fingerprint
