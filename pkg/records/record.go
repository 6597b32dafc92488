// Package records defines the loosely-typed record shape emitted by format
// readers before normalization.
package records

// Record is one source record as a reader decoded it. Values are usually
// strings, but readers that understand structure (JSON, XML) may emit nested
// map[string]any and []any values; the normalizer flattens those.
type Record map[string]any
