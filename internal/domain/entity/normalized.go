package entity

// ValueKind is the canonical JSON-level type of a normalized value.
type ValueKind string

const (
	KindQuantity ValueKind = "quantity" // hex- or JSON-number, canonicalized to decimal
	KindData     ValueKind = "data"     // hex byte string, lower-cased
	KindString   ValueKind = "string"   // plain string
	KindBool     ValueKind = "bool"
	KindNull     ValueKind = "null"
)

// CanonicalValue is a single field value after canonicalization. Two values
// are equal exactly when Kind and Canon match; Raw preserves the original
// rendering for triage context.
type CanonicalValue struct {
	Kind  ValueKind `json:"kind"`
	Canon string    `json:"canon"`
	Raw   string    `json:"raw,omitempty"`
}

// Equal reports canonical equality, ignoring the raw rendering.
func (v CanonicalValue) Equal(other CanonicalValue) bool {
	return v.Kind == other.Kind && v.Canon == other.Canon
}

// NormalizedBlock is the comparison-stable form of one endpoint's payloads
// for one block: a flat mapping from field path to canonical value.
// Two NormalizedBlocks are comparison-eligible only when derived from the
// same BlockRef.
type NormalizedBlock struct {
	Endpoint string
	Ref      BlockRef
	Fields   map[string]CanonicalValue
}
