package normalize

import (
	"regexp"
)

// FieldClass determines how a field participates in comparison.
type FieldClass string

const (
	// ClassCompare fields must match exactly after canonicalization.
	ClassCompare FieldClass = "compare"

	// ClassIgnore fields are endpoint-specific and never compared.
	ClassIgnore FieldClass = "ignore"

	// ClassInformational fields are carried into diffs for context but do
	// not trigger a mismatch by themselves.
	ClassInformational FieldClass = "informational"
)

// Policy is the explicit field table driving normalization and comparison.
// Lookups use generic paths: concrete array indices collapse to "[]", so
// "receipts[3].logs[0].data" is looked up as "receipts[].logs[].data".
type Policy struct {
	classes  map[string]FieldClass
	quantity map[string]bool   // generic paths holding hex quantities
	setKeys  map[string]string // unordered array paths -> element sort key
	required []string          // block fields that must be present and typed
}

var indexPattern = regexp.MustCompile(`\[\d+\]`)

// GenericPath collapses concrete array indices in a field path.
func GenericPath(path string) string {
	return indexPattern.ReplaceAllString(path, "[]")
}

// DefaultPolicy returns the policy for standard execution-layer block and
// receipt payloads. Consensus fields compare; size and totalDifficulty are
// node-local enough to be informational; log arrays are sets ordered by
// logIndex.
func DefaultPolicy() *Policy {
	return &Policy{
		classes: map[string]FieldClass{
			"size":            ClassInformational,
			"totalDifficulty": ClassInformational,
		},
		quantity: map[string]bool{
			"number":          true,
			"gasUsed":         true,
			"gasLimit":        true,
			"baseFeePerGas":   true,
			"timestamp":       true,
			"difficulty":      true,
			"totalDifficulty": true,
			"size":            true,
			"blobGasUsed":     true,
			"excessBlobGas":   true,

			"transactions[].nonce":                true,
			"transactions[].gas":                  true,
			"transactions[].gasPrice":             true,
			"transactions[].maxFeePerGas":         true,
			"transactions[].maxPriorityFeePerGas": true,
			"transactions[].value":                true,
			"transactions[].blockNumber":          true,
			"transactions[].transactionIndex":     true,
			"transactions[].type":                 true,
			"transactions[].chainId":              true,
			"transactions[].v":                    true,
			"transactions[].yParity":              true,
			"transactions[].maxFeePerBlobGas":     true,

			// Signature components are quantities: some clients zero-pad
			// them to 32 bytes, others trim.
			"transactions[].r": true,
			"transactions[].s": true,

			"withdrawals[].index":          true,
			"withdrawals[].validatorIndex": true,
			"withdrawals[].amount":         true,

			"receipts[].cumulativeGasUsed":        true,
			"receipts[].gasUsed":                  true,
			"receipts[].effectiveGasPrice":        true,
			"receipts[].blobGasUsed":              true,
			"receipts[].blobGasPrice":             true,
			"receipts[].transactionIndex":         true,
			"receipts[].blockNumber":              true,
			"receipts[].status":                   true,
			"receipts[].type":                     true,
			"receipts[].logs[].logIndex":          true,
			"receipts[].logs[].transactionIndex":  true,
			"receipts[].logs[].blockNumber":       true,
		},
		setKeys: map[string]string{
			"receipts[].logs": "logIndex",
		},
		required: []string{"number", "hash", "parentHash", "stateRoot", "gasUsed", "gasLimit", "timestamp"},
	}
}

// Override applies a class override for a generic path. Used by the
// configuration boundary to extend or relax the default table.
func (p *Policy) Override(genericPath string, class FieldClass) {
	p.classes[genericPath] = class
}

// ClassFor returns the comparison class for a field path.
func (p *Policy) ClassFor(path string) FieldClass {
	if class, ok := p.classes[GenericPath(path)]; ok {
		return class
	}
	return ClassCompare
}

// IsQuantityField reports whether the path is a declared hex quantity.
func (p *Policy) IsQuantityField(path string) bool {
	return p.quantity[GenericPath(path)]
}

// SetKey returns the sort key for a declared unordered array, or "" when the
// array is positional.
func (p *Policy) SetKey(path string) string {
	return p.setKeys[GenericPath(path)]
}

// RequiredFields lists the block fields that must be present and typeable.
func (p *Policy) RequiredFields() []string {
	return p.required
}
