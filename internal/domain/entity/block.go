package entity

import "fmt"

// BlockRef identifies a block either by height or by content hash.
// A zero Hash means the block is identified by Number.
type BlockRef struct {
	Number int64  `json:"number"`
	Hash   string `json:"hash,omitempty"`
}

// NumberRef creates a BlockRef identified by height.
func NumberRef(number int64) BlockRef {
	return BlockRef{Number: number}
}

// HashRef creates a BlockRef identified by content hash.
func HashRef(hash string) BlockRef {
	return BlockRef{Number: -1, Hash: hash}
}

// ByHash reports whether the block is identified by hash rather than height.
func (r BlockRef) ByHash() bool {
	return r.Hash != ""
}

func (r BlockRef) String() string {
	if r.ByHash() {
		return r.Hash
	}
	return fmt.Sprintf("%d", r.Number)
}
