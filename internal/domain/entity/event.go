package entity

// ScanEventType enumerates scan lifecycle events delivered to the reporting
// boundary alongside the per-block reports.
type ScanEventType string

const (
	ScanStarted   ScanEventType = "started"
	ScanProgress  ScanEventType = "progress"
	ScanCompleted ScanEventType = "completed"
	ScanAborted   ScanEventType = "aborted"
	ScanCancelled ScanEventType = "cancelled"
)

// ScanEvent is a lifecycle notification. Block is set for progress events;
// Reason is set for aborted events.
type ScanEvent struct {
	Type   ScanEventType `json:"type"`
	Block  *BlockRef     `json:"block,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

// BlockFailure is the terminal marker for a block whose pipeline could not
// produce a DiffReport: too few endpoints answered, or every payload was
// malformed. Errors captures the per-endpoint detail.
type BlockFailure struct {
	Ref    BlockRef          `json:"block"`
	Reason string            `json:"reason"`
	Errors map[string]string `json:"errors,omitempty"`
}
