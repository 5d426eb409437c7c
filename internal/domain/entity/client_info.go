package entity

// ClientType identifies a known execution-client implementation.
type ClientType string

const (
	ClientGeth       ClientType = "geth"
	ClientNethermind ClientType = "nethermind"
	ClientErigon     ClientType = "erigon"
	ClientBesu       ClientType = "besu"
	ClientReth       ClientType = "reth"
	ClientNimbus     ClientType = "nimbus"
	ClientUnknown    ClientType = "unknown"
)

// ClientInfo is the implementation identity behind an endpoint, detected
// from its web3_clientVersion string. Attached to reports for triage
// context only.
type ClientInfo struct {
	Type    ClientType `json:"type"`
	Name    string     `json:"name"`
	Version string     `json:"version,omitempty"`
	Raw     string     `json:"raw,omitempty"`
}
