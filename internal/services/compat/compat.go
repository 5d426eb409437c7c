// Package compat detects which execution-client implementation sits behind
// an endpoint from its web3_clientVersion string. The result is triage
// context attached to endpoint identity, never part of comparison.
package compat

import (
	"strings"

	"github.com/archon-research/jsonrpc-scan/internal/domain/entity"
)

// knownClients maps a lower-cased version-string prefix to the client type.
// Order matters only for the display name casing.
var knownClients = []struct {
	prefix string
	typ    entity.ClientType
	name   string
}{
	{"geth", entity.ClientGeth, "Geth"},
	{"nethermind", entity.ClientNethermind, "Nethermind"},
	{"erigon", entity.ClientErigon, "Erigon"},
	{"besu", entity.ClientBesu, "Besu"},
	{"reth", entity.ClientReth, "Reth"},
	{"nimbus", entity.ClientNimbus, "Nimbus"},
}

// Detect parses a web3_clientVersion string such as
// "Geth/v1.13.0-stable/linux-amd64/go1.21.0" into a ClientInfo.
// Unrecognised implementations come back as ClientUnknown with the first
// path segment as the name.
func Detect(raw string) entity.ClientInfo {
	info := entity.ClientInfo{Type: entity.ClientUnknown, Raw: raw}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		info.Name = "unknown"
		return info
	}

	parts := strings.Split(trimmed, "/")
	info.Name = parts[0]
	if len(parts) > 1 {
		info.Version = strings.TrimPrefix(parts[1], "v")
	}

	lower := strings.ToLower(parts[0])
	for _, kc := range knownClients {
		if strings.HasPrefix(lower, kc.prefix) {
			info.Type = kc.typ
			info.Name = kc.name
			return info
		}
	}
	return info
}
