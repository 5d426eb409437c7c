package compat

import (
	"testing"

	"github.com/archon-research/jsonrpc-scan/internal/domain/entity"
)

func TestDetect_KnownClients(t *testing.T) {
	tests := []struct {
		raw     string
		typ     entity.ClientType
		name    string
		version string
	}{
		{"Geth/v1.13.0-stable/linux-amd64/go1.21.0", entity.ClientGeth, "Geth", "1.13.0-stable"},
		{"Nethermind/v1.20.0/linux-x64/dotnet7.0.9", entity.ClientNethermind, "Nethermind", "1.20.0"},
		{"erigon/2.48.0/linux-amd64/go1.20.6", entity.ClientErigon, "Erigon", "2.48.0"},
		{"besu/v23.7.0/linux-x86_64/openjdk-java-17", entity.ClientBesu, "Besu", "23.7.0"},
		{"reth/v0.1.0-alpha.8/x86_64-unknown-linux-gnu", entity.ClientReth, "Reth", "0.1.0-alpha.8"},
		{"nimbus-eth1/v0.1.0", entity.ClientNimbus, "Nimbus", "0.1.0"},
	}

	for _, tt := range tests {
		got := Detect(tt.raw)
		if got.Type != tt.typ {
			t.Errorf("Detect(%q).Type=%s, want %s", tt.raw, got.Type, tt.typ)
		}
		if got.Name != tt.name {
			t.Errorf("Detect(%q).Name=%s, want %s", tt.raw, got.Name, tt.name)
		}
		if got.Version != tt.version {
			t.Errorf("Detect(%q).Version=%s, want %s", tt.raw, got.Version, tt.version)
		}
	}
}

func TestDetect_Unknown(t *testing.T) {
	got := Detect("SomeNewClient/v9.9.9")
	if got.Type != entity.ClientUnknown {
		t.Errorf("expected unknown type, got %s", got.Type)
	}
	if got.Name != "SomeNewClient" {
		t.Errorf("expected name=SomeNewClient, got %s", got.Name)
	}
}

func TestDetect_Empty(t *testing.T) {
	got := Detect("")
	if got.Type != entity.ClientUnknown || got.Name != "unknown" {
		t.Errorf("unexpected result for empty input: %+v", got)
	}
}
