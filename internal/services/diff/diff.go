// Package diff compares normalized block payloads across endpoints and
// produces structured field-level diff reports.
package diff

import (
	"sort"

	"github.com/archon-research/jsonrpc-scan/internal/domain/entity"
	"github.com/archon-research/jsonrpc-scan/internal/services/normalize"
)

// Compute compares the normalized payloads for one block and returns the
// DiffReport. All inputs must share the same BlockRef and come from
// endpoints that returned success.
//
// With a reference endpoint configured, its value group is listed first in
// every FieldDiff; otherwise groups are ordered largest first, making the
// head group the majority value (presentation only, no correctness claim).
// Deterministic ordering throughout keeps re-runs byte-identical.
func Compute(ref entity.BlockRef, blocks []*entity.NormalizedBlock, reference string, policy *normalize.Policy) *entity.DiffReport {
	endpoints := make([]string, 0, len(blocks))
	byEndpoint := make(map[string]*entity.NormalizedBlock, len(blocks))
	for _, b := range blocks {
		endpoints = append(endpoints, b.Endpoint)
		byEndpoint[b.Endpoint] = b
	}
	sort.Strings(endpoints)

	report := &entity.DiffReport{
		Ref:       ref,
		Endpoints: endpoints,
		Reference: reference,
	}
	if len(blocks) < 2 {
		return report
	}

	for _, path := range unionPaths(blocks) {
		class := policy.ClassFor(path)
		if class == normalize.ClassIgnore {
			continue
		}
		if fd, ok := diffField(path, endpoints, byEndpoint, reference); ok {
			fd.Informational = class == normalize.ClassInformational
			report.Diffs = append(report.Diffs, fd)
		}
	}

	return report
}

// unionPaths returns the sorted union of field paths across all payloads.
func unionPaths(blocks []*entity.NormalizedBlock) []string {
	seen := make(map[string]struct{})
	for _, b := range blocks {
		for path := range b.Fields {
			seen[path] = struct{}{}
		}
	}
	paths := make([]string, 0, len(seen))
	for path := range seen {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// diffField groups endpoints by canonical value (absence is its own group)
// and reports a FieldDiff when more than one group exists.
func diffField(path string, endpoints []string, byEndpoint map[string]*entity.NormalizedBlock, reference string) (entity.FieldDiff, bool) {
	type group struct {
		value  entity.CanonicalValue
		absent bool
		eps    []string
	}

	groups := make(map[string]*group)
	order := make([]string, 0, 2)
	presentValues := 0

	for _, ep := range endpoints {
		cv, present := byEndpoint[ep].Fields[path]
		key := "absent"
		if present {
			key = string(cv.Kind) + "\x00" + cv.Canon
		}
		g, ok := groups[key]
		if !ok {
			g = &group{value: cv, absent: !present}
			groups[key] = g
			order = append(order, key)
			if present {
				presentValues++
			}
		}
		g.eps = append(g.eps, ep)
	}

	if len(groups) < 2 {
		return entity.FieldDiff{}, false
	}

	kind := entity.MissingField
	if presentValues > 1 {
		kind = entity.ValueMismatch
	}

	// Order groups: reference's group first when configured, then by size
	// (largest first), then by first endpoint for determinism.
	sort.SliceStable(order, func(i, j int) bool {
		gi, gj := groups[order[i]], groups[order[j]]
		if reference != "" {
			ri, rj := holdsEndpoint(gi.eps, reference), holdsEndpoint(gj.eps, reference)
			if ri != rj {
				return ri
			}
		}
		if len(gi.eps) != len(gj.eps) {
			return len(gi.eps) > len(gj.eps)
		}
		return gi.eps[0] < gj.eps[0]
	})

	fd := entity.FieldDiff{Path: path, Kind: kind}
	for _, key := range order {
		g := groups[key]
		fd.Groups = append(fd.Groups, entity.FieldValue{
			Value:     g.value,
			Absent:    g.absent,
			Endpoints: g.eps,
		})
	}
	return fd, true
}

func holdsEndpoint(eps []string, name string) bool {
	for _, ep := range eps {
		if ep == name {
			return true
		}
	}
	return false
}
