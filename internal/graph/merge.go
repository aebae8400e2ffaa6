package graph

import "sort"

// Merge unions two snapshots under the same identity rules the builder
// applies at ingest: nodes dedup by id, edges by (source, target, relation),
// provenance merged on collision. Base entries win label/property conflicts
// (first-seen retention). Neither input is mutated.
func Merge(base, delta *Snapshot) *Snapshot {
	if base == nil {
		base = EmptySnapshot()
	}
	if delta == nil {
		delta = EmptySnapshot()
	}

	nodes := make(map[string]*Node, len(base.Nodes))
	for _, n := range base.Nodes {
		copied := n
		copied.Provenance = append([]string(nil), n.Provenance...)
		nodes[n.ID] = &copied
	}
	for _, n := range delta.Nodes {
		existing, ok := nodes[n.ID]
		if !ok {
			copied := n
			copied.Provenance = append([]string(nil), n.Provenance...)
			nodes[n.ID] = &copied
			continue
		}
		for _, doc := range n.Provenance {
			existing.Provenance = appendProvenance(existing.Provenance, doc)
		}
		for key, value := range n.Properties {
			if existing.Properties == nil {
				existing.Properties = map[string]string{}
			}
			if _, taken := existing.Properties[key]; !taken {
				existing.Properties[key] = value
			}
		}
	}

	edges := make(map[string]*Edge, len(base.Edges))
	for _, e := range base.Edges {
		copied := e
		copied.Provenance = append([]string(nil), e.Provenance...)
		edges[e.Key()] = &copied
	}
	for _, e := range delta.Edges {
		existing, ok := edges[e.Key()]
		if !ok {
			copied := e
			copied.Provenance = append([]string(nil), e.Provenance...)
			edges[e.Key()] = &copied
			continue
		}
		for _, doc := range e.Provenance {
			existing.Provenance = appendProvenance(existing.Provenance, doc)
		}
	}

	merged := EmptySnapshot()
	for _, n := range nodes {
		merged.Nodes = append(merged.Nodes, *n)
	}
	for _, e := range edges {
		if _, ok := nodes[e.SourceID]; !ok {
			continue
		}
		if _, ok := nodes[e.TargetID]; !ok {
			continue
		}
		merged.Edges = append(merged.Edges, *e)
	}
	merged.CreatedAt = base.CreatedAt
	Canonicalize(merged)
	return merged
}

// Repair re-applies the current normalization rules to a persisted snapshot
// and merges nodes that collide under them. Needed for historical data
// stored before a normalization rule existed (e.g. labels still carrying a
// file suffix). Edges pointing at a removed duplicate are rewritten to the
// surviving node; edges that become duplicate or dangling are dropped.
// Returns the repaired snapshot and the number of nodes removed.
func Repair(s *Snapshot) (*Snapshot, int) {
	if s.IsEmpty() {
		return EmptySnapshot(), 0
	}

	// Surviving node per (type, normalized label); first-seen wins.
	survivors := make(map[string]*Node)
	idRewrite := make(map[string]string, len(s.Nodes))

	for _, n := range s.Nodes {
		canonicalID := NodeID(n.Type, n.Label)
		existing, ok := survivors[canonicalID]
		if !ok {
			copied := n
			copied.ID = canonicalID
			copied.Label = DisplayLabel(n.Label)
			copied.Provenance = append([]string(nil), n.Provenance...)
			survivors[canonicalID] = &copied
		} else {
			for _, doc := range n.Provenance {
				existing.Provenance = appendProvenance(existing.Provenance, doc)
			}
		}
		idRewrite[n.ID] = canonicalID
	}

	edges := make(map[string]*Edge)
	for _, e := range s.Edges {
		sourceID, okSource := idRewrite[e.SourceID]
		targetID, okTarget := idRewrite[e.TargetID]
		if !okSource || !okTarget || sourceID == targetID {
			continue
		}
		rewritten := e
		rewritten.SourceID = sourceID
		rewritten.TargetID = targetID
		rewritten.Provenance = append([]string(nil), e.Provenance...)
		if existing, ok := edges[rewritten.Key()]; ok {
			for _, doc := range rewritten.Provenance {
				existing.Provenance = appendProvenance(existing.Provenance, doc)
			}
			continue
		}
		edges[rewritten.Key()] = &rewritten
	}

	repaired := EmptySnapshot()
	for _, n := range survivors {
		repaired.Nodes = append(repaired.Nodes, *n)
	}
	for _, e := range edges {
		repaired.Edges = append(repaired.Edges, *e)
	}
	repaired.CreatedAt = s.CreatedAt
	Canonicalize(repaired)

	return repaired, len(s.Nodes) - len(repaired.Nodes)
}

// Canonicalize sorts nodes, edges and provenance and refreshes the counts,
// so that equal graph content yields byte-equal serialized snapshots
// regardless of processing order.
func Canonicalize(s *Snapshot) {
	sort.Slice(s.Nodes, func(i, j int) bool { return s.Nodes[i].ID < s.Nodes[j].ID })
	sort.Slice(s.Edges, func(i, j int) bool { return s.Edges[i].Key() < s.Edges[j].Key() })
	for i := range s.Nodes {
		sort.Strings(s.Nodes[i].Provenance)
	}
	for i := range s.Edges {
		sort.Strings(s.Edges[i].Provenance)
	}
	s.NodeCount = len(s.Nodes)
	s.EdgeCount = len(s.Edges)
}

// Validate checks the stored-snapshot invariants: node id uniqueness under
// the current normalization, edge-triple uniqueness and no dangling edges.
func Validate(s *Snapshot) bool {
	ids := make(map[string]bool, len(s.Nodes))
	identities := make(map[string]bool, len(s.Nodes))
	for _, n := range s.Nodes {
		if ids[n.ID] {
			return false
		}
		ids[n.ID] = true
		identity := string(n.Type) + "\x00" + NormalizeLabel(n.Label)
		if identities[identity] {
			return false
		}
		identities[identity] = true
	}
	keys := make(map[string]bool, len(s.Edges))
	for _, e := range s.Edges {
		if keys[e.Key()] {
			return false
		}
		keys[e.Key()] = true
		if !ids[e.SourceID] || !ids[e.TargetID] {
			return false
		}
	}
	return true
}
