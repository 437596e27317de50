package dependency

import "github.com/start9labs/appmgr/internal/model"

// DepGraph is an adjacency view over the combined dependency graph (every
// installed package's declared dependencies, plus a candidate not yet
// installed), used to reject install-time dependency cycles.
type DepGraph map[model.PackageId][]model.PackageId

// BuildGraph assembles a DepGraph from every currently installed package's
// manifest plus one candidate manifest being installed (which may not be in
// installed yet, and may even replace an entry already there during an
// update). Edges to a package that is neither installed nor the candidate
// are omitted: an uninstalled dependency can't be part of a cycle yet, and
// Satisfied already reports it as NotInstalled through its own path.
func BuildGraph(installed map[model.PackageId]model.Manifest, candidateId model.PackageId, candidate model.Manifest) DepGraph {
	all := make(map[model.PackageId]model.Manifest, len(installed)+1)
	for id, m := range installed {
		all[id] = m
	}
	all[candidateId] = candidate

	g := make(DepGraph, len(all))
	for id, m := range all {
		for depId := range m.Dependencies {
			if _, ok := all[depId]; ok {
				g[id] = append(g[id], depId)
			}
		}
	}
	return g
}

// HasCycle reports whether g contains a cycle reachable from any node,
// using the standard three-color DFS (white/gray/black): encountering a
// gray node is a back-edge, i.e. a cycle. This decides the same question as
// computing the graph's non-trivial strongly-connected components, without
// pulling in a general-purpose graph library — nothing in the pack offers
// one, and a plain DFS is the idiomatic stdlib-only way to answer it.
func HasCycle(g DepGraph) bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[model.PackageId]int, len(g))

	var visit func(id model.PackageId) bool
	visit = func(id model.PackageId) bool {
		switch color[id] {
		case gray:
			return true
		case black:
			return false
		}
		color[id] = gray
		for _, dep := range g[id] {
			if visit(dep) {
				return true
			}
		}
		color[id] = black
		return false
	}

	for id := range g {
		if color[id] == white {
			if visit(id) {
				return true
			}
		}
	}
	return false
}
