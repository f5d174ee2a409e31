package overlay

import "github.com/envault/envault/pkg/parser"

// conflictThreshold is the number of distinct files that must assign a key
// before divergent assignments are reported. Two-file divergence is ordinary
// override layering.
const conflictThreshold = 3

// DetectConflicts groups assignments by key across all parsed files and
// reports every key assigned in three or more distinct files whose
// assignments are not all structurally identical. The result maps key to the
// contributing file paths in overlay order.
func DetectConflicts(files []parser.ParsedFile) map[string][]string {
	type usage struct {
		paths []string // distinct files, in order
		raws  map[string]bool
	}
	byKey := make(map[string]*usage)
	var order []string

	for i := range files {
		path := files[i].Path
		walkAssignments(files[i].Nodes, func(a *parser.Assignment) {
			u := byKey[a.Key]
			if u == nil {
				u = &usage{raws: make(map[string]bool)}
				byKey[a.Key] = u
				order = append(order, a.Key)
			}
			if len(u.paths) == 0 || u.paths[len(u.paths)-1] != path {
				u.paths = appendUnique(u.paths, path)
			}
			u.raws[a.Raw] = true
		})
	}

	conflicts := make(map[string][]string)
	for _, key := range order {
		u := byKey[key]
		if len(u.paths) >= conflictThreshold && len(u.raws) > 1 {
			conflicts[key] = u.paths
		}
	}
	return conflicts
}

// walkAssignments visits every assignment, descending into @if and with
// directive bodies.
func walkAssignments(nodes []parser.Node, fn func(*parser.Assignment)) {
	for _, node := range nodes {
		switch n := node.(type) {
		case *parser.Assignment:
			fn(n)
		case *parser.IfDirective:
			walkAssignments(n.Body, fn)
		case *parser.WithDirective:
			walkAssignments(n.Body, fn)
		}
	}
}

func appendUnique(paths []string, path string) []string {
	for _, p := range paths {
		if p == path {
			return paths
		}
	}
	return append(paths, path)
}
