package route

import (
	"strings"

	"github.com/mintel/lpipe/errors"
)

// levels groups paths by dependency depth with Kahn's algorithm. An edge
// from -> to means dispatching from also dispatches to. Paths left over
// once no more in-degrees reach zero sit on a cycle.
func levels(nodes []Path, edges map[Path][]Path) ([][]Path, error) {
	inDegree := make(map[Path]int, len(nodes))
	for _, n := range nodes {
		inDegree[n] = 0
	}
	for _, from := range nodes {
		for _, to := range edges[from] {
			inDegree[to]++
		}
	}

	var queue []Path
	for _, n := range nodes {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	var out [][]Path
	visited := 0
	for len(queue) > 0 {
		out = append(out, queue)
		visited += len(queue)

		var next []Path
		for _, n := range queue {
			for _, dep := range edges[n] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		queue = next
	}

	if visited != len(nodes) {
		var cyclic []string
		for _, n := range nodes {
			if inDegree[n] > 0 {
				cyclic = append(cyclic, n.String())
			}
		}
		return nil, errors.Configuration("routing graph has a cycle through %s", strings.Join(cyclic, ", ")).
			WithDetail("paths", cyclic)
	}
	return out, nil
}
