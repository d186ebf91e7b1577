package postprocess

import (
	"cmp"
	"slices"
)

// Suppressed marks an order slot whose candidate was removed by NMS.
const Suppressed = -1

// Rank returns candidate indices ordered by descending score. Equal scores
// keep their scan order.
//
// Arguments:
//   - cands: The candidates to rank.
//
// Returns:
//   - The index order, highest score first.
func Rank(cands []Candidate) []int {
	order := make([]int, len(cands))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(cands[b].Score, cands[a].Score)
	})
	return order
}

// Classes returns the distinct class ids present in cands, ascending.
func Classes(cands []Candidate) []int {
	seen := make(map[int]struct{}, 8)
	classes := make([]int, 0, 8)
	for _, c := range cands {
		if _, ok := seen[c.Class]; ok {
			continue
		}
		seen[c.Class] = struct{}{}
		classes = append(classes, c.Class)
	}
	slices.Sort(classes)
	return classes
}
