package sudoku

// Solve fills g by backtracking: the first empty cell is tried with 1..9 in
// order, keeping a value only while the grid stays valid. It returns the
// first complete solution found.
func Solve(g Grid) (Grid, bool) {
	if !IsValid(g) {
		return g, false
	}

	var found Grid
	n := search(&g, 1, &found)
	return found, n == 1
}

// CountSolutions searches g for solutions, stopping once limit have been
// found. With limit 2 the result tells apart "none", "exactly one" and
// "more than one".
func CountSolutions(g Grid, limit int) int {
	if !IsValid(g) {
		return 0
	}

	var found Grid
	return search(&g, limit, &found)
}

// HasUniqueSolution reports whether g has exactly one solution.
func HasUniqueSolution(g Grid) bool {
	return CountSolutions(g, 2) == 1
}

// search works on a single board with undo on backtrack; callers pass a
// private copy. The first complete board is copied into found.
func search(g *Grid, limit int, found *Grid) int {
	row, col, ok := g.firstEmpty()
	if !ok {
		*found = *g
		return 1
	}

	count := 0
	for v := uint8(1); v <= Size; v++ {
		if !g.canPlace(row, col, v) {
			continue
		}

		g[row][col] = v
		if count == 0 {
			count += search(g, limit-count, found)
		} else {
			var ignored Grid
			count += search(g, limit-count, &ignored)
		}
		g[row][col] = 0

		if count >= limit {
			break
		}
	}

	return count
}
