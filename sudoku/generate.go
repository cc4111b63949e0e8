package sudoku

import (
	"errors"
	"math/rand/v2"

	"github.com/cyberinferno/sudokunet/utils"
)

// MaxRemovals is the largest carve count accepted by Generate. A uniquely
// solvable sudoku needs at least 17 givens.
const MaxRemovals = Cells - 17

const seedAttempts = 10000

var (
	ErrBadRemovals = errors.New("removal count out of range")
	ErrCannotCarve = errors.New("no removable cell keeps the puzzle unique")
	ErrUnsolvable  = errors.New("seed grid has no solution")
	ErrBadGridText = errors.New("grid text must be 81 digits")
	ErrOutOfRange  = errors.New("coordinate or value out of range")
)

type cell struct {
	row, col int
}

// Generate builds a new puzzle: two random seed rows, a backtracking fill to a
// complete solution, then carving of removals cells so that the remaining
// board has exactly one solution.
//
// Parameters:
//   - rng: Source of randomness; callers own it and must not share it across goroutines
//   - removals: Number of cells to clear, 1..MaxRemovals
//
// Returns:
//   - The new puzzle
//   - ErrBadRemovals, ErrUnsolvable or ErrCannotCarve when generation fails
func Generate(rng *rand.Rand, removals int) (*Puzzle, error) {
	if removals < 1 || removals > MaxRemovals {
		return nil, ErrBadRemovals
	}

	solution, err := solvedGrid(rng)
	if err != nil {
		return nil, err
	}

	carved, err := carve(rng, solution, removals)
	if err != nil {
		return nil, err
	}

	return &Puzzle{solution: solution, current: carved}, nil
}

// seedGrid returns an otherwise empty grid whose first two rows are random
// permutations of 1-9 that respect row and box constraints.
func seedGrid(rng *rand.Rand) (Grid, error) {
	perm := [Size]uint8{1, 2, 3, 4, 5, 6, 7, 8, 9}
	for range seedAttempts {
		var g Grid
		for r := range 2 {
			rng.Shuffle(Size, func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
			g[r] = perm
		}

		if IsValid(g) {
			return g, nil
		}
	}

	return Grid{}, ErrUnsolvable
}

func solvedGrid(rng *rand.Rand) (Grid, error) {
	for range 8 {
		seed, err := seedGrid(rng)
		if err != nil {
			return Grid{}, err
		}

		if solution, ok := Solve(seed); ok && IsValid(solution) {
			return solution, nil
		}
	}

	return Grid{}, ErrUnsolvable
}

// carve clears cells one at a time from a copy of solution. A cleared cell is
// kept cleared only if the board still has exactly one solution; otherwise it
// is restored and never tried again.
func carve(rng *rand.Rand, solution Grid, removals int) (Grid, error) {
	work := solution
	candidates := make([]cell, 0, Cells)
	for r := range Size {
		for c := range Size {
			candidates = append(candidates, cell{r, c})
		}
	}

	removed := 0
	for removed < removals {
		if len(candidates) == 0 {
			return Grid{}, ErrCannotCarve
		}

		pick := utils.GetRandomIndex(rng, candidates)
		target := candidates[pick]
		candidates[pick] = candidates[len(candidates)-1]
		candidates = candidates[:len(candidates)-1]

		saved := work[target.row][target.col]
		work[target.row][target.col] = 0
		if HasUniqueSolution(work) {
			removed++
			continue
		}

		work[target.row][target.col] = saved
	}

	return work, nil
}
