// Package sudoku generates uniquely solvable 9x9 puzzles and validates moves
// against their hidden solution.
package sudoku

import (
	"strings"
)

const (
	// Size is the side length of the grid.
	Size = 9
	// BoxSize is the side length of one box.
	BoxSize = 3
	// Cells is the number of cells in a grid.
	Cells = Size * Size
)

// Grid is a 9x9 board indexed [row][col]. 0 means empty, 1-9 are filled.
// Grid is a value type: assigning or passing it copies the whole board, so
// solver branches and concurrent generations never share state.
type Grid [Size][Size]uint8

// IsValid reports whether no nonzero value repeats in any row, column or box.
// Empty cells are ignored, so a partially filled grid can be valid.
func IsValid(g Grid) bool {
	for i := range Size {
		var row, col, box [Size + 1]bool
		for j := range Size {
			if v := g[i][j]; v != 0 {
				if v > Size || row[v] {
					return false
				}
				row[v] = true
			}

			if v := g[j][i]; v != 0 {
				if v > Size || col[v] {
					return false
				}
				col[v] = true
			}

			r := (i/BoxSize)*BoxSize + j/BoxSize
			c := (i%BoxSize)*BoxSize + j%BoxSize
			if v := g[r][c]; v != 0 {
				if v > Size || box[v] {
					return false
				}
				box[v] = true
			}
		}
	}

	return true
}

// canPlace reports whether v fits at (row, col) given the rest of the grid.
// On a valid grid this is the same answer IsValid gives after the write.
func (g *Grid) canPlace(row, col int, v uint8) bool {
	for i := range Size {
		if g[row][i] == v || g[i][col] == v {
			return false
		}
	}

	br, bc := (row/BoxSize)*BoxSize, (col/BoxSize)*BoxSize
	for r := br; r < br+BoxSize; r++ {
		for c := bc; c < bc+BoxSize; c++ {
			if g[r][c] == v {
				return false
			}
		}
	}

	return true
}

// firstEmpty returns the first empty cell in row-major order.
func (g *Grid) firstEmpty() (row, col int, ok bool) {
	for r := range Size {
		for c := range Size {
			if g[r][c] == 0 {
				return r, c, true
			}
		}
	}

	return 0, 0, false
}

// Filled reports whether every cell holds a value.
func (g Grid) Filled() bool {
	_, _, empty := g.firstEmpty()
	return !empty
}

// EmptyCount returns the number of empty cells.
func (g Grid) EmptyCount() int {
	n := 0
	for r := range Size {
		for c := range Size {
			if g[r][c] == 0 {
				n++
			}
		}
	}

	return n
}

// Diff returns the number of cells in which g and other differ.
func (g Grid) Diff(other Grid) int {
	n := 0
	for r := range Size {
		for c := range Size {
			if g[r][c] != other[r][c] {
				n++
			}
		}
	}

	return n
}

// String serializes the grid as 81 decimal digits in row-major order.
func (g Grid) String() string {
	var sb strings.Builder
	sb.Grow(Cells)
	for r := range Size {
		for c := range Size {
			sb.WriteByte('0' + g[r][c])
		}
	}

	return sb.String()
}

// ParseGrid is the inverse of Grid.String.
func ParseGrid(s string) (Grid, error) {
	var g Grid
	if len(s) != Cells {
		return g, ErrBadGridText
	}

	for i := range Cells {
		ch := s[i]
		if ch < '0' || ch > '9' {
			return g, ErrBadGridText
		}
		g[i/Size][i%Size] = ch - '0'
	}

	return g, nil
}
