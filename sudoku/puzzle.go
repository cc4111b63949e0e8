package sudoku

// Outcome is the result of a move.
type Outcome int

const (
	// Correct means the value matched the solution and was written.
	Correct Outcome = iota
	// Incorrect means the value did not match; it was written anyway and
	// stays visible until someone overwrites it.
	Incorrect
	// AlreadyFilled means the cell already held the solution value and
	// nothing changed.
	AlreadyFilled
)

// String returns the move-result text sent to players.
func (o Outcome) String() string {
	switch o {
	case Correct:
		return "Correct"
	case Incorrect:
		return "Wrong"
	case AlreadyFilled:
		return "Cell full"
	default:
		return "Unknown"
	}
}

// Mutates reports whether the outcome changed the board.
func (o Outcome) Mutates() bool {
	return o == Correct || o == Incorrect
}

// Puzzle holds a hidden solution and the board players fill in. The
// solution never changes after construction. Puzzle is not safe for
// concurrent use; the owning session serializes access.
type Puzzle struct {
	solution Grid
	current  Grid
}

// NewPuzzle builds a puzzle from an explicit solution and starting board.
// It is used by tests and by callers that load fixed puzzles.
func NewPuzzle(solution, current Grid) *Puzzle {
	return &Puzzle{solution: solution, current: current}
}

// SetNumber applies a move at 0-indexed (col, row).
//
// Parameters:
//   - col: Column index 0-8
//   - row: Row index 0-8
//   - value: Value 1-9
//
// Returns:
//   - The move outcome
//   - ErrOutOfRange if any argument is outside its range
func (p *Puzzle) SetNumber(col, row, value int) (Outcome, error) {
	if col < 0 || col >= Size || row < 0 || row >= Size || value < 1 || value > Size {
		return AlreadyFilled, ErrOutOfRange
	}

	want := p.solution[row][col]
	if p.current[row][col] == want {
		return AlreadyFilled, nil
	}

	p.current[row][col] = uint8(value)
	if uint8(value) == want {
		return Correct, nil
	}

	return Incorrect, nil
}

// IsOver reports whether the board equals the solution in all 81 cells.
func (p *Puzzle) IsOver() bool {
	return p.current == p.solution
}

// Current returns a copy of the players' board.
func (p *Puzzle) Current() Grid {
	return p.current
}

// Solution returns a copy of the hidden solution.
func (p *Puzzle) Solution() Grid {
	return p.solution
}

// Remaining returns how many cells still differ from the solution.
func (p *Puzzle) Remaining() int {
	return p.current.Diff(p.solution)
}

// String returns the board as 81 digits for the wire.
func (p *Puzzle) String() string {
	return p.current.String()
}
