package console

import "strings"

const boardRule = "  +-------+-------+-------+\n"

// RenderBoard draws an 81-digit grid as a 9x9 board with box borders and
// 1-indexed column and row labels. Empty cells show as dots. Text that is not
// an 81-digit grid is returned unchanged.
func RenderBoard(board string) string {
	if len(board) != 81 {
		return board
	}

	var sb strings.Builder
	sb.WriteString("    1 2 3   4 5 6   7 8 9\n")
	for row := range 9 {
		if row%3 == 0 {
			sb.WriteString(boardRule)
		}

		sb.WriteByte('1' + byte(row))
		sb.WriteString(" |")
		for col := range 9 {
			ch := board[row*9+col]
			if ch < '0' || ch > '9' {
				return board
			}
			if ch == '0' {
				ch = '.'
			}

			sb.WriteByte(' ')
			sb.WriteByte(ch)
			if col%3 == 2 {
				sb.WriteString(" |")
			}
		}
		sb.WriteByte('\n')
	}
	sb.WriteString(boardRule)

	return sb.String()
}
