package logger

import "golang.org/x/term"

// isTerminal reports whether fd refers to a terminal, which enables colored
// output in the text handler.
func isTerminal(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}
