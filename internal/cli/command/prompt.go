package command

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// readLine reads one line from stdin without the line terminator.
func (e *env) readLine() (string, error) {
	line, err := e.in.ReadString('\n')
	switch {
	case err == nil, errors.Is(err, io.EOF) && line != "":
		return strings.TrimRight(line, "\r\n"), nil
	case errors.Is(err, io.EOF):
		return "", errors.New("unexpected end of input")
	default:
		return "", err
	}
}

// prompt asks for a visible value.
func (e *env) prompt(label string) (string, error) {
	fmt.Fprint(e.errOut, label)
	s, err := e.readLine()
	return strings.TrimSpace(s), err
}

// promptPassword asks for a secret. Echo is disabled on a terminal;
// otherwise the next input line is used.
func (e *env) promptPassword(label string) (string, error) {
	if e.tty == nil {
		return e.readLine()
	}
	fmt.Fprint(e.errOut, label)
	b, err := term.ReadPassword(int(e.tty.Fd()))
	fmt.Fprintln(e.errOut)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}

// confirm asks a yes/no question; anything but y or yes is a no.
func (e *env) confirm(question string) (bool, error) {
	answer, err := e.prompt(question + " [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
