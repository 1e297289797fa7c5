package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readPassword is swapped in tests.
var readPassword = term.ReadPassword

func (a *App) prompt(label string) (string, error) {
	fmt.Fprintf(a.out, "%s: ", label)
	line, err := a.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptValue returns preset when it is set and asks otherwise.
func (a *App) promptValue(preset, label string) (string, error) {
	if preset != "" {
		return preset, nil
	}
	return a.prompt(label)
}

// password reads without echo from a terminal and falls back to a plain line
// when stdin is piped.
func (a *App) password(label string) (string, error) {
	f, ok := a.stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return a.prompt(label)
	}

	fmt.Fprintf(a.out, "%s: ", label)
	pw, err := readPassword(int(f.Fd()))
	fmt.Fprintln(a.out)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}
