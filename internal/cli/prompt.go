package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rescale/brocoli/internal/catalog"
	"github.com/rescale/brocoli/internal/config"
)

var errNoInput = errors.New("no input")

// isTerminal reports whether r is an interactive terminal.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// promptSecret reads a secret without echo on a terminal, or one line from
// piped input.
func promptSecret(cmd *cobra.Command, label string) (string, error) {
	fmt.Fprintf(cmd.ErrOrStderr(), "%s: ", label)
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", label, err)
		}
		return string(b), nil
	}
	return readLine(in)
}

// promptConfirm asks a yes/no question; anything but y/yes is no.
func promptConfirm(cmd *cobra.Command, question string) (bool, error) {
	fmt.Fprintf(cmd.ErrOrStderr(), "%s [y/N]: ", question)
	input, err := readLine(cmd.InOrStdin())
	if err != nil && !errors.Is(err, errNoInput) {
		return false, err
	}
	input = strings.ToLower(input)
	return input == "y" || input == "yes", nil
}

func readLine(r io.Reader) (string, error) {
	input, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && input != "") {
		if errors.Is(err, io.EOF) {
			return "", errNoInput
		}
		return "", err
	}
	return strings.TrimRight(input, "\r\n"), nil
}

// secretPrompt asks for connection secrets that are not stored in the profile.
// Empty piped input is reported as a missing setting.
func secretPrompt(cmd *cobra.Command) config.Prompt {
	return func(connection, label string) (string, error) {
		secret, err := promptSecret(cmd, fmt.Sprintf("%s (%s)", label, connection))
		if errors.Is(err, errNoInput) {
			return "", fmt.Errorf("%s %s: %w", connection, label, catalog.ErrMissingSetting)
		}
		return secret, err
	}
}
