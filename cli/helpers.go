package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// stdin wraps the command input once so that several reads in one
// command share a buffer.
func (a *App) stdin(cmd *cobra.Command) *bufio.Reader {
	if a.in == nil {
		a.in = bufio.NewReader(cmd.InOrStdin())
	}
	return a.in
}

// readSecret prompts on stderr and reads one line. On a terminal the input
// is echoed as asterisks; otherwise a plain line is read so input can be
// piped.
func (a *App) readSecret(cmd *cobra.Command, prompt string) (string, error) {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		line, err := a.stdin(cmd).ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return "", fmt.Errorf("read %s: %w", strings.TrimSpace(strings.TrimSuffix(prompt, ": ")), err)
		}
		return strings.TrimSpace(line), nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	return string(readPasswordMasked(f, cmd.ErrOrStderr())), nil
}

func readPasswordMasked(f *os.File, echo io.Writer) []byte {
	fd := int(f.Fd())
	state, err := term.MakeRaw(fd)
	if err == nil {
		defer term.Restore(fd, state)
	}

	var input []rune
	for {
		var buf [1]byte
		if n, err := f.Read(buf[:]); err != nil || n == 0 {
			fmt.Fprint(echo, "\r\n")
			return []byte(string(input))
		}
		c := buf[0]

		switch c {
		case 13, 10: // Enter
			fmt.Fprint(echo, "\r\n")
			return []byte(string(input))
		case 3: // Ctrl-C
			fmt.Fprint(echo, "\r\n")
			return nil
		case 127, 8: // Backspace
			if len(input) > 0 {
				input = input[:len(input)-1]
				fmt.Fprint(echo, "\b \b")
			}
		default:
			r, _ := utf8.DecodeRune(buf[:])
			input = append(input, r)
			fmt.Fprint(echo, "*")
		}
	}
}

// readInput returns args joined, or all of stdin when args is empty or "-".
func (a *App) readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	raw, err := io.ReadAll(a.stdin(cmd))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// copyAndClear puts text on the clipboard and blanks it after d, or
// earlier on interrupt. It blocks until the clipboard is cleared.
func copyAndClear(cmd *cobra.Command, text string, d time.Duration) error {
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("clipboard: %w", err)
	}
	if d <= 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "Copied to clipboard.")
		return nil
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Copied to clipboard. Clearing in %s...\n", d)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
	return clipboard.WriteAll("")
}

// clearLater blanks the clipboard after d without blocking.
func clearLater(d time.Duration) {
	time.AfterFunc(d, func() {
		clipboard.WriteAll("")
	})
}

func short(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
