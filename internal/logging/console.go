package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

const consolePrefix = "[autobuild]"

// Console prints the user-facing progress lines: messages, the commands
// about to run and build failures. Colour is only used on terminals.
type Console struct {
	out      io.Writer
	mu       sync.Mutex
	useColor bool

	prefix  lipgloss.Style
	message lipgloss.Style
	command lipgloss.Style
	failure lipgloss.Style
}

// NewConsole creates a console writing to out.
func NewConsole(out io.Writer) *Console {
	if out == nil {
		out = os.Stdout
	}

	c := &Console{
		out:      out,
		useColor: isTerminal(out),
	}

	c.prefix = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	c.message = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	c.command = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	c.failure = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))

	return c
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Message shows a context line such as "Detected change".
func (c *Console) Message(format string, args ...interface{}) {
	c.print(c.message, fmt.Sprintf(format, args...))
}

// Command shows a command that is about to be executed.
func (c *Console) Command(argv []string) {
	c.print(c.command, "> "+QuoteCommand(argv))
}

// Failure shows a failure line.
func (c *Console) Failure(format string, args ...interface{}) {
	c.print(c.failure, fmt.Sprintf(format, args...))
}

// Plain writes a line without the prefix.
func (c *Console) Plain(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *Console) print(style lipgloss.Style, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.useColor {
		_, _ = fmt.Fprintf(c.out, "%s %s\n", consolePrefix, text)
		return
	}
	_, _ = fmt.Fprintf(c.out, "%s %s\n", c.prefix.Render(consolePrefix), style.Render(text))
}

// QuoteCommand renders argv the way a POSIX shell would accept it.
func QuoteCommand(argv []string) string {
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		quoted[i] = shellQuote(arg)
	}
	return strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("@%+=:,./-_", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
