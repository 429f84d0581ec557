package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorSuggestion is one hint shown under a failure.
type ErrorSuggestion struct {
	Title       string
	Description string
	Command     string
	Example     string
}

// ServerStartError explains why the HTTP listener could not be opened.
func ServerStartError(err error, port int) []ErrorSuggestion {
	msg := err.Error()
	var out []ErrorSuggestion

	switch {
	case strings.Contains(msg, "address already in use"), strings.Contains(msg, "bind"):
		out = append(out,
			ErrorSuggestion{
				Title:       "Port already in use",
				Description: fmt.Sprintf("Another process is listening on port %d", port),
				Command:     fmt.Sprintf("lsof -i :%d", port),
			},
			ErrorSuggestion{
				Title:       "Let autobuild pick a free port",
				Description: "A port of 0 selects any free port",
				Command:     "autobuild --port 0 docs docs/_build/html",
			},
		)
	}

	if strings.Contains(msg, "permission denied") && port < 1024 {
		out = append(out, ErrorSuggestion{
			Title:       "Use an unprivileged port",
			Description: "Ports below 1024 require root privileges",
			Command:     "autobuild --port 8000 docs docs/_build/html",
		})
	}

	return out
}

// configHints are added by ConfigurationError when the error text contains
// one of the keys.
var configHints = []struct {
	keys []string
	hint ErrorSuggestion
}{
	{
		keys: []string{"yaml", "unmarshal", "decode"},
		hint: ErrorSuggestion{
			Title:       "Fix YAML syntax",
			Description: "The configuration file could not be parsed",
			Example:     "Indent with spaces, not tabs",
		},
	},
	{
		keys: []string{"regex", "regular expression"},
		hint: ErrorSuggestion{
			Title:       "Fix the ignore regular expression",
			Description: "Every --re-ignore value must be a valid regular expression",
			Example:     `--re-ignore '\.pyc$'`,
		},
	},
	{
		keys: []string{"source directory", "source_dir"},
		hint: ErrorSuggestion{
			Title:       "Check SOURCEDIR",
			Description: "The first argument must be an existing directory",
			Example:     "autobuild docs docs/_build/html",
		},
	},
}

// ConfigurationError suggests fixes for a configuration failure.
func ConfigurationError(configError string, configPath string) []ErrorSuggestion {
	out := []ErrorSuggestion{
		{
			Title:       "Check configuration file",
			Description: "Make sure the file exists and is valid YAML",
			Command:     "cat " + configPath,
		},
		{
			Title:       "Show resolved configuration",
			Description: "Print the configuration after flags and environment overrides",
			Command:     "autobuild config show",
		},
	}

	lower := strings.ToLower(configError)
	for _, h := range configHints {
		for _, key := range h.keys {
			if strings.Contains(lower, key) {
				out = append(out, h.hint)
				break
			}
		}
	}

	return out
}

// FormatSuggestions renders title followed by a numbered suggestion list.
func FormatSuggestions(title string, suggestions []ErrorSuggestion) string {
	if len(suggestions) == 0 {
		return title
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nSuggestions:\n", title)
	for i, s := range suggestions {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, s.Title)
		for _, line := range []struct{ label, text string }{
			{"", s.Description},
			{"Run: ", s.Command},
			{"Example: ", s.Example},
		} {
			if line.text != "" {
				fmt.Fprintf(&b, "     %s%s\n", line.label, line.text)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// EnhancedError is an error with suggestions for the user.
type EnhancedError struct {
	OriginalError error
	Title         string
	Suggestions   []ErrorSuggestion
}

func (e *EnhancedError) Error() string {
	if e.OriginalError == nil {
		return FormatSuggestions(e.Title, e.Suggestions)
	}
	return FormatSuggestions(fmt.Sprintf("%s: %v", e.Title, e.OriginalError), e.Suggestions)
}

func (e *EnhancedError) Unwrap() error {
	return e.OriginalError
}

// Is lets errors.Is see through to the original error.
func (e *EnhancedError) Is(target error) bool {
	return errors.Is(e.OriginalError, target)
}

func NewEnhancedError(title string, originalError error, suggestions []ErrorSuggestion) *EnhancedError {
	return &EnhancedError{
		OriginalError: originalError,
		Title:         title,
		Suggestions:   suggestions,
	}
}
