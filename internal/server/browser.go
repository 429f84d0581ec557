package server

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
	"time"

	"github.com/conneroisu/autobuild/internal/errors"
)

// browserCommand builds the platform command that opens a URL.
var browserCommand = func(target string) (*exec.Cmd, error) {
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd", "netbsd":
		return exec.Command("xdg-open", target), nil
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", target), nil
	case "darwin":
		return exec.Command("open", target), nil
	default:
		return nil, fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
}

// OpenBrowser waits delay and then opens target in the default browser.
// It returns early without opening when ctx ends first.
func OpenBrowser(ctx context.Context, target string, delay time.Duration) error {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.NewValidationError(errors.ErrCodeInvalidPath, fmt.Sprintf("refusing to open %q in a browser", target))
	}

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}

	cmd, err := browserCommand(u.String())
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	// Reap the opener; its exit status does not matter.
	go func() { _ = cmd.Wait() }()
	return nil
}
