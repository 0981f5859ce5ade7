package registry

import (
	"fmt"
	"os"
	"os/exec"
)

// PopoutOptions describe a detached panel window to open.
type PopoutOptions struct {
	// Panel selects which panel the popout shows (e.g. "mixer",
	// "spectrum").
	Panel string

	// Width and Height are the requested window geometry in pixels.
	// Zero means the popout's default.
	Width  int
	Height int
}

// OpenPopout spawns a new surface process showing the selected panel.
// The child process constructs its own registry instance and
// self-registers; the parent holds no handle on it beyond the returned
// process. Binary defaults to the current executable.
func OpenPopout(binary string, opts PopoutOptions) (*os.Process, error) {
	if opts.Panel == "" {
		return nil, fmt.Errorf("popout panel not specified")
	}
	if binary == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		binary = exe
	}

	args := []string{"-popout", "-panel", opts.Panel}
	if opts.Width > 0 && opts.Height > 0 {
		args = append(args, "-geometry", fmt.Sprintf("%dx%d", opts.Width, opts.Height))
	}

	cmd := exec.Command(binary, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start popout: %w", err)
	}

	// Detach: the popout outlives any interest we have in its exit
	// status.
	go func() { _ = cmd.Wait() }()

	return cmd.Process, nil
}
