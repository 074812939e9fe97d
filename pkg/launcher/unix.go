package launcher

import (
	"context"
	"path/filepath"
)

type unixLauncher struct {
	base
}

func (l *unixLauncher) Open(ctx context.Context, path string) error {
	if err := l.requireExisting("open", path); err != nil {
		return err
	}
	_, err := l.run(ctx, "open", path, "xdg-open", path)
	return err
}

// Reveal selects the file in nautilus when it is installed, otherwise it
// opens the containing directory.
func (l *unixLauncher) Reveal(ctx context.Context, path string) error {
	if err := l.requireExisting("reveal", path); err != nil {
		return err
	}
	if _, err := l.runner.LookPath("nautilus"); err == nil {
		_, err := l.run(ctx, "reveal", path, "nautilus", "--select", path)
		return err
	}
	l.logger.Debug("nautilus not found, opening parent directory")
	_, err := l.run(ctx, "reveal", path, "xdg-open", filepath.Dir(path))
	return err
}

func (l *unixLauncher) Install(ctx context.Context, path string) error {
	if err := l.requireExisting("install", path); err != nil {
		return err
	}
	return l.unsupported("install", path)
}

type unsupportedLauncher struct {
	base
}

func (l *unsupportedLauncher) Open(ctx context.Context, path string) error {
	return l.unsupported("open", path)
}

func (l *unsupportedLauncher) Reveal(ctx context.Context, path string) error {
	return l.unsupported("reveal", path)
}

func (l *unsupportedLauncher) Install(ctx context.Context, path string) error {
	return l.unsupported("install", path)
}
