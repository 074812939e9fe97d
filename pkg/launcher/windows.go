package launcher

import (
	"context"

	"github.com/pkg/errors"

	"github.com/go-artifactdelivery/pkg/utils"
)

type windowsLauncher struct {
	base
}

func (l *windowsLauncher) Open(ctx context.Context, path string) error {
	if err := l.requireExisting("open", path); err != nil {
		return err
	}
	return l.explorer(ctx, "open", path, path)
}

func (l *windowsLauncher) Reveal(ctx context.Context, path string) error {
	if err := l.requireExisting("reveal", path); err != nil {
		return err
	}
	return l.explorer(ctx, "reveal", path, "/select,"+path)
}

func (l *windowsLauncher) Install(ctx context.Context, path string) error {
	if err := l.requireExisting("install", path); err != nil {
		return err
	}
	return l.unsupported("install", path)
}

// explorer.exe exits with 1 even when it succeeds, so only a failure that
// printed something counts.
func (l *windowsLauncher) explorer(ctx context.Context, op, path, arg string) error {
	args := []string{"explorer", arg}
	l.logger.Debug("Executing (%s): %v", l.goos, args)
	_, err := l.runner.Run(ctx, args)
	if err == nil {
		return nil
	}
	var cmdErr *utils.CommandError
	if errors.As(err, &cmdErr) && cmdErr.ExitCode == 1 && cmdErr.Stderr == "" {
		l.logger.Verbose("explorer exited with 1 and no output, treating as success")
		return nil
	}
	return subprocessError(op, path, err)
}
