// Package launcher hands a delivered artifact to the host desktop: open it,
// reveal it in the file manager, or start its installer.
//
// One implementation exists per operating system family. The right one is
// picked once with ForHost; New takes the OS name explicitly so every
// implementation can be exercised on any machine.
package launcher

import (
	"context"
	"os/exec"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/go-artifactdelivery/pkg/artifact"
	"github.com/go-artifactdelivery/pkg/utils"
)

// Launcher defines what a platform launcher should be able to do
type Launcher interface {
	Open(ctx context.Context, path string) error
	Reveal(ctx context.Context, path string) error
	Install(ctx context.Context, path string) error
}

// Runner executes external commands. Run returns trimmed stdout, and a
// *utils.CommandError when the command exits unsuccessfully.
type Runner interface {
	Run(ctx context.Context, args []string) (string, error)
	LookPath(name string) (string, error)
}

// ExecRunner runs commands on the host
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, args []string) (string, error) {
	return utils.RunCommandCaptureContext(ctx, args)
}

func (ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// ForHost returns the launcher for the running operating system
func ForHost(logger *utils.Logger) Launcher {
	return New(runtime.GOOS, afero.NewOsFs(), ExecRunner{}, logger)
}

// New returns the launcher for goos
func New(goos string, fs afero.Fs, runner Runner, logger *utils.Logger) Launcher {
	b := base{goos: goos, fs: fs, runner: runner, logger: logger}
	switch goos {
	case "darwin":
		return &darwinLauncher{b}
	case "windows":
		return &windowsLauncher{b}
	case "linux", "freebsd", "openbsd", "netbsd", "dragonfly", "solaris", "illumos":
		return &unixLauncher{b}
	default:
		return &unsupportedLauncher{b}
	}
}

// base holds what every implementation shares
type base struct {
	goos   string
	fs     afero.Fs
	runner Runner
	logger *utils.Logger
}

// requireExisting fails with ArtifactNotFound unless path exists
func (b base) requireExisting(op, path string) error {
	if strings.TrimSpace(path) == "" {
		return &artifact.Error{Kind: artifact.KindInvalidRequest, Op: op, Detail: "path is required"}
	}
	exists, err := afero.Exists(b.fs, path)
	if err != nil {
		return artifact.Wrap(op, path, err)
	}
	if !exists {
		return &artifact.Error{Kind: artifact.KindArtifactNotFound, Op: op, Path: path}
	}
	return nil
}

// run executes args and maps a failed command to SubprocessError
func (b base) run(ctx context.Context, op, path string, args ...string) (string, error) {
	b.logger.Debug("Executing (%s): %s", b.goos, strings.Join(args, " "))
	out, err := b.runner.Run(ctx, args)
	if err != nil {
		return out, subprocessError(op, path, err)
	}
	b.logger.Verbose("Command output: %s", out)
	return out, nil
}

func (b base) unsupported(op, path string) error {
	return &artifact.Error{Kind: artifact.KindUnsupportedOperation, Op: op, Path: path, Detail: "not available on " + b.goos}
}

func subprocessError(op, path string, err error) error {
	e := &artifact.Error{Kind: artifact.KindSubprocessError, Op: op, Path: path, Err: err}
	var cmdErr *utils.CommandError
	if errors.As(err, &cmdErr) {
		e.Stderr = cmdErr.Stderr
		e.Err = cmdErr.Err
	}
	return e
}
