package launcher

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"howett.net/plist"

	"github.com/go-artifactdelivery/pkg/artifact"
)

type darwinLauncher struct {
	base
}

func (l *darwinLauncher) Open(ctx context.Context, path string) error {
	if err := l.requireExisting("open", path); err != nil {
		return err
	}
	_, err := l.run(ctx, "open", path, "open", path)
	return err
}

func (l *darwinLauncher) Reveal(ctx context.Context, path string) error {
	if err := l.requireExisting("reveal", path); err != nil {
		return err
	}
	_, err := l.run(ctx, "reveal", path, "open", "-R", path)
	return err
}

// Install mounts disk images and opens the mounted volume. Anything else,
// and any image that fails to mount, is handed to the default handler.
func (l *darwinLauncher) Install(ctx context.Context, path string) error {
	if err := l.requireExisting("install", path); err != nil {
		return err
	}

	if strings.EqualFold(filepath.Ext(path), ".dmg") {
		mountPoint, attached, err := l.attach(ctx, path)
		switch {
		case err == nil:
			l.logger.Info("Mounted %s at %s", filepath.Base(path), mountPoint)
			_, err = l.run(ctx, "install", mountPoint, "open", mountPoint)
			return err
		case attached:
			// opening the image again would mount it a second time
			return &artifact.Error{Kind: artifact.KindSubprocessError, Op: "install", Path: path, Detail: "disk image attached without a usable mount point", Err: err}
		}
		l.logger.Warn("Could not mount %s, opening it directly: %v", path, err)
	}

	l.logger.Info("Opening installer: %s", path)
	_, err := l.run(ctx, "install", path, "open", path)
	return err
}

// attach mounts path and returns its mount point. attached reports whether the
// image is still attached when no mount point could be read.
func (l *darwinLauncher) attach(ctx context.Context, path string) (mountPoint string, attached bool, err error) {
	out, err := l.run(ctx, "install", path, "hdiutil", "attach", "-nobrowse", "-plist", path)
	if err != nil {
		return "", false, err
	}

	info, err := parseAttach([]byte(out))
	if err == nil && info.mountPoint != "" {
		return info.mountPoint, true, nil
	}
	if err == nil {
		err = errors.New("hdiutil reported no mount point")
	}
	if info.device == "" {
		return "", true, err
	}

	if _, detachErr := l.run(ctx, "install", path, "hdiutil", "detach", info.device); detachErr != nil {
		l.logger.Warn("Failed to detach %s: %v", info.device, detachErr)
		return "", true, err
	}
	return "", false, err
}

// attachResult is the subset of `hdiutil attach -plist` output we read
type attachResult struct {
	SystemEntities []struct {
		DevEntry   string `plist:"dev-entry"`
		MountPoint string `plist:"mount-point"`
	} `plist:"system-entities"`
}

type attachInfo struct {
	device     string // whole-disk device, detaching it ejects every volume
	mountPoint string
}

func parseAttach(out []byte) (attachInfo, error) {
	var result attachResult
	if err := plist.NewDecoder(bytes.NewReader(out)).Decode(&result); err != nil {
		return attachInfo{}, errors.Wrap(err, "failed to parse hdiutil output")
	}

	var info attachInfo
	for _, entity := range result.SystemEntities {
		if info.device == "" && entity.DevEntry != "" {
			info.device = entity.DevEntry
		}
		if info.mountPoint == "" && entity.MountPoint != "" {
			info.mountPoint = entity.MountPoint
		}
	}
	return info, nil
}
