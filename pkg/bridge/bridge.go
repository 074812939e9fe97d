// Package bridge exposes the delivery operations to a UI front end. Every
// operation returns a human-readable message on success; failures are
// *artifact.Error values whose text is what the front end shows.
package bridge

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/go-artifactdelivery/pkg/artifact"
	"github.com/go-artifactdelivery/pkg/config"
	"github.com/go-artifactdelivery/pkg/download"
	"github.com/go-artifactdelivery/pkg/encoded"
	"github.com/go-artifactdelivery/pkg/launcher"
	"github.com/go-artifactdelivery/pkg/location"
	"github.com/go-artifactdelivery/pkg/progress"
	"github.com/go-artifactdelivery/pkg/utils"
)

// Service implements the front-end operations
type Service struct {
	cfg        *config.Config
	resolver   *location.Resolver
	downloader download.Downloader
	writer     *encoded.Writer
	launcher   launcher.Launcher
	logger     *utils.Logger
}

// NewService wires a service against the host filesystem and platform
func NewService(cfg *config.Config, logger *utils.Logger) *Service {
	return NewServiceFs(afero.NewOsFs(), cfg, launcher.ForHost(logger), logger)
}

// NewServiceFs wires a service against fs with an explicit launcher
func NewServiceFs(fs afero.Fs, cfg *config.Config, l launcher.Launcher, logger *utils.Logger) *Service {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return &Service{
		cfg:        cfg,
		resolver:   location.NewResolverFs(fs, cfg.TempDir, logger),
		downloader: download.NewClientFs(fs, cfg, logger),
		writer:     encoded.NewWriterFs(fs, cfg.DecodeChunkSize, logger),
		launcher:   l,
		logger:     logger,
	}
}

// Downloader returns the downloader used for batch work
func (s *Service) Downloader() download.Downloader {
	return s.downloader
}

// OpenFile opens path with its default application
func (s *Service) OpenFile(ctx context.Context, path string) (string, error) {
	s.logger.Debug("open_file: %s", path)
	if err := s.launcher.Open(ctx, path); err != nil {
		return "", err
	}
	return fmt.Sprintf("Opened %s", path), nil
}

// RevealFile shows path in the file manager
func (s *Service) RevealFile(ctx context.Context, path string) (string, error) {
	s.logger.Debug("reveal_file: %s", path)
	if err := s.launcher.Reveal(ctx, path); err != nil {
		return "", err
	}
	return fmt.Sprintf("Revealed %s", path), nil
}

// GetWritablePath returns an absolute path for fileName inside the first
// writable candidate directory
func (s *Service) GetWritablePath(ctx context.Context, fileName string) (string, error) {
	s.logger.Debug("get_writable_path: %s", fileName)
	return s.resolver.ResolveFile(s.cfg.CandidateDirs, fileName)
}

// DownloadFile downloads rawURL to destinationPath and emits "download-progress"
// events while it runs. An empty destinationPath is resolved from the display
// name or the URL's file name.
func (s *Service) DownloadFile(ctx context.Context, rawURL, destinationPath, displayName string, events EventEmitter) (string, error) {
	s.logger.Debug("download_file: %s -> %s", rawURL, destinationPath)

	if destinationPath == "" {
		resolved, err := s.ResolveDestination(ctx, rawURL, displayName)
		if err != nil {
			return "", err
		}
		destinationPath = resolved
	}

	req := artifact.DownloadRequest{URL: rawURL, DestinationPath: destinationPath, DisplayName: displayName}
	result, err := s.downloader.Download(ctx, req, NewProgressSink(events))
	if err != nil {
		s.logger.Error("Download of %s failed: %v", req.Name(), err)
		return "", err
	}
	return fmt.Sprintf("Downloaded %s to %s (%s)", req.Name(), result.Path, progress.FormatBytes(uint64(result.SizeBytes))), nil
}

// ResolveDestination picks a writable destination for rawURL, named after
// displayName or the last element of the URL path
func (s *Service) ResolveDestination(ctx context.Context, rawURL, displayName string) (string, error) {
	return s.GetWritablePath(ctx, fileNameFor(rawURL, displayName))
}

// SaveDownloadedFile decodes encodedPayload into destinationPath
func (s *Service) SaveDownloadedFile(ctx context.Context, destinationPath, encodedPayload, displayName string) (string, error) {
	return s.SaveDownloadedFileFrom(ctx, destinationPath, strings.NewReader(encodedPayload), displayName)
}

// SaveDownloadedFileFrom is SaveDownloadedFile reading the payload from r
func (s *Service) SaveDownloadedFileFrom(ctx context.Context, destinationPath string, r io.Reader, displayName string) (string, error) {
	s.logger.Debug("save_downloaded_file: %s", destinationPath)
	if destinationPath == "" {
		resolved, err := s.GetWritablePath(ctx, displayName)
		if err != nil {
			return "", err
		}
		destinationPath = resolved
	}
	if displayName == "" {
		displayName = filepath.Base(destinationPath)
	}

	n, err := s.writer.SaveEncodedFrom(destinationPath, r)
	if err != nil {
		s.logger.Error("Saving %s failed after %d bytes: %v", displayName, n, err)
		return "", err
	}
	s.logger.Info("Saved %s (%s) to %s", displayName, progress.FormatBytes(uint64(n)), destinationPath)
	return fmt.Sprintf("Saved %s to %s (%d bytes)", displayName, destinationPath, n), nil
}

// InstallArtifact starts the platform installer for path
func (s *Service) InstallArtifact(ctx context.Context, path string) (string, error) {
	s.logger.Debug("install_artifact: %s", path)
	if err := s.launcher.Install(ctx, path); err != nil {
		return "", err
	}
	return fmt.Sprintf("Started installer for %s", path), nil
}

// fileNameFor picks a destination file name for a download without one
func fileNameFor(rawURL, displayName string) string {
	if displayName != "" {
		return displayName
	}
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" {
			return base
		}
	}
	return "download"
}
