// Package location finds a directory the current user can write to by
// probing candidates with a create-then-delete of a zero-byte file.
package location

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"

	"github.com/go-artifactdelivery/pkg/artifact"
	"github.com/go-artifactdelivery/pkg/utils"
)

// Resolver probes candidate directories for write access
type Resolver struct {
	fs      afero.Fs
	tempDir string
	logger  *utils.Logger
}

// NewResolver creates a resolver on the host filesystem. An empty tempDir means os.TempDir().
func NewResolver(tempDir string, logger *utils.Logger) *Resolver {
	return NewResolverFs(afero.NewOsFs(), tempDir, logger)
}

// NewResolverFs creates a resolver on an arbitrary filesystem
func NewResolverFs(fs afero.Fs, tempDir string, logger *utils.Logger) *Resolver {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Resolver{fs: fs, tempDir: tempDir, logger: logger}
}

// FindWritableDirectory returns the first candidate that accepts a probe,
// then the temp directory, and otherwise a NoWritableLocation error.
// It never returns a directory it did not successfully probe.
func (r *Resolver) FindWritableDirectory(candidates []string, fileName string) (string, error) {
	var result *multierror.Error

	for _, dir := range candidates {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := Probe(r.fs, dir, fileName, r.logger); err != nil {
			r.logger.Debug("Candidate %s is not writable: %v", dir, err)
			result = multierror.Append(result, err)
			continue
		}
		r.logger.Debug("Using writable directory: %s", dir)
		return dir, nil
	}

	r.logger.Debug("No candidate writable, trying temp directory %s", r.tempDir)
	if err := Probe(r.fs, r.tempDir, fileName, r.logger); err != nil {
		result = multierror.Append(result, err)
		return "", &artifact.Error{
			Kind:   artifact.KindNoWritableLocation,
			Op:     "resolve",
			Detail: fmt.Sprintf("%d locations probed", len(result.Errors)),
			Err:    result.ErrorOrNil(),
		}
	}
	return r.tempDir, nil
}

// ResolveFile finds a writable directory and joins fileName inside it.
// The join is scoped so the result always stays under the chosen directory.
func (r *Resolver) ResolveFile(candidates []string, fileName string) (string, error) {
	if strings.TrimSpace(fileName) == "" {
		return "", &artifact.Error{Kind: artifact.KindInvalidRequest, Op: "resolve", Detail: "file name is required"}
	}

	dir, err := r.FindWritableDirectory(candidates, fileName)
	if err != nil {
		return "", err
	}

	full, err := securejoin.SecureJoin(dir, fileName)
	if err != nil {
		return "", &artifact.Error{Kind: artifact.KindInvalidRequest, Op: "resolve", Path: dir, Detail: "invalid file name " + fileName, Err: err}
	}
	if !filepath.IsAbs(full) {
		abs, err := filepath.Abs(full)
		if err != nil {
			return "", artifact.Wrap("resolve", full, err)
		}
		full = abs
	}
	return full, nil
}

// Probe creates and removes a zero-byte file in dir. Failing to remove the
// probe is logged and otherwise ignored.
func Probe(fs afero.Fs, dir, fileName string, logger *utils.Logger) error {
	info, err := fs.Stat(dir)
	if err != nil {
		return artifact.Wrap("probe", dir, err)
	}
	if !info.IsDir() {
		return &artifact.Error{Kind: artifact.KindPermissionDenied, Op: "probe", Path: dir, Detail: "not a directory"}
	}

	probePath := filepath.Join(dir, probeName(fileName))
	f, err := fs.OpenFile(probePath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return &artifact.Error{Kind: artifact.KindPermissionDenied, Op: "probe", Path: dir, Err: err}
	}
	if err := f.Close(); err != nil {
		logger.Debug("Failed to close probe file %s: %v", probePath, err)
	}
	if err := fs.Remove(probePath); err != nil {
		logger.Warn("Failed to remove probe file %s: %v", probePath, err)
	}
	return nil
}

func probeName(fileName string) string {
	base := filepath.Base(fileName)
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "artifact"
	}
	return fmt.Sprintf(".%s.%s.probe", base, uuid.NewString()[:8])
}
