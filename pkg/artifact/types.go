// Package artifact holds the data model shared by the resolver, downloader,
// encoded writer and launcher: download requests, on-disk artifacts and the
// error taxonomy every operation reports through.
package artifact

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// DownloadRequest describes one download. It is never mutated after creation.
type DownloadRequest struct {
	URL             string `json:"url"`
	DestinationPath string `json:"destinationPath"`
	DisplayName     string `json:"displayName"`
}

// Validate checks the request before any filesystem or network work happens
func (r DownloadRequest) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return &Error{Kind: KindInvalidRequest, Op: "download", Detail: "url is required"}
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return &Error{Kind: KindInvalidRequest, Op: "download", Detail: "invalid url " + r.URL, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &Error{Kind: KindInvalidRequest, Op: "download", Detail: "unsupported url scheme " + u.Scheme}
	}
	if u.Host == "" {
		return &Error{Kind: KindInvalidRequest, Op: "download", Detail: "url has no host"}
	}
	if r.DestinationPath == "" || !filepath.IsAbs(r.DestinationPath) {
		return &Error{Kind: KindInvalidRequest, Op: "download", Path: r.DestinationPath, Detail: "destination path must be absolute"}
	}
	return nil
}

// Name returns the display name, falling back to the destination file name
func (r DownloadRequest) Name() string {
	if r.DisplayName != "" {
		return r.DisplayName
	}
	return filepath.Base(r.DestinationPath)
}

// FileArtifact is the on-disk result of a download or save.
// It reflects a single stat and is not kept around between operations.
type FileArtifact struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"sizeBytes"`
	Exists    bool   `json:"exists"`
}

// Stat builds a FileArtifact for path. A missing file is not an error.
func Stat(fs afero.Fs, path string) (FileArtifact, error) {
	info, err := fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileArtifact{Path: path}, nil
		}
		return FileArtifact{Path: path}, err
	}
	return FileArtifact{Path: path, SizeBytes: info.Size(), Exists: true}, nil
}
