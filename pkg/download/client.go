package download

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/go-artifactdelivery/pkg/artifact"
	"github.com/go-artifactdelivery/pkg/config"
	"github.com/go-artifactdelivery/pkg/location"
	"github.com/go-artifactdelivery/pkg/progress"
	"github.com/go-artifactdelivery/pkg/utils"
)

// Client streams HTTP downloads to disk
type Client struct {
	httpClient     *http.Client
	fs             afero.Fs
	logger         *utils.Logger
	userAgent      string
	readBufferSize int
	minimumSize    int64
	milestoneStep  int
}

// NewClient creates a download client on the host filesystem
func NewClient(cfg *config.Config, logger *utils.Logger) *Client {
	return NewClientFs(afero.NewOsFs(), cfg, logger)
}

// NewClientFs creates a download client writing through fs
func NewClientFs(fs afero.Fs, cfg *config.Config, logger *utils.Logger) *Client {
	if cfg == nil {
		cfg = config.NewConfig()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyFromEnvironment
	transport.DialContext = (&net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = cfg.ConnectTimeout

	c := &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.TotalTimeout,
		},
		fs:             fs,
		logger:         logger,
		userAgent:      cfg.UserAgent,
		readBufferSize: cfg.ReadBufferSize,
		minimumSize:    cfg.MinimumSize,
		milestoneStep:  cfg.MilestoneStep,
	}
	if c.userAgent == "" {
		c.userAgent = config.DefaultUserAgent
	}
	if c.readBufferSize <= 0 {
		c.readBufferSize = config.DefaultReadBufferSize
	}
	c.SetMaxRedirects(cfg.MaxRedirects)
	return c
}

// SetMaxRedirects caps how many redirects a single download follows
func (c *Client) SetMaxRedirects(max int) {
	c.httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) > max {
			return fmt.Errorf("stopped after %d redirects", max)
		}
		return nil
	}
}

// Download fetches req.URL into req.DestinationPath, reporting every chunk to sink.
// Any file already at the destination is replaced. Partial output is left on disk on failure.
func (c *Client) Download(ctx context.Context, req artifact.DownloadRequest, sink progress.Sink) (artifact.FileArtifact, error) {
	if err := req.Validate(); err != nil {
		return artifact.FileArtifact{}, err
	}
	s := newSession(req, sink, c.logger, c.milestoneStep)
	c.logger.Info("Downloading %s to %s", req.URL, req.DestinationPath)
	c.logger.Debug("Download session %s started for %s", s.id, s.name)

	if err := c.prepareDestination(req.DestinationPath); err != nil {
		return artifact.FileArtifact{}, err
	}

	resp, err := c.get(ctx, req.URL)
	if err != nil {
		return artifact.FileArtifact{}, err
	}
	defer resp.Body.Close()

	var total uint64
	if resp.ContentLength > 0 {
		total = uint64(resp.ContentLength)
	}
	c.logger.Debug("HTTP response status: %d, content length: %d", resp.StatusCode, resp.ContentLength)
	c.logger.Verbose("HTTP response headers: %v", resp.Header)

	file, err := c.fs.OpenFile(req.DestinationPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return artifact.FileArtifact{}, artifact.Wrap("download", req.DestinationPath, err)
	}

	written, err := c.stream(ctx, s, resp.Body, file, total)
	if err != nil {
		file.Close()
		return artifact.FileArtifact{}, err
	}

	if err := file.Sync(); err != nil {
		file.Close()
		return artifact.FileArtifact{}, artifact.Wrap("download", req.DestinationPath, errors.Wrap(err, "flush"))
	}
	if err := file.Close(); err != nil {
		return artifact.FileArtifact{}, artifact.Wrap("download", req.DestinationPath, errors.Wrap(err, "close"))
	}

	result, err := c.verify(req.DestinationPath, total)
	if err != nil {
		return result, err
	}
	c.logger.Info("Downloaded %s (%s) to %s", s.name, progress.FormatBytes(written), req.DestinationPath)
	return result, nil
}

// prepareDestination removes a previous file, creates the parent and probes it
func (c *Client) prepareDestination(path string) error {
	if _, err := c.fs.Stat(path); err == nil {
		c.logger.Debug("Removing existing file %s", path)
		if err := c.fs.Remove(path); err != nil {
			return &artifact.Error{Kind: artifact.KindCannotRemoveExisting, Op: "download", Path: path, Err: err}
		}
	}

	dir := filepath.Dir(path)
	if err := utils.EnsureDirFs(c.fs, dir); err != nil {
		return &artifact.Error{Kind: artifact.KindDirectoryCreateFailed, Op: "download", Path: dir, Err: err}
	}
	if err := location.Probe(c.fs, dir, filepath.Base(path), c.logger); err != nil {
		denied := &artifact.Error{Kind: artifact.KindPermissionDenied, Op: "download", Path: dir, Err: err}
		var probeErr *artifact.Error
		if errors.As(err, &probeErr) {
			denied.Detail, denied.Err = probeErr.Detail, probeErr.Err
		}
		return denied
	}
	return nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &artifact.Error{Kind: artifact.KindInvalidRequest, Op: "download", Detail: "failed to create request for " + url, Err: err}
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	c.logger.Verbose("HTTP request headers: %v", httpReq.Header)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &artifact.Error{Kind: artifact.Classify(err), Op: "download", Detail: url, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &artifact.Error{
			Kind:   artifact.KindHTTPError,
			Op:     "download",
			Status: resp.StatusCode,
			Reason: http.StatusText(resp.StatusCode),
			Detail: url,
		}
	}
	return resp, nil
}

// stream copies body into w one read at a time. Chunk N is written before
// chunk N+1 is read and cancellation is checked before every read.
func (c *Client) stream(ctx context.Context, s *session, body io.Reader, w io.Writer, total uint64) (uint64, error) {
	buf := make([]byte, c.readBufferSize)
	var downloaded uint64

	for {
		if err := ctx.Err(); err != nil {
			return downloaded, &artifact.Error{Kind: artifact.KindCancelled, Op: "download", Path: s.path, Err: err}
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return downloaded, artifact.Wrap("download", s.path, err)
			}
			downloaded += uint64(n)
			s.chunks++
			c.logger.Verbose("%s: chunk %d, %d bytes (%d total)", s.name, s.chunks, n, downloaded)
			s.emitter.Update(downloaded, total)
		}

		if readErr == io.EOF {
			return downloaded, nil
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return downloaded, &artifact.Error{Kind: artifact.KindCancelled, Op: "download", Path: s.path, Err: ctx.Err()}
			}
			if total > 0 && errors.Is(readErr, io.ErrUnexpectedEOF) {
				return downloaded, &artifact.Error{
					Kind:     artifact.KindIncompleteDownload,
					Op:       "download",
					Path:     s.path,
					Expected: int64(total),
					Actual:   int64(downloaded),
					Err:      readErr,
				}
			}
			return downloaded, &artifact.Error{Kind: artifact.Classify(readErr), Op: "download", Path: s.path, Err: readErr}
		}
	}
}

// verify stats the finished file and applies the size rules
func (c *Client) verify(path string, total uint64) (artifact.FileArtifact, error) {
	result, err := artifact.Stat(c.fs, path)
	if err != nil {
		return result, artifact.Wrap("download", path, err)
	}
	if !result.Exists || result.SizeBytes == 0 {
		return result, &artifact.Error{Kind: artifact.KindEmptyDownload, Op: "download", Path: path}
	}
	if total > 0 && uint64(result.SizeBytes) != total {
		return result, &artifact.Error{
			Kind:     artifact.KindIncompleteDownload,
			Op:       "download",
			Path:     path,
			Expected: int64(total),
			Actual:   result.SizeBytes,
		}
	}
	if c.minimumSize > 0 && result.SizeBytes < c.minimumSize {
		return result, &artifact.Error{
			Kind:   artifact.KindIncompleteDownload,
			Op:     "download",
			Path:   path,
			Detail: fmt.Sprintf("%d bytes is below the minimum of %d", result.SizeBytes, c.minimumSize),
		}
	}
	return result, nil
}
