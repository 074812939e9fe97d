package download

import (
	"context"

	"github.com/go-artifactdelivery/pkg/artifact"
	"github.com/go-artifactdelivery/pkg/progress"
)

// Downloader defines what a downloader should be able to do
type Downloader interface {
	Download(ctx context.Context, req artifact.DownloadRequest, sink progress.Sink) (artifact.FileArtifact, error)
	DownloadAll(ctx context.Context, requests []artifact.DownloadRequest, maxConcurrency int, sinkFor SinkFactory) []Result
}

var _ Downloader = (*Client)(nil)
