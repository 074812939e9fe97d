package download

import (
	"context"
	"sync"

	"github.com/go-artifactdelivery/pkg/artifact"
	"github.com/go-artifactdelivery/pkg/progress"
)

// Result is the outcome of one request in a batch
type Result struct {
	Request  artifact.DownloadRequest
	Artifact artifact.FileArtifact
	Error    error
}

// SinkFactory returns the progress sink for one request; nil means no sink
type SinkFactory func(req artifact.DownloadRequest) progress.Sink

// DownloadAll downloads requests in parallel. Results are in request order.
func (c *Client) DownloadAll(ctx context.Context, requests []artifact.DownloadRequest, maxConcurrency int, sinkFor SinkFactory) []Result {
	if maxConcurrency <= 0 {
		maxConcurrency = len(requests)
	}

	var wg sync.WaitGroup
	results := make([]Result, len(requests))
	semaphore := make(chan struct{}, maxConcurrency)

	for i, req := range requests {
		wg.Add(1)

		go func(index int, req artifact.DownloadRequest) {
			defer wg.Done()

			// Acquire semaphore
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			var sink progress.Sink
			if sinkFor != nil {
				sink = sinkFor(req)
			}

			c.logger.Debug("Starting download: %s", req.Name())
			result, err := c.Download(ctx, req, sink)
			results[index] = Result{Request: req, Artifact: result, Error: err}
		}(i, req)
	}

	wg.Wait()

	var failedCount int
	for _, result := range results {
		if result.Error != nil {
			failedCount++
		}
	}
	if failedCount > 0 {
		c.logger.Warn("%d of %d downloads failed", failedCount, len(requests))
	}

	return results
}
