// Package progress turns (downloaded, total) byte counts into fine-grained
// notifications for the UI and throttled milestone lines for the log.
package progress

import (
	"math"

	"github.com/go-artifactdelivery/pkg/utils"
)

// DownloadProgress is one progress observation for a single download
type DownloadProgress struct {
	DownloadedBytes uint64
	TotalBytes      uint64 // 0 when the server sent no Content-Length
	Percentage      float64
}

// Known reports whether the total is known and Percentage is meaningful
func (p DownloadProgress) Known() bool {
	return p.TotalBytes > 0
}

// Sink receives every progress update. Errors are reported back but never
// abort the transfer.
type Sink interface {
	Progress(p DownloadProgress) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(p DownloadProgress) error

func (f SinkFunc) Progress(p DownloadProgress) error { return f(p) }

// Discard is a Sink that drops everything
var Discard Sink = SinkFunc(func(DownloadProgress) error { return nil })

// Percentage returns downloaded/total as a value clamped to [0,100]
func Percentage(downloaded, total uint64) float64 {
	if total == 0 {
		return 0
	}
	pct := float64(downloaded) / float64(total) * 100
	return math.Max(0, math.Min(100, pct))
}

// Emitter is owned by exactly one download. It forwards every update to its
// sink and logs only when a new milestone is crossed.
type Emitter struct {
	name   string
	sink   Sink
	logger *utils.Logger

	step          int
	nextMilestone int
	lastPercent   float64
	sinkFailures  int
}

// NewEmitter creates an emitter for one download. Milestones are 0%, step,
// 2*step and so on up to 100%; step values outside 1..100 fall back to 20.
func NewEmitter(name string, sink Sink, logger *utils.Logger, step int) *Emitter {
	if sink == nil {
		sink = Discard
	}
	if step <= 0 || step > 100 {
		step = 20
	}
	return &Emitter{name: name, sink: sink, logger: logger, step: step}
}

// Update records a new byte count and returns the observation that was emitted
func (e *Emitter) Update(downloaded, total uint64) DownloadProgress {
	p := DownloadProgress{DownloadedBytes: downloaded, TotalBytes: total}
	if total > 0 {
		// keep the reported series non-decreasing
		p.Percentage = math.Max(Percentage(downloaded, total), e.lastPercent)
		e.lastPercent = p.Percentage
		e.logMilestone(p)
	}

	if err := e.sink.Progress(p); err != nil {
		e.sinkFailures++
		if e.sinkFailures == 1 {
			e.logger.Debug("Progress notification failed for %s: %v", e.name, err)
		}
	}
	return p
}

// SinkFailures returns how many notifications the sink rejected
func (e *Emitter) SinkFailures() int {
	return e.sinkFailures
}

func (e *Emitter) logMilestone(p DownloadProgress) {
	if e.nextMilestone > 100 || int(p.Percentage) < e.nextMilestone {
		return
	}
	reached := int(p.Percentage) / e.step * e.step
	e.logger.Info("%s: %d%% (%s / %s)", e.name, reached, FormatBytes(p.DownloadedBytes), FormatBytes(p.TotalBytes))
	e.nextMilestone = reached + e.step
}
