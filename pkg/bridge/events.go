package bridge

import (
	"github.com/go-artifactdelivery/pkg/progress"
)

// EventDownloadProgress is the event name carrying ProgressPayload
const EventDownloadProgress = "download-progress"

// EventEmitter delivers out-of-band events to the front end
type EventEmitter interface {
	Emit(event string, payload interface{}) error
}

// EmitterFunc adapts a function to EventEmitter
type EmitterFunc func(event string, payload interface{}) error

func (f EmitterFunc) Emit(event string, payload interface{}) error { return f(event, payload) }

// ProgressPayload is the wire form of a progress update. Percentage is
// omitted when the total size is unknown.
type ProgressPayload struct {
	Downloaded uint64   `json:"downloaded"`
	Total      uint64   `json:"total"`
	Percentage *float64 `json:"percentage,omitempty"`
}

// NewProgressPayload converts a progress observation to its wire form
func NewProgressPayload(p progress.DownloadProgress) ProgressPayload {
	payload := ProgressPayload{Downloaded: p.DownloadedBytes, Total: p.TotalBytes}
	if p.Known() {
		pct := p.Percentage
		payload.Percentage = &pct
	}
	return payload
}

// NewProgressSink forwards progress updates as "download-progress" events.
// A nil emitter yields a sink that drops everything.
func NewProgressSink(events EventEmitter) progress.Sink {
	if events == nil {
		return progress.Discard
	}
	return progress.SinkFunc(func(p progress.DownloadProgress) error {
		return events.Emit(EventDownloadProgress, NewProgressPayload(p))
	})
}
