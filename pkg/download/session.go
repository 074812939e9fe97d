package download

import (
	"github.com/google/uuid"

	"github.com/go-artifactdelivery/pkg/artifact"
	"github.com/go-artifactdelivery/pkg/progress"
	"github.com/go-artifactdelivery/pkg/utils"
)

// session is the state owned by one in-flight download
type session struct {
	id      string
	name    string
	path    string
	chunks  int
	emitter *progress.Emitter
}

func newSession(req artifact.DownloadRequest, sink progress.Sink, logger *utils.Logger, step int) *session {
	name := req.Name()
	return &session{
		id:      uuid.NewString(),
		name:    name,
		path:    req.DestinationPath,
		emitter: progress.NewEmitter(name, sink, logger, step),
	}
}
