package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/go-artifactdelivery/pkg/bridge"
	"github.com/go-artifactdelivery/pkg/utils"
)

// maxLineSize bounds one request line; encoded payloads travel inline
const maxLineSize = 512 * 1024 * 1024

// Server answers JSON-lines requests with the bridge operations. Requests on
// one stream run concurrently; responses and events may interleave.
type Server struct {
	service *bridge.Service
	logger  *utils.Logger
}

// NewServer creates a server backed by service
func NewServer(service *bridge.Service, logger *utils.Logger) *Server {
	return &Server{service: service, logger: logger}
}

// inFlight tracks the running requests of one stream. Ids and cancel
// targets are only visible to the stream that issued them.
type inFlight struct {
	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// Serve reads requests from r until EOF or ctx is done and writes replies to w.
// It waits for in-flight requests before returning.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := &lineWriter{enc: json.NewEncoder(w)}
	requests := &inFlight{running: make(map[string]context.CancelFunc)}
	var wg sync.WaitGroup
	defer wg.Wait()

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			if len(line) == 0 {
				continue
			}

			var req Request
			if err := json.Unmarshal(line, &req); err != nil {
				s.logger.Error("IPC decode error: %v", err)
				out.write(Response{OK: false, Error: fmt.Sprintf("invalid request: %v", err)})
				continue
			}
			if req.ID == "" {
				req.ID = uuid.NewString()
			}
			s.logger.Debug("IPC request: id=%s cmd=%s", req.ID, req.Command)

			if req.Command == CommandCancel {
				out.write(s.cancel(requests, req))
				continue
			}

			reqCtx, ok := requests.track(ctx, req.ID)
			if !ok {
				out.write(Response{ID: req.ID, OK: false, Error: "request id already in use: " + req.ID})
				continue
			}
			wg.Add(1)
			go func(req Request) {
				defer wg.Done()
				defer requests.untrack(req.ID)
				out.write(s.handle(reqCtx, req, out))
			}(req)
		}
	}
}

// ListenUnix serves every connection on a Unix domain socket until ctx is done
func (s *Server) ListenUnix(ctx context.Context, sockPath string) error {
	if err := EnsureSocketDir(sockPath); err != nil {
		return err
	}
	// Remove any stale socket
	_ = os.Remove(sockPath)

	l, err := net.Listen("unix", sockPath)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", sockPath)
	}
	defer os.Remove(sockPath)

	if err := os.Chmod(sockPath, 0600); err != nil {
		s.logger.Warn("Failed to set socket permissions: %v", err)
	}
	s.logger.Info("IPC listening at %s", sockPath)

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "accept")
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer c.Close()
			connCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			go func() {
				<-connCtx.Done()
				c.Close()
			}()
			if err := s.Serve(connCtx, c, c); err != nil && connCtx.Err() == nil {
				s.logger.Debug("IPC connection ended: %v", err)
			}
		}(conn)
	}
}

func (s *Server) handle(ctx context.Context, req Request, out *lineWriter) Response {
	var (
		msg string
		err error
	)

	switch req.Command {
	case CommandOpenFile:
		msg, err = s.service.OpenFile(ctx, req.Path)
	case CommandRevealFile:
		msg, err = s.service.RevealFile(ctx, req.Path)
	case CommandGetWritablePath:
		msg, err = s.service.GetWritablePath(ctx, req.FileName)
	case CommandDownloadFile:
		events := bridge.EmitterFunc(func(event string, payload interface{}) error {
			return out.write(Event{ID: req.ID, Event: event, Payload: payload})
		})
		msg, err = s.service.DownloadFile(ctx, req.URL, req.Destination, req.DisplayName, events)
	case CommandSaveDownloadedFile:
		msg, err = s.service.SaveDownloadedFile(ctx, req.Destination, req.Payload, req.DisplayName)
	case CommandInstallArtifact:
		msg, err = s.service.InstallArtifact(ctx, req.Path)
	default:
		err = fmt.Errorf("unknown command: %s", req.Command)
	}

	if err != nil {
		s.logger.Debug("IPC request %s failed: %v", req.ID, err)
		return Response{ID: req.ID, OK: false, Error: err.Error()}
	}
	return Response{ID: req.ID, OK: true, Message: msg}
}

func (f *inFlight) track(parent context.Context, id string) (context.Context, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.running[id]; exists {
		return nil, false
	}
	ctx, cancel := context.WithCancel(parent)
	f.running[id] = cancel
	return ctx, true
}

func (f *inFlight) untrack(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cancel, ok := f.running[id]; ok {
		cancel()
		delete(f.running, id)
	}
}

func (f *inFlight) lookup(id string) (context.CancelFunc, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cancel, ok := f.running[id]
	return cancel, ok
}

func (s *Server) cancel(requests *inFlight, req Request) Response {
	cancel, ok := requests.lookup(req.Target)

	if !ok {
		return Response{ID: req.ID, OK: false, Error: "no running request with id " + req.Target}
	}
	s.logger.Info("Cancelling request %s", req.Target)
	cancel()
	return Response{ID: req.ID, OK: true, Message: "Cancelled " + req.Target}
}

// lineWriter serialises concurrent writers onto one stream
type lineWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (w *lineWriter) write(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(v)
}
