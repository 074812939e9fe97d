package ipc

import (
	"fmt"
	"os"
	"path/filepath"
)

// SocketDir is the directory where serve sockets are created by default
const SocketDir = "/var/tmp/go-artifactdelivery"

// Commands accepted by the server
const (
	CommandOpenFile           = "open_file"
	CommandRevealFile         = "reveal_file"
	CommandGetWritablePath    = "get_writable_path"
	CommandDownloadFile       = "download_file"
	CommandSaveDownloadedFile = "save_downloaded_file"
	CommandInstallArtifact    = "install_artifact"
	CommandCancel             = "cancel"
)

// DefaultSocketPath returns the socket path for the given user id
func DefaultSocketPath(uid string) string {
	if uid == "" {
		uid = "unknown"
	}
	return filepath.Join(SocketDir, fmt.Sprintf("serve-%s.sock", uid))
}

// EnsureSocketDir creates the parent of sockPath, private to the current user
func EnsureSocketDir(sockPath string) error {
	dir := filepath.Dir(sockPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create socket dir %s: %w", dir, err)
	}
	return nil
}

// Request is one line sent by the front end
type Request struct {
	ID          string `json:"id"`
	Command     string `json:"command"`
	Path        string `json:"path,omitempty"`
	URL         string `json:"url,omitempty"`
	Destination string `json:"destination,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	FileName    string `json:"fileName,omitempty"`
	Payload     string `json:"payload,omitempty"`
	Target      string `json:"target,omitempty"` // request id to cancel
}

// Response answers exactly one Request
type Response struct {
	ID      string `json:"id"`
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Event is an out-of-band notification tied to a running request
type Event struct {
	ID      string      `json:"id"`
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}
