package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Defaults for every tunable threshold
const (
	DefaultUserAgent       = "go-artifactdelivery/1.0"
	DefaultMaxRedirects    = 10
	DefaultConnectTimeout  = 30 * time.Second
	DefaultTotalTimeout    = 300 * time.Second
	DefaultReadBufferSize  = 32 * 1024
	DefaultDecodeChunkSize = 1024 * 1024 // encoded characters, multiple of 4
	DefaultMilestoneStep   = 20
	DefaultMaxConcurrency  = 4
)

// Config represents the main configuration for go-artifactdelivery
type Config struct {
	Debug       bool   `json:"debug"`
	Verbose     bool   `json:"verbose"`
	LogFilePath string `json:"log_file_path,omitempty"` // optional: also log to this file

	// HTTP transfer
	UserAgent      string        `json:"user_agent"`
	MaxRedirects   int           `json:"max_redirects"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
	TotalTimeout   time.Duration `json:"total_timeout"`
	ReadBufferSize int           `json:"read_buffer_size"` // bytes per body read

	// MinimumSize rejects downloads smaller than this many bytes. 0 disables the check.
	MinimumSize int64 `json:"minimum_size"`

	// Encoded payloads
	DecodeChunkSize int `json:"decode_chunk_size"`

	// Progress
	MilestoneStep int `json:"milestone_step"` // percent between logged milestones

	// Concurrency for batch downloads
	DownloadMaxConcurrency int `json:"download_max_concurrency"`

	// Destination discovery, most-preferred first
	CandidateDirs []string `json:"candidate_dirs"`
	TempDir       string   `json:"temp_dir,omitempty"`
}

// NewConfig creates a new Config with defaults
func NewConfig() *Config {
	return &Config{
		Debug:                  false,
		Verbose:                false,
		UserAgent:              DefaultUserAgent,
		MaxRedirects:           DefaultMaxRedirects,
		ConnectTimeout:         DefaultConnectTimeout,
		TotalTimeout:           DefaultTotalTimeout,
		ReadBufferSize:         DefaultReadBufferSize,
		MinimumSize:            0,
		DecodeChunkSize:        DefaultDecodeChunkSize,
		MilestoneStep:          DefaultMilestoneStep,
		DownloadMaxConcurrency: DefaultMaxConcurrency,
		CandidateDirs:          DefaultCandidateDirs(),
		TempDir:                os.TempDir(),
	}
}

// DefaultCandidateDirs returns the user's Downloads, Desktop and home directories
func DefaultCandidateDirs() []string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return nil
	}
	return []string{
		filepath.Join(home, "Downloads"),
		filepath.Join(home, "Desktop"),
		home,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.MaxRedirects < 0 {
		return fmt.Errorf("max redirects must not be negative, got %d", c.MaxRedirects)
	}
	if c.ConnectTimeout <= 0 || c.TotalTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive (connect %v, total %v)", c.ConnectTimeout, c.TotalTimeout)
	}
	if c.ReadBufferSize <= 0 {
		return fmt.Errorf("read buffer size must be positive, got %d", c.ReadBufferSize)
	}
	if c.DecodeChunkSize <= 0 || c.DecodeChunkSize%4 != 0 {
		return fmt.Errorf("decode chunk size must be a positive multiple of 4, got %d", c.DecodeChunkSize)
	}
	if c.MilestoneStep <= 0 || c.MilestoneStep > 100 {
		return fmt.Errorf("milestone step must be within 1..100, got %d", c.MilestoneStep)
	}
	if c.MinimumSize < 0 {
		return fmt.Errorf("minimum size must not be negative, got %d", c.MinimumSize)
	}
	return nil
}

// RedactedForLogging returns a human-friendly snapshot of the effective
// configuration for debug logs. Durations are rendered as strings.
func (c *Config) RedactedForLogging() map[string]interface{} {
	return map[string]interface{}{
		// Logging
		"Debug":       c.Debug,
		"Verbose":     c.Verbose,
		"LogFilePath": c.LogFilePath,
		// Transfer
		"UserAgent":      c.UserAgent,
		"MaxRedirects":   c.MaxRedirects,
		"ConnectTimeout": c.ConnectTimeout.String(),
		"TotalTimeout":   c.TotalTimeout.String(),
		"ReadBufferSize": c.ReadBufferSize,
		"MinimumSize":    c.MinimumSize,
		// Payloads & progress
		"DecodeChunkSize": c.DecodeChunkSize,
		"MilestoneStep":   c.MilestoneStep,
		// Concurrency
		"DownloadMaxConcurrency": c.DownloadMaxConcurrency,
		// Locations
		"CandidateDirs": c.CandidateDirs,
		"TempDir":       c.TempDir,
	}
}
