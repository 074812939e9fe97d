// pkg/config/profile.go
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"howett.net/plist"
)

const DefaultProfileDomain = "com.github.go-artifactdelivery"

// ProfileResult describes where preferences were read from
type ProfileResult struct {
	ConfigFound bool
	Source      string // "managed", "user", "file" or "none"
	Path        string
}

// ReadFromProfile applies preferences for domain: managed preferences first,
// then the user's own defaults domain.
func (c *Config) ReadFromProfile(domain string) (*ProfileResult, error) {
	if domain == "" {
		domain = DefaultProfileDomain
	}

	managedPath := fmt.Sprintf("/Library/Managed Preferences/%s.plist", domain)
	if prefs := readPlistFile(managedPath); prefs != nil {
		if err := c.applySettingsMap(prefs); err != nil {
			return nil, fmt.Errorf("failed to apply managed preferences: %w", err)
		}
		return &ProfileResult{ConfigFound: true, Source: "managed", Path: managedPath}, nil
	}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		userPath := filepath.Join(homeDir, "Library", "Preferences", domain+".plist")
		if prefs := readPlistFile(userPath); prefs != nil {
			if err := c.applySettingsMap(prefs); err != nil {
				return nil, fmt.Errorf("failed to apply user preferences: %w", err)
			}
			return &ProfileResult{ConfigFound: true, Source: "user", Path: userPath}, nil
		}
	}

	return &ProfileResult{ConfigFound: false, Source: "none"}, nil
}

// LoadPlistFile applies settings from an explicit plist file (xml or binary)
func (c *Config) LoadPlistFile(path string) (*ProfileResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config %s: %w", path, err)
	}
	defer file.Close()

	prefs, err := decodePlist(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := c.applySettingsMap(prefs); err != nil {
		return nil, fmt.Errorf("failed to apply config %s: %w", path, err)
	}
	return &ProfileResult{ConfigFound: true, Source: "file", Path: path}, nil
}

// readPlistFile reads a plist file and returns its contents, or nil
func readPlistFile(path string) map[string]interface{} {
	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()

	prefs, err := decodePlist(file)
	if err != nil {
		return nil
	}
	return prefs
}

func decodePlist(r io.ReadSeeker) (map[string]interface{}, error) {
	var prefs map[string]interface{}
	if err := plist.NewDecoder(r).Decode(&prefs); err != nil {
		return nil, err
	}
	return prefs, nil
}

// applySettingsMap applies a settings map to the config
func (c *Config) applySettingsMap(settings map[string]interface{}) error {
	if val, exists := settings["Debug"]; exists {
		if b, ok := asBool(val); ok {
			c.Debug = b
		}
	}
	if val, exists := settings["Verbose"]; exists {
		if b, ok := asBool(val); ok {
			c.Verbose = b
		}
	}
	if val, exists := settings["LogFilePath"]; exists {
		if str, ok := val.(string); ok && str != "" {
			c.LogFilePath = str
		}
	}

	if val, exists := settings["UserAgent"]; exists {
		str, ok := val.(string)
		if !ok || str == "" {
			return fmt.Errorf("UserAgent must be a non-empty string - omit the key instead")
		}
		c.UserAgent = str
	}

	if val, exists := settings["MaxRedirects"]; exists {
		if i, ok := asInt(val); ok {
			c.MaxRedirects = int(i)
		}
	}
	if val, exists := settings["ReadBufferSize"]; exists {
		if i, ok := asInt(val); ok {
			c.ReadBufferSize = int(i)
		}
	}
	if val, exists := settings["DecodeChunkSize"]; exists {
		if i, ok := asInt(val); ok {
			c.DecodeChunkSize = int(i)
		}
	}
	if val, exists := settings["MilestoneStep"]; exists {
		if i, ok := asInt(val); ok {
			c.MilestoneStep = int(i)
		}
	}
	if val, exists := settings["MinimumSize"]; exists {
		if i, ok := asInt(val); ok {
			c.MinimumSize = i
		}
	}
	if val, exists := settings["DownloadMaxConcurrency"]; exists {
		if i, ok := asInt(val); ok {
			c.DownloadMaxConcurrency = int(i)
		}
	}

	// Timeouts accept seconds as an integer or a duration string
	if val, exists := settings["ConnectTimeout"]; exists {
		if d, ok := asDuration(val); ok {
			c.ConnectTimeout = d
		}
	}
	if val, exists := settings["TotalTimeout"]; exists {
		if d, ok := asDuration(val); ok {
			c.TotalTimeout = d
		}
	}

	if val, exists := settings["CandidateDirs"]; exists {
		list, ok := val.([]interface{})
		if !ok {
			return fmt.Errorf("CandidateDirs is not an array")
		}
		dirs := make([]string, 0, len(list))
		for _, item := range list {
			if str, ok := item.(string); ok && str != "" {
				dirs = append(dirs, str)
			}
		}
		c.CandidateDirs = dirs
	}
	if val, exists := settings["TempDir"]; exists {
		if str, ok := val.(string); ok && str != "" {
			c.TempDir = str
		}
	}

	return nil
}

func asBool(val interface{}) (bool, bool) {
	switch v := val.(type) {
	case bool:
		return v, true
	case string:
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed, true
		}
	}
	return false, false
}

func asInt(val interface{}) (int64, bool) {
	switch v := val.(type) {
	case int64:
		return v, true
	case uint64:
		return int64(v), true
	case int:
		return int64(v), true
	case string:
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

func asDuration(val interface{}) (time.Duration, bool) {
	if i, ok := asInt(val); ok {
		return time.Duration(i) * time.Second, true
	}
	if str, ok := val.(string); ok {
		if d, err := time.ParseDuration(str); err == nil {
			return d, true
		}
	}
	return 0, false
}
