// Package config loads the layered configuration spec §6 describes: a
// `~/.open-browser/config.json` file overridden by environment variables,
// producing the Resolved settings from which the wiring entrypoint builds
// the viewport.Config and agent.Config it passes down. Grounded on the teacher's flag-and-env cliOptions in
// cmd/agent/main.go, generalized from CLI flags alone into the file+env
// layering spec §6 names explicitly.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// BrowserFileConfig is the `browser` section of config.json.
type BrowserFileConfig struct {
	Headless        *bool  `json:"headless,omitempty"`
	DisableSecurity *bool  `json:"disableSecurity,omitempty"`
	BinaryPath      string `json:"binaryPath,omitempty"`
	UserDataDir     string `json:"userDataDir,omitempty"`
	ProxyServer     string `json:"proxyServer,omitempty"`
	ProxyUsername   string `json:"proxyUsername,omitempty"`
	ProxyPassword   string `json:"proxyPassword,omitempty"`
}

// AgentFileConfig is the `agent` section of config.json.
type AgentFileConfig struct {
	MaxSteps    *int     `json:"maxSteps,omitempty"`
	Model       string   `json:"model,omitempty"`
	Provider    string   `json:"provider,omitempty"`
	Vision      *bool    `json:"vision,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// FileConfig is the full shape of `~/.open-browser/config.json` (spec §6).
type FileConfig struct {
	Browser       BrowserFileConfig `json:"browser,omitempty"`
	Agent         AgentFileConfig   `json:"agent,omitempty"`
	TracePath     string            `json:"tracePath,omitempty"`
	RecordingPath string            `json:"recordingPath,omitempty"`
}

// Resolved is the fully merged configuration (file, then env, then
// whatever the caller layers on top from CLI flags) the wiring entrypoint
// consumes.
type Resolved struct {
	BrowserHeadless        bool
	BrowserDisableSecurity bool
	BrowserBinaryPath      string
	BrowserUserDataDir     string
	ProxyServer            string
	ProxyUsername          string
	ProxyPassword          string

	AgentMaxSteps    int
	AgentModel       string
	AgentProvider    string
	AgentVision      bool
	AgentTemperature float64

	TracePath     string
	RecordingPath string
}

// DefaultConfigPath returns `~/.open-browser/config.json`, or "" if the
// home directory can't be resolved.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".open-browser", "config.json")
}

// LoadFile reads and parses path; a missing file is not an error (every
// field is then sourced from defaults/env).
func LoadFile(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, err
	}
	var fc FileConfig
	if err := json.Unmarshal(raw, &fc); err != nil {
		return FileConfig{}, err
	}
	return fc, nil
}

// defaults matches the teacher's cliOptions defaults (40 steps, headless).
func defaults() Resolved {
	return Resolved{
		BrowserHeadless:  true,
		AgentMaxSteps:    40,
		AgentTemperature: 0,
		AgentVision:      true,
	}
}

// Load builds a Resolved config by layering file over defaults, then
// environment variables over the file (spec §6's env var list), matching
// the precedence a caller's CLI flags should apply on top of last.
func Load(configPath string) (Resolved, error) {
	r := defaults()

	fc, err := LoadFile(configPath)
	if err != nil {
		return Resolved{}, err
	}
	applyFile(&r, fc)
	applyEnv(&r)
	return r, nil
}

func applyFile(r *Resolved, fc FileConfig) {
	if fc.Browser.Headless != nil {
		r.BrowserHeadless = *fc.Browser.Headless
	}
	if fc.Browser.DisableSecurity != nil {
		r.BrowserDisableSecurity = *fc.Browser.DisableSecurity
	}
	if fc.Browser.BinaryPath != "" {
		r.BrowserBinaryPath = fc.Browser.BinaryPath
	}
	if fc.Browser.UserDataDir != "" {
		r.BrowserUserDataDir = fc.Browser.UserDataDir
	}
	if fc.Browser.ProxyServer != "" {
		r.ProxyServer = fc.Browser.ProxyServer
	}
	if fc.Browser.ProxyUsername != "" {
		r.ProxyUsername = fc.Browser.ProxyUsername
	}
	if fc.Browser.ProxyPassword != "" {
		r.ProxyPassword = fc.Browser.ProxyPassword
	}

	if fc.Agent.MaxSteps != nil {
		r.AgentMaxSteps = *fc.Agent.MaxSteps
	}
	if fc.Agent.Model != "" {
		r.AgentModel = fc.Agent.Model
	}
	if fc.Agent.Provider != "" {
		r.AgentProvider = fc.Agent.Provider
	}
	if fc.Agent.Vision != nil {
		r.AgentVision = *fc.Agent.Vision
	}
	if fc.Agent.Temperature != nil {
		r.AgentTemperature = *fc.Agent.Temperature
	}

	if fc.TracePath != "" {
		r.TracePath = fc.TracePath
	}
	if fc.RecordingPath != "" {
		r.RecordingPath = fc.RecordingPath
	}
}

// applyEnv overlays the environment variables spec §6 names, each taking
// precedence over the file when set.
func applyEnv(r *Resolved) {
	if v, ok := lookupBool("BROWSER_HEADLESS"); ok {
		r.BrowserHeadless = v
	}
	if v, ok := lookupBool("BROWSER_DISABLE_SECURITY"); ok {
		r.BrowserDisableSecurity = v
	}
	if v := os.Getenv("BROWSER_BINARY_PATH"); v != "" {
		r.BrowserBinaryPath = v
	}
	if v := os.Getenv("BROWSER_USER_DATA_DIR"); v != "" {
		r.BrowserUserDataDir = v
	}
	if v := os.Getenv("OPEN_BROWSER_PROXY_SERVER"); v != "" {
		r.ProxyServer = v
	}
	if v := os.Getenv("OPEN_BROWSER_PROXY_USERNAME"); v != "" {
		r.ProxyUsername = v
	}
	if v := os.Getenv("OPEN_BROWSER_PROXY_PASSWORD"); v != "" {
		r.ProxyPassword = v
	}
	if r.ProxyServer == "" {
		if v := os.Getenv("HTTPS_PROXY"); v != "" {
			r.ProxyServer = v
		} else if v := os.Getenv("HTTP_PROXY"); v != "" {
			r.ProxyServer = v
		}
	}
	if v := os.Getenv("OPEN_BROWSER_TRACE_PATH"); v != "" {
		r.TracePath = v
	}
	if v := os.Getenv("OPEN_BROWSER_SAVE_RECORDING_PATH"); v != "" {
		r.RecordingPath = v
	}
}

func lookupBool(key string) (bool, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}
