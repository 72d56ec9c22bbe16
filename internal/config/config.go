/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
// The generative-image API key never lives in this file; it is kept in the OS
// keyring (with an env fallback for headless deployments).

type GenerationConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Model     string `yaml:"model"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type StorageConfig struct {
	DataDir       string `yaml:"data_dir"`       // sqlite index + exported files
	CatalogFile   string `yaml:"catalog_file"`   // optional overlay catalog YAML
	AssetDir      string `yaml:"asset_dir"`      // local overlay assets
	EphemeralTTLs int    `yaml:"ephemeral_ttls"` // seconds; 0 means default
}

type PersistConfig struct {
	PostgresDSN   string `yaml:"postgres_dsn"`
	PublicBaseURL string `yaml:"public_base_url"`
}

type PipelineConfig struct {
	DeadlineSeconds int `yaml:"deadline_seconds"`
	AdmissionLimit  int `yaml:"admission_limit"`
	AdmissionWindow int `yaml:"admission_window"` // seconds
}

type GeneralConfig struct {
	TelemetryOptIn bool `yaml:"telemetry_opt_in"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int              `yaml:"config_version"`
	General       GeneralConfig    `yaml:"general"`
	Generation    GenerationConfig `yaml:"generation"`
	Storage       StorageConfig    `yaml:"storage"`
	Persist       PersistConfig    `yaml:"persist"`
	Pipeline      PipelineConfig   `yaml:"pipeline"`
	Logging       LoggingConfig    `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{TelemetryOptIn: false},
		Generation:    GenerationConfig{Endpoint: "", Model: "default", TimeoutMs: 20000},
		Storage:       StorageConfig{DataDir: "", CatalogFile: "", AssetDir: "assets", EphemeralTTLs: 0},
		Persist:       PersistConfig{},
		Pipeline:      PipelineConfig{DeadlineSeconds: 25, AdmissionLimit: 10, AdmissionWindow: 60},
		Logging:       LoggingConfig{Level: "info", Format: "console", File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvGenEndpoint     = "STMP_GEN_ENDPOINT"
	EnvGenModel        = "STMP_GEN_MODEL"
	EnvGenTimeoutMs    = "STMP_GEN_TIMEOUT_MS"
	EnvGenAPIKey       = "STMP_GEN_API_KEY" // fallback when no keyring is available
	EnvDataDir         = "STMP_DATA_DIR"
	EnvCatalogFile     = "STMP_CATALOG_FILE"
	EnvAssetDir        = "STMP_ASSET_DIR"
	EnvPostgresDSN     = "STMP_POSTGRES_DSN"
	EnvPublicBaseURL   = "STMP_PUBLIC_BASE_URL"
	EnvDeadlineSeconds = "STMP_DEADLINE_SECONDS"
	EnvAdmissionLimit  = "STMP_ADMISSION_LIMIT"
	EnvAdmissionWindow = "STMP_ADMISSION_WINDOW"
	EnvTelemetryOptIn  = "STMP_TELEMETRY_OPT_IN"
	EnvLogLevel        = "STMP_LOG_LEVEL"
	EnvLogFormat       = "STMP_LOG_FORMAT"
	EnvLogFile         = "STMP_LOG_FILE"
)

// Service/keys for the OS keyring.
const (
	keyringService = "Stampd"
	keyringAPIKey  = "genimage_api_key"
)

// SecretStore abstracts the keyring so tests can stub it.
type SecretStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// secretStore is swapped for a fake in tests.
var secretStore SecretStore = osKeyring{}

type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "Stampd")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "Stampd")
	default: // linux and others
		base = filepath.Join(os.Getenv("HOME"), ".config", "stampd")
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, and merges
// environment overrides. The generative-API key is returned separately; it is
// looked up in the keyring first and falls back to STMP_GEN_API_KEY.
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err == nil {
			mergeInto(&cfg, &fileCfg)
		}
	}
	applyEnvOverrides(&cfg)

	key, err := secretStore.Get(keyringService, keyringAPIKey)
	if err != nil || key == "" {
		key = strings.TrimSpace(os.Getenv(EnvGenAPIKey))
	}
	return cfg, key, nil
}

// Save writes the user config YAML and persists the API key into the OS keyring (if non-empty).
func Save(cfg AppConfig, apiKey string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if apiKey != "" {
		if err := secretStore.Set(keyringService, keyringAPIKey, apiKey); err != nil {
			return err
		}
	}
	return nil
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	if src.Generation.Endpoint != "" {
		dst.Generation.Endpoint = src.Generation.Endpoint
	}
	if src.Generation.Model != "" {
		dst.Generation.Model = src.Generation.Model
	}
	if src.Generation.TimeoutMs != 0 {
		dst.Generation.TimeoutMs = src.Generation.TimeoutMs
	}
	if src.Storage.DataDir != "" {
		dst.Storage.DataDir = src.Storage.DataDir
	}
	if src.Storage.CatalogFile != "" {
		dst.Storage.CatalogFile = src.Storage.CatalogFile
	}
	if src.Storage.AssetDir != "" {
		dst.Storage.AssetDir = src.Storage.AssetDir
	}
	if src.Storage.EphemeralTTLs != 0 {
		dst.Storage.EphemeralTTLs = src.Storage.EphemeralTTLs
	}
	if src.Persist.PostgresDSN != "" {
		dst.Persist.PostgresDSN = src.Persist.PostgresDSN
	}
	if src.Persist.PublicBaseURL != "" {
		dst.Persist.PublicBaseURL = src.Persist.PublicBaseURL
	}
	if src.Pipeline.DeadlineSeconds != 0 {
		dst.Pipeline.DeadlineSeconds = src.Pipeline.DeadlineSeconds
	}
	if src.Pipeline.AdmissionLimit != 0 {
		dst.Pipeline.AdmissionLimit = src.Pipeline.AdmissionLimit
	}
	if src.Pipeline.AdmissionWindow != 0 {
		dst.Pipeline.AdmissionWindow = src.Pipeline.AdmissionWindow
	}
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	setStr := func(env string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			*dst = v
		}
	}
	setInt := func(env string, dst *int) {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setStr(EnvGenEndpoint, &cfg.Generation.Endpoint)
	setStr(EnvGenModel, &cfg.Generation.Model)
	setInt(EnvGenTimeoutMs, &cfg.Generation.TimeoutMs)
	setStr(EnvDataDir, &cfg.Storage.DataDir)
	setStr(EnvCatalogFile, &cfg.Storage.CatalogFile)
	setStr(EnvAssetDir, &cfg.Storage.AssetDir)
	setStr(EnvPostgresDSN, &cfg.Persist.PostgresDSN)
	setStr(EnvPublicBaseURL, &cfg.Persist.PublicBaseURL)
	setInt(EnvDeadlineSeconds, &cfg.Pipeline.DeadlineSeconds)
	setInt(EnvAdmissionLimit, &cfg.Pipeline.AdmissionLimit)
	setInt(EnvAdmissionWindow, &cfg.Pipeline.AdmissionWindow)
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		lv := strings.ToLower(v)
		cfg.General.TelemetryOptIn = lv == "1" || lv == "true" || lv == "on" || lv == "yes"
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

// Deadline returns the end-to-end pipeline deadline as a duration.
func (p PipelineConfig) Deadline() time.Duration {
	if p.DeadlineSeconds <= 0 {
		return time.Duration(Defaults().Pipeline.DeadlineSeconds) * time.Second
	}
	return time.Duration(p.DeadlineSeconds) * time.Second
}

// GenTimeout returns the generation request timeout as a duration.
func (g GenerationConfig) GenTimeout() time.Duration {
	if g.TimeoutMs <= 0 {
		return time.Duration(Defaults().Generation.TimeoutMs) * time.Millisecond
	}
	return time.Duration(g.TimeoutMs) * time.Millisecond
}
