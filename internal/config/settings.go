package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

type Config struct {
	Detector struct {
		// Window is the trailing range each run analyses.
		Window Timer `json:"window"`

		// DetectionTimer controls the cadence of scheduled runs.
		DetectionTimer Timer `json:"detection_timer"`

		// HighFrequencyThreshold flags addresses with strictly more requests
		// than this inside one window.
		HighFrequencyThreshold uint32 `json:"high_frequency_threshold"`

		// SensitivePaths are matched as substrings against request paths so
		// traversal variants like /foo/../admin still hit.
		SensitivePaths []string `json:"sensitive_paths"`

		// NotFoundThreshold flags addresses with strictly more not-found
		// responses than this inside one window.
		NotFoundThreshold uint32 `json:"not_found_threshold"`

		AutoBlock          bool   `json:"auto_block"`
		AutoBlockThreshold uint32 `json:"auto_block_threshold"`

		// DeactivateAfterDays marks suspicious entries inactive once they go
		// this many days without a fresh detection. 0 disables the sweep.
		DeactivateAfterDays uint32 `json:"deactivate_after_days"`
	} `json:"detector"`

	RateLimit struct {
		Enabled bool `json:"enabled"`

		// MaxRequests is the per-address request budget inside one window.
		// Requests beyond it are rejected with a 429 until the window moves.
		MaxRequests uint32 `json:"max_requests"`

		Window Timer `json:"window"`
	} `json:"rate_limit"`

	Geolocation struct {
		// LookupURL is the remote lookup endpoint; the address is appended as
		// the final path segment.
		LookupURL string `json:"lookup_url"`

		// LookupTimeoutMs bounds a single remote lookup.
		LookupTimeoutMs uint32 `json:"lookup_timeout_ms"`

		// MaxMindDBPath points at a local GeoLite2 City database. When set it
		// is preferred over the remote endpoint.
		MaxMindDBPath string `json:"maxmind_db_path"`

		MemoryCacheTTL  Timer `json:"memory_cache_ttl"`
		DurableCacheTTL Timer `json:"durable_cache_ttl"`
	} `json:"geolocation"`
}

type Timer struct {
	Days    uint32 `json:"days"`
	Hours   uint32 `json:"hours"`
	Minutes uint32 `json:"minutes"`
	Seconds uint32 `json:"seconds"`
}

const settingsFilePath = "data/settings.json"

var (
	//go:embed default_settings.json
	defaultConfig []byte

	configValue atomic.Value
	configMu    sync.Mutex

	InProductionMode bool
)

func init() {
	configValue.Store(Config{})
}

func ReadSettings() {
	data, err := os.ReadFile(settingsFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("Settings file not found, creating with default configuration")

			err = os.MkdirAll("data", os.ModePerm)
			if err != nil {
				log.Error("Error creating directory for settings file:", err)
				return
			}

			err = os.WriteFile(settingsFilePath, defaultConfig, os.ModePerm)
			if err != nil {
				log.Error("Error writing default settings file:", err)
				return
			}

			data = defaultConfig
		} else {
			log.Error("Error reading settings file:", err)
			return
		}
	}

	var newConfig Config
	err = json.Unmarshal(data, &newConfig)
	if err != nil {
		log.Error("Error unmarshalling settings file:", err)
		return
	}

	if err := applyConfigUpdate(newConfig, configUpdateOptions{source: "file"}); err != nil {
		log.Error("Error applying configuration from settings file:", err)
		return
	}

	log.Debug("Settings file loaded successfully")
}

func SetConfig(newConfig Config) {
	if err := applyConfigUpdate(newConfig, configUpdateOptions{persistToFile: true, broadcast: true, source: "local"}); err != nil {
		log.Error("Error applying configuration update:", err)
		return
	}

	log.Debug("Configuration updated and written to file successfully")
}

type configUpdateOptions struct {
	persistToFile bool
	broadcast     bool
	source        string
}

func applyConfigUpdate(newConfig Config, opts configUpdateOptions) error {
	configMu.Lock()
	defer configMu.Unlock()

	configValue.Store(newConfig)
	SetIntervals()

	var errs []error

	if opts.persistToFile {
		data, err := json.MarshalIndent(newConfig, "", "  ")
		if err != nil {
			log.Error("Error marshalling new configuration:", err)
			errs = append(errs, err)
		} else if err := os.WriteFile(settingsFilePath, data, os.ModePerm); err != nil {
			log.Error("Error writing new configuration to file:", err)
			errs = append(errs, err)
		}
	}

	if opts.broadcast {
		payload, err := json.Marshal(newConfig)
		if err != nil {
			log.Error("Error serializing configuration for broadcast:", err)
			errs = append(errs, err)
		} else if err := broadcastConfigUpdate(payload); err != nil {
			log.Error("Error broadcasting configuration update:", err)
			errs = append(errs, err)
		}
	}

	if opts.source != "" {
		log.Debug("Configuration applied", "source", opts.source)
	} else {
		log.Debug("Configuration applied")
	}

	return errors.Join(errs...)
}

func GetConfig() Config {
	// Get the current Config atomically
	return configValue.Load().(Config)
}

func SetProductionMode(productionMode bool) {
	InProductionMode = productionMode
}
