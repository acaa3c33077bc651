package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where cue stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string

	// Reasoning service configuration
	AIEnabled         bool   // CUE_AI_ENABLED
	AIAPIKey          string // CUE_AI_API_KEY
	AIBaseURL         string // CUE_AI_BASE_URL (default: https://api.openai.com/v1)
	AIModel           string // CUE_AI_MODEL (default: gpt-4o-mini)
	AITranscribeModel string // CUE_AI_TRANSCRIBE_MODEL (default: whisper-1)
	AISpeechModel     string // CUE_AI_SPEECH_MODEL (default: tts-1)
	AISpeechVoice     string // CUE_AI_SPEECH_VOICE (default: coral)
	AITimeoutSeconds  int    // CUE_AI_TIMEOUT_SECONDS (default: 30)
	DefaultTimezone   string // CUE_DEFAULT_TIMEZONE (default: UTC)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if the reasoning service is enabled and an API key is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.AIEnabled && p.AIAPIKey != ""
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads configuration from CUE_* environment variables.
func (p *Profile) FromEnv() {
	p.AIEnabled = os.Getenv("CUE_AI_ENABLED") == "true"
	p.AIAPIKey = os.Getenv("CUE_AI_API_KEY")
	p.AIBaseURL = getEnvOrDefault("CUE_AI_BASE_URL", "https://api.openai.com/v1")
	p.AIModel = getEnvOrDefault("CUE_AI_MODEL", "gpt-4o-mini")
	p.AITranscribeModel = getEnvOrDefault("CUE_AI_TRANSCRIBE_MODEL", "whisper-1")
	p.AISpeechModel = getEnvOrDefault("CUE_AI_SPEECH_MODEL", "tts-1")
	p.AISpeechVoice = getEnvOrDefault("CUE_AI_SPEECH_VOICE", "coral")
	p.DefaultTimezone = getEnvOrDefault("CUE_DEFAULT_TIMEZONE", "UTC")

	if v := os.Getenv("CUE_AI_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.AITimeoutSeconds = n
		}
	}
	if p.AITimeoutSeconds == 0 {
		p.AITimeoutSeconds = 30
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported database driver %q", p.Driver)
	}

	if p.Data == "" {
		p.Data = "."
	}
	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		return err
	}
	p.Data = dataDir

	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("cue_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn is required for the postgres driver")
	}

	return nil
}
