package ai

import (
	"time"

	"github.com/pkg/errors"

	"github.com/cueapp/cue/internal/profile"
)

// Config represents AI configuration.
type Config struct {
	Enabled bool

	APIKey  string
	BaseURL string

	// Model drives planning, extraction, rewriting and render spec output.
	Model string

	TranscribeModel string
	SpeechModel     string
	SpeechVoice     string

	Timeout time.Duration
}

// NewConfigFromProfile creates AI config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := &Config{
		Enabled: p.AIEnabled,
	}

	if !cfg.Enabled {
		return cfg
	}

	cfg.APIKey = p.AIAPIKey
	cfg.BaseURL = p.AIBaseURL
	cfg.Model = p.AIModel
	cfg.TranscribeModel = p.AITranscribeModel
	cfg.SpeechModel = p.AISpeechModel
	cfg.SpeechVoice = p.AISpeechVoice
	cfg.Timeout = time.Duration(p.AITimeoutSeconds) * time.Second

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.TranscribeModel == "" {
		cfg.TranscribeModel = "gpt-4o-mini-transcribe"
	}
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = "gpt-4o-mini-tts"
	}
	if cfg.SpeechVoice == "" {
		cfg.SpeechVoice = "coral"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.APIKey == "" {
		return errors.New("AI API key is required when AI is enabled")
	}
	if c.Model == "" {
		return errors.New("AI model is required when AI is enabled")
	}

	return nil
}
