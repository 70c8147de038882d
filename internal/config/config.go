package config

import (
	"fmt"
	"os"

	"github.com/resona-team/resona/internal/envvar"
)

// Config holds the main configuration for the serving process.
type Config struct {
	Version   string                 `json:"version"             yaml:"version"`
	Storage   StorageConfig          `json:"storage,omitempty"   yaml:"storage,omitempty"`
	Logging   LoggingConfig          `json:"logging,omitempty"   yaml:"logging,omitempty"`
	Models    ModelsConfig           `json:"models"              yaml:"models"`
	Audio     AudioConfig            `json:"audio,omitempty"     yaml:"audio,omitempty"`
	Voices    map[string]VoiceConfig `json:"voices,omitempty"    yaml:"voices,omitempty"`
	Languages []string               `json:"languages,omitempty" yaml:"languages,omitempty"`
}

// StorageConfig holds configuration for model artifact caching.
type StorageConfig struct {
	ModelsDir string `json:"models_dir,omitempty" yaml:"models_dir,omitempty"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	ToFile bool   `json:"to_file,omitempty" yaml:"to_file,omitempty"`
	File   string `json:"file,omitempty"    yaml:"file,omitempty"`
	Level  string `json:"level,omitempty"   yaml:"level,omitempty"`
}

// ModelsConfig describes the model size profiles and shared tokenizer.
//
// A profile maps each synthesis role (custom_voice, voice_design,
// voice_clone) to a concrete model identifier. Exactly one profile is
// active per process.
type ModelsConfig struct {
	DefaultProfile string                       `json:"default_profile"    yaml:"default_profile"`
	Profiles       map[string]map[string]string `json:"profiles"           yaml:"profiles"`
	Tokenizer      string                       `json:"tokenizer"          yaml:"tokenizer"`
	Prewarm        PrewarmConfig                `json:"prewarm,omitempty"  yaml:"prewarm,omitempty"`
	Download       DownloadConfig               `json:"download,omitempty" yaml:"download,omitempty"`
}

// PrewarmConfig controls the best-effort startup pre-load.
type PrewarmConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Role    string `json:"role"    yaml:"role"`
}

// DownloadConfig holds shared options for model artifact downloads.
type DownloadConfig struct {
	Token         string `json:"token,omitempty"          yaml:"token,omitempty"`
	MaxWorkers    int    `json:"max_workers,omitempty"    yaml:"max_workers,omitempty"`
	ForceDownload bool   `json:"force_download,omitempty" yaml:"force_download,omitempty"`
}

// AudioConfig holds audio pipeline settings.
type AudioConfig struct {
	TargetSampleRate int     `json:"target_sample_rate,omitempty" yaml:"target_sample_rate,omitempty"`
	LoudnessDB       float64 `json:"loudness_db,omitempty"        yaml:"loudness_db,omitempty"`
	MinCloneSeconds  float64 `json:"min_clone_seconds,omitempty"  yaml:"min_clone_seconds,omitempty"`
	DefaultFormat    string  `json:"default_format,omitempty"     yaml:"default_format,omitempty"`
}

// VoiceConfig describes a pre-built voice of the custom_voice model.
type VoiceConfig struct {
	Description    string `json:"description"     yaml:"description"`
	NativeLanguage string `json:"native_language" yaml:"native_language"`
}

// ActiveProfile resolves the profile the process should start with.
// Precedence:
// 1. RESONA_MODEL_PROFILE environment variable.
// 2. models.default_profile in the config.
func (c *Config) ActiveProfile() (string, error) {
	id := c.Models.DefaultProfile
	if p := os.Getenv(envvar.ResonaModelProfile); p != "" {
		id = p
	}

	if _, ok := c.Models.Profiles[id]; !ok {
		return "", fmt.Errorf("profile %q is not defined in config", id)
	}

	return id, nil
}
