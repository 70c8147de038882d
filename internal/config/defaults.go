package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultConfigPath returns the default path for the resona config directory.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "resona", "config")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "resona")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "resona")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "resona")
		}
		return filepath.Join(home, ".config", "resona")
	}
}

// DefaultModelsPath returns the default path for the resona models directory.
func DefaultModelsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "resona", "models")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Local", "resona", "models")
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "resona", "models")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			return filepath.Join(xdg, "resona", "models")
		}
		return filepath.Join(home, ".cache", "resona", "models")
	}
}

// Default returns the built-in configuration used when no config file is
// present. The profiles mirror the published Qwen3-TTS model family, with
// the shared tokenizer keyed independently of any profile.
func Default() *Config {
	return &Config{
		Version: "1",
		Models: ModelsConfig{
			DefaultProfile: "1.7B",
			Tokenizer:      "Qwen/Qwen3-TTS-Tokenizer-12Hz",
			Profiles: map[string]map[string]string{
				"0.6B": {
					"custom_voice": "Qwen/Qwen3-TTS-12Hz-0.6B-CustomVoice",
					"voice_design": "Qwen/Qwen3-TTS-12Hz-0.6B-VoiceDesign",
					"voice_clone":  "Qwen/Qwen3-TTS-12Hz-0.6B-Base",
				},
				"1.7B": {
					"custom_voice": "Qwen/Qwen3-TTS-12Hz-1.7B-CustomVoice",
					"voice_design": "Qwen/Qwen3-TTS-12Hz-1.7B-VoiceDesign",
					"voice_clone":  "Qwen/Qwen3-TTS-12Hz-1.7B-Base",
				},
			},
			Prewarm: PrewarmConfig{
				Enabled: true,
				Role:    "custom_voice",
			},
		},
		Audio: AudioConfig{
			TargetSampleRate: 24000,
			LoudnessDB:       -20.0,
			MinCloneSeconds:  1.0,
			DefaultFormat:    "wav",
		},
		Voices: map[string]VoiceConfig{
			"Vivian":   {Description: "Bright, slightly edgy young female voice", NativeLanguage: "Chinese"},
			"Serena":   {Description: "Warm, gentle young female voice", NativeLanguage: "Chinese"},
			"Uncle_Fu": {Description: "Seasoned male voice with a low, mellow timbre", NativeLanguage: "Chinese"},
			"Dylan":    {Description: "Youthful Beijing male voice with a clear, natural timbre", NativeLanguage: "Chinese (Beijing Dialect)"},
			"Eric":     {Description: "Lively Chengdu male voice with a slightly husky brightness", NativeLanguage: "Chinese (Sichuan Dialect)"},
			"Ryan":     {Description: "Dynamic male voice with strong rhythmic drive", NativeLanguage: "English"},
			"Aiden":    {Description: "Sunny American male voice with a clear midrange", NativeLanguage: "English"},
			"Ono_Anna": {Description: "Playful Japanese female voice with a light, nimble timbre", NativeLanguage: "Japanese"},
			"Sohee":    {Description: "Warm Korean female voice with rich emotion", NativeLanguage: "Korean"},
		},
		Languages: []string{
			"Chinese",
			"English",
			"Japanese",
			"Korean",
			"German",
			"French",
			"Russian",
			"Portuguese",
			"Spanish",
			"Italian",
		},
	}
}
