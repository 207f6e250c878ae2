package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const defaultListen = ":8080"
const defaultProvider = "gemini"

// Load builds the configuration from the optional lumen.yml overlay and
// the environment. Environment values win over file values.
func Load() (*Config, error) {
	cfg := &Config{
		Listen: defaultListen,
		LLM:    LLMConfig{Provider: defaultProvider},
	}

	if err := applyFile(cfg); err != nil {
		return nil, err
	}

	applyEnv(cfg)

	apiKey, err := getAPIKey(cfg.LLM.Provider)
	if err != nil {
		return nil, err
	}
	cfg.LLM.APIKey = apiKey

	return cfg, nil
}

func applyFile(cfg *Config) error {
	path := os.Getenv("LUMEN_CONFIG")
	if path == "" {
		path = "lumen.yml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if file.Listen != "" {
		cfg.Listen = file.Listen
	}
	if file.SystemPrompt != "" {
		cfg.SystemPrompt = file.SystemPrompt
	}
	if file.LLM.Provider != "" {
		cfg.LLM.Provider = file.LLM.Provider
	}
	cfg.LLM.Model = file.LLM.Model
	cfg.LLM.BaseURL = file.LLM.BaseURL
	cfg.LLM.ImageModel = file.LLM.ImageModel
	cfg.LLM.SpeechModel = file.LLM.SpeechModel
	cfg.Strings = file.Strings

	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("LUMEN_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("LUMEN_SYSTEM_PROMPT"); v != "" {
		cfg.SystemPrompt = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_IMAGE_MODEL"); v != "" {
		cfg.LLM.ImageModel = v
	}
	if v := os.Getenv("LLM_SPEECH_MODEL"); v != "" {
		cfg.LLM.SpeechModel = v
	}
}

func getAPIKey(provider string) (string, error) {
	if key := os.Getenv("LLM_API_KEY"); key != "" {
		return key, nil
	}

	switch provider {
	case "gemini":
		key := os.Getenv("GEMINI_API_KEY")
		if key == "" {
			return "", fmt.Errorf("GEMINI_API_KEY not set")
		}
		return key, nil
	case "claude":
		key := os.Getenv("ANTHROPIC_API_KEY")
		if key == "" {
			return "", fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
		return key, nil
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return "", fmt.Errorf("OPENAI_API_KEY not set")
		}
		return key, nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}
}
