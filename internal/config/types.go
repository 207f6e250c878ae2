package config

type Config struct {
	Listen       string
	SystemPrompt string
	LLM          LLMConfig
	Strings      StringsConfig
}

type LLMConfig struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	ImageModel  string
	SpeechModel string
}

// StringsConfig overrides the canned replies shown when a turn degrades.
type StringsConfig struct {
	Apology           string `yaml:"apology"`
	ImageApology      string `yaml:"image_apology"`
	ImageConfirmation string `yaml:"image_confirmation"`
	Placeholder       string `yaml:"placeholder"`
}

// fileConfig is the shape of the optional lumen.yml overlay.
type fileConfig struct {
	Listen       string `yaml:"listen"`
	SystemPrompt string `yaml:"system_prompt"`
	LLM          struct {
		Provider    string `yaml:"provider"`
		Model       string `yaml:"model"`
		BaseURL     string `yaml:"base_url"`
		ImageModel  string `yaml:"image_model"`
		SpeechModel string `yaml:"speech_model"`
	} `yaml:"llm"`
	Strings StringsConfig `yaml:"strings"`
}
