package config

// BackendConfig points the CLI at the design assistant backend.
type BackendConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	// SystemPromptFile overrides the backend's default system prompt
	// with the contents of a local file.
	SystemPromptFile string `yaml:"system_prompt_file"`
}

// LoopConfig bounds the automatic design-review loop.
type LoopConfig struct {
	MaxIterations int `yaml:"max_iterations"`
}

// StorageConfig locates the local session database.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// Config represents the drafter.yaml file.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Loop    LoopConfig    `yaml:"loop"`
	Storage StorageConfig `yaml:"storage"`
}
