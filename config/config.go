// Package config loads and validates the configuration table of
// spec.md §6 (SPEC_FULL.md §6.1): YAML file, schema-validated, then
// overlaid with environment variables following the `LLM_*`/
// `SANDBOX_*`/`SECURITY_*` convention. Grounded on the validation
// call shape in the goadesign-goa-ai pack repo's registry/service.go
// (`jsonschema.NewCompiler`/`AddResource`/`Compile`/`Validate`),
// applied here to the whole Config document rather than one event
// payload at a time.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/agentrt/agentrt/errs"
)

// Core mirrors the "core" section of spec.md §6.
type Core struct {
	Runtime               string  `yaml:"runtime" json:"runtime"`
	DefaultAgent           string  `yaml:"default_agent" json:"default_agent"`
	MaxIterations          int     `yaml:"max_iterations" json:"max_iterations"`
	MaxBudgetPerTask       float64 `yaml:"max_budget_per_task" json:"max_budget_per_task"`
	FileStore              string  `yaml:"file_store" json:"file_store"`
	FileStorePath          string  `yaml:"file_store_path" json:"file_store_path"`
	SaveTrajectoryPath     string  `yaml:"save_trajectory_path" json:"save_trajectory_path"`
	ReplayTrajectoryPath   string  `yaml:"replay_trajectory_path" json:"replay_trajectory_path"`
}

// Sandbox mirrors the "sandbox" section.
type Sandbox struct {
	BaseContainerImage    string   `yaml:"base_container_image" json:"base_container_image"`
	RuntimeContainerImage string   `yaml:"runtime_container_image" json:"runtime_container_image"`
	Timeout               int      `yaml:"timeout" json:"timeout"` // seconds
	Volumes               []string `yaml:"volumes" json:"volumes"`
	RuntimeExtraDeps      []string `yaml:"runtime_extra_deps" json:"runtime_extra_deps"`
	RuntimeStartupEnvVars map[string]string `yaml:"runtime_startup_env_vars" json:"runtime_startup_env_vars"`
	Platform              string   `yaml:"platform" json:"platform"`
}

// Security mirrors the "security" section.
type Security struct {
	ConfirmationMode  bool   `yaml:"confirmation_mode" json:"confirmation_mode"`
	SecurityAnalyzer  string `yaml:"security_analyzer" json:"security_analyzer"`
}

// LLM mirrors the "llm" section — pass-through only, per spec.md §6.
type LLM struct {
	Model           string  `yaml:"model" json:"model"`
	APIKey          string  `yaml:"api_key" json:"api_key"`
	BaseURL         string  `yaml:"base_url" json:"base_url"`
	APIVersion      string  `yaml:"api_version" json:"api_version"`
	NumRetries      int     `yaml:"num_retries" json:"num_retries"`
	RetryMinWait    int     `yaml:"retry_min_wait" json:"retry_min_wait"`
	RetryMaxWait    int     `yaml:"retry_max_wait" json:"retry_max_wait"`
	RetryMultiplier float64 `yaml:"retry_multiplier" json:"retry_multiplier"`
	MaxInputTokens  int     `yaml:"max_input_tokens" json:"max_input_tokens"`
	MaxOutputTokens int     `yaml:"max_output_tokens" json:"max_output_tokens"`
	Temperature     float64 `yaml:"temperature" json:"temperature"`
	TopP            float64 `yaml:"top_p" json:"top_p"`
	CachingPrompt   bool    `yaml:"caching_prompt" json:"caching_prompt"`
}

// Config is the full resolved configuration document.
type Config struct {
	Core     Core     `yaml:"core" json:"core"`
	Sandbox  Sandbox  `yaml:"sandbox" json:"sandbox"`
	Security Security `yaml:"security" json:"security"`
	LLM      LLM      `yaml:"llm" json:"llm"`
}

// Load reads path (if non-empty), validates the document against the
// embedded schema, overlays environment variables, and returns the
// resolved Config. An empty path yields defaults overlaid by the
// environment alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.NewConfigurationError("read config file "+path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, errs.NewConfigurationError("parse config yaml", err)
		}
		if err := validate(cfg); err != nil {
			return nil, errs.NewConfigurationError("config failed schema validation", err)
		}
	}
	overlayEnv(cfg)
	return cfg, nil
}

func validate(cfg *Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	var schemaDoc any
	if err := json.Unmarshal([]byte(configSchemaJSON), &schemaDoc); err != nil {
		return err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("config.json", schemaDoc); err != nil {
		return err
	}
	schema, err := c.Compile("config.json")
	if err != nil {
		return err
	}
	return schema.Validate(doc)
}

// envTable is the explicit, reflection-free field-to-env-key mapping
// spec.md §9 asks for ("no reflection; registrations are explicit").
// Each entry applies one environment variable onto cfg if set.
var envTable = []struct {
	key   string
	apply func(cfg *Config, value string)
}{
	{"LLM_MODEL", func(c *Config, v string) { c.LLM.Model = v }},
	{"LLM_API_KEY", func(c *Config, v string) { c.LLM.APIKey = v }},
	{"LLM_BASE_URL", func(c *Config, v string) { c.LLM.BaseURL = v }},
	{"LLM_API_VERSION", func(c *Config, v string) { c.LLM.APIVersion = v }},
	{"LLM_TEMPERATURE", func(c *Config, v string) { c.LLM.Temperature = mustFloat(v, c.LLM.Temperature) }},
	{"LLM_TOP_P", func(c *Config, v string) { c.LLM.TopP = mustFloat(v, c.LLM.TopP) }},
	{"LLM_MAX_INPUT_TOKENS", func(c *Config, v string) { c.LLM.MaxInputTokens = mustInt(v, c.LLM.MaxInputTokens) }},
	{"LLM_MAX_OUTPUT_TOKENS", func(c *Config, v string) { c.LLM.MaxOutputTokens = mustInt(v, c.LLM.MaxOutputTokens) }},
	{"LLM_NUM_RETRIES", func(c *Config, v string) { c.LLM.NumRetries = mustInt(v, c.LLM.NumRetries) }},
	{"LLM_CACHING_PROMPT", func(c *Config, v string) { c.LLM.CachingPrompt = v == "true" }},
	{"SANDBOX_BASE_CONTAINER_IMAGE", func(c *Config, v string) { c.Sandbox.BaseContainerImage = v }},
	{"SANDBOX_RUNTIME_CONTAINER_IMAGE", func(c *Config, v string) { c.Sandbox.RuntimeContainerImage = v }},
	{"SANDBOX_TIMEOUT", func(c *Config, v string) { c.Sandbox.Timeout = mustInt(v, c.Sandbox.Timeout) }},
	{"SANDBOX_PLATFORM", func(c *Config, v string) { c.Sandbox.Platform = v }},
	{"SECURITY_CONFIRMATION_MODE", func(c *Config, v string) { c.Security.ConfirmationMode = v == "true" }},
	{"SECURITY_SECURITY_ANALYZER", func(c *Config, v string) { c.Security.SecurityAnalyzer = v }},
}

func overlayEnv(cfg *Config) {
	for _, entry := range envTable {
		if v, ok := os.LookupEnv(entry.key); ok && strings.TrimSpace(v) != "" {
			entry.apply(cfg, v)
		}
	}
}

func mustInt(v string, fallback int) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustFloat(v string, fallback float64) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// configSchemaJSON is the embedded JSON Schema every loaded Config
// document is validated against before the controller is allowed to
// start (SPEC_FULL.md §6.1 step 2).
const configSchemaJSON = `{
  "type": "object",
  "properties": {
    "core": {
      "type": "object",
      "properties": {
        "max_iterations": {"type": "integer", "minimum": 0},
        "max_budget_per_task": {"type": "number", "minimum": 0}
      }
    },
    "sandbox": {
      "type": "object",
      "properties": {
        "timeout": {"type": "integer", "minimum": 0}
      }
    },
    "security": {"type": "object"},
    "llm": {
      "type": "object",
      "properties": {
        "temperature": {"type": "number", "minimum": 0, "maximum": 2},
        "top_p": {"type": "number", "minimum": 0, "maximum": 1}
      }
    }
  }
}`
