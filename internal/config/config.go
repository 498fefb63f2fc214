// Package config loads settings from the environment, an optional .env file
// and an optional YAML overlay named by CONFIG_FILE.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Config holds all settings for the batch CLI and the table API.
type Config struct {
	Environment string
	LogLevel    string

	InputPath     string
	ReferencePath string
	OutputDir     string
	LedgerPath    string

	TranscribeURL       string
	TranscribeToken     string
	TranscribeTeam      string
	TranscribeCallType  string
	TranscribeTimeout   time.Duration
	DownloadMaxAttempts int
	DownloadBackoff     time.Duration

	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
	LLMTimeout time.Duration
	PromptFile string

	InterCallDelay time.Duration

	TopSpecs            int
	WholesaleMixPercent float64
	RetailMixPercent    float64
	RetailMinBuyers     int

	HTTPPort    string
	RefreshCron string
}

type fileConfig struct {
	InputPath           string   `yaml:"input_path"`
	ReferencePath       string   `yaml:"reference_path"`
	OutputDir           string   `yaml:"output_dir"`
	LedgerPath          string   `yaml:"ledger_path"`
	LLMModel            string   `yaml:"llm_model"`
	PromptFile          string   `yaml:"prompt_file"`
	InterCallDelayMS    *int     `yaml:"inter_call_delay_ms"`
	DownloadMaxAttempts *int     `yaml:"download_max_attempts"`
	TopSpecs            *int     `yaml:"top_specs"`
	WholesaleMixPercent *float64 `yaml:"wholesale_mix_percent"`
	RetailMixPercent    *float64 `yaml:"retail_mix_percent"`
	RetailMinBuyers     *int     `yaml:"retail_min_buyers"`
	RefreshCron         *string  `yaml:"refresh_cron"`
}

// Load reads configuration from environment and optional .env file, then
// applies the YAML file named by CONFIG_FILE when set.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment: getenv("ENVIRONMENT", "local"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		InputPath:     getenv("INPUT_PATH", "calls.csv"),
		ReferencePath: getenv("REFERENCE_PATH", ""),
		OutputDir:     getenv("OUTPUT_DIR", "output"),
		LedgerPath:    getenv("LEDGER_PATH", "runs.db"),

		TranscribeURL:       getenv("TRANSCRIBE_URL", ""),
		TranscribeToken:     getenv("TRANSCRIBE_TOKEN", ""),
		TranscribeTeam:      getenv("TRANSCRIBE_TEAM", ""),
		TranscribeCallType:  getenv("TRANSCRIBE_CALL_TYPE", "PNS"),
		TranscribeTimeout:   time.Duration(clampInt(getenvInt("TRANSCRIBE_TIMEOUT_SEC", 120), 5, 900)) * time.Second,
		DownloadMaxAttempts: clampInt(getenvInt("DOWNLOAD_MAX_ATTEMPTS", 2), 1, 10),
		DownloadBackoff:     time.Duration(clampInt(getenvInt("DOWNLOAD_BACKOFF_MS", 5000), 0, 60000)) * time.Millisecond,

		LLMBaseURL: getenv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:  getenv("LLM_API_KEY", ""),
		LLMModel:   getenv("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeout: time.Duration(clampInt(getenvInt("LLM_TIMEOUT_SEC", 60), 5, 600)) * time.Second,
		PromptFile: getenv("PROMPT_FILE", ""),

		InterCallDelay: time.Duration(clampInt(getenvInt("INTER_CALL_DELAY_MS", 2500), 0, 60000)) * time.Millisecond,

		TopSpecs:            clampInt(getenvInt("TOP_SPECS", 5), 1, 50),
		WholesaleMixPercent: getenvFloat("WHOLESALE_MIX_PERCENT", 50),
		RetailMixPercent:    getenvFloat("RETAIL_MIX_PERCENT", 10),
		RetailMinBuyers:     getenvInt("RETAIL_MIN_BUYERS", 5),

		HTTPPort:    getenv("PORT", "8080"),
		RefreshCron: getenv("REFRESH_CRON", ""),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "config: read %s", path)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return eris.Wrapf(err, "config: parse %s", path)
	}
	setString(&c.InputPath, fc.InputPath)
	setString(&c.ReferencePath, fc.ReferencePath)
	setString(&c.OutputDir, fc.OutputDir)
	setString(&c.LedgerPath, fc.LedgerPath)
	setString(&c.LLMModel, fc.LLMModel)
	setString(&c.PromptFile, fc.PromptFile)
	if fc.InterCallDelayMS != nil {
		c.InterCallDelay = time.Duration(clampInt(*fc.InterCallDelayMS, 0, 60000)) * time.Millisecond
	}
	if fc.DownloadMaxAttempts != nil {
		c.DownloadMaxAttempts = clampInt(*fc.DownloadMaxAttempts, 1, 10)
	}
	if fc.TopSpecs != nil {
		c.TopSpecs = clampInt(*fc.TopSpecs, 1, 50)
	}
	if fc.WholesaleMixPercent != nil {
		c.WholesaleMixPercent = *fc.WholesaleMixPercent
	}
	if fc.RetailMixPercent != nil {
		c.RetailMixPercent = *fc.RetailMixPercent
	}
	if fc.RetailMinBuyers != nil {
		c.RetailMinBuyers = *fc.RetailMinBuyers
	}
	if fc.RefreshCron != nil {
		c.RefreshCron = *fc.RefreshCron
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
