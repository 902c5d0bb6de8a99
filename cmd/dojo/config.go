package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all dojo CLI configuration.
// Priority: env vars > settings.json > defaults. API keys are read
// from the environment only.
type Config struct {
	DBPath         string `json:"db_path"`
	LogLevel       string `json:"log_level"`
	OutputPath     string `json:"output_path"`
	PlanOutputPath string `json:"plan_output_path"`
	MaxParallel    int    `json:"max_parallel"`
	RefineCycles   int    `json:"refine_cycles"`
	ChunkSize      int    `json:"chunk_size"`

	OpenAIModel   string `json:"openai_model"`
	OpenAIBaseURL string `json:"openai_base_url"`

	OpenAIKey string `json:"-"`
	TavilyKey string `json:"-"`
}

func defaultConfig() Config {
	return Config{
		DBPath:         filepath.Join(dojoDir(), "dojo.db"),
		LogLevel:       "info",
		OutputPath:     "output/research_idea.md",
		PlanOutputPath: "output/research_plan.md",
		MaxParallel:    4,
	}
}

func dojoDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dojo"
	}
	return filepath.Join(home, ".dojo")
}

func settingsPath() string {
	return filepath.Join(dojoDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("DOJO_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("DOJO_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DOJO_OUTPUT_PATH"); v != "" {
		cfg.OutputPath = v
	}
	if v := os.Getenv("DOJO_PLAN_OUTPUT_PATH"); v != "" {
		cfg.PlanOutputPath = v
	}
	if v := os.Getenv("DOJO_MAX_PARALLEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxParallel = n
		}
	}
	if v := os.Getenv("DOJO_REFINE_CYCLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RefineCycles = n
		}
	}
	if v := os.Getenv("DOJO_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ChunkSize = n
		}
	}
	if v := os.Getenv("DOJO_OPENAI_MODEL"); v != "" {
		cfg.OpenAIModel = v
	}
	if v := os.Getenv("DOJO_OPENAI_BASE_URL"); v != "" {
		cfg.OpenAIBaseURL = v
	}

	cfg.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	cfg.TavilyKey = os.Getenv("TAVILY_API_KEY")

	return cfg
}
