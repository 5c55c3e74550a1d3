package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		BaseURL     string  `yaml:"base_url"`
		Model       string  `yaml:"model"`
		EmbedModel  string  `yaml:"embed_model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
	} `yaml:"llm"`

	Database struct {
		URL       string `yaml:"url"`
		TableName string `yaml:"table_name"`
		VectorDim int    `yaml:"vector_dim"`
	} `yaml:"database"`

	Extractor struct {
		BaseURL        string `yaml:"base_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"extractor"`

	Processor struct {
		ChunkSize     int `yaml:"chunk_size"`
		ChunkOverlap  int `yaml:"chunk_overlap"`
		BackoffWindow int `yaml:"backoff_window"`
	} `yaml:"processor"`

	Retrieval struct {
		TopK      int     `yaml:"top_k"`
		Alpha     float64 `yaml:"alpha"`
		Threshold float64 `yaml:"threshold"`
	} `yaml:"retrieval"`

	Pipeline struct {
		Workers           int     `yaml:"workers"`
		EmbedBatch        int     `yaml:"embed_batch"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
	} `yaml:"pipeline"`

	Composer struct {
		Mode          string `yaml:"mode"`
		ContextBudget int    `yaml:"context_budget"`
	} `yaml:"composer"`

	Dedupe struct {
		Threshold float64 `yaml:"threshold"`
	} `yaml:"dedupe"`
}

// LoadConfig reads the YAML config, merges environment variables over it and
// fills defaults. The result is built once at startup and passed by
// injection; nothing reads configuration after that.
func LoadConfig(path string) (*Config, error) {
	// .env is optional; real env vars still win below
	_ = godotenv.Load()

	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/docdex/config.yaml"),
			"/etc/docdex/config.yaml",
		}
		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	config := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "mistral"
	}
	if config.LLM.EmbedModel == "" {
		config.LLM.EmbedModel = "nomic-embed-text:latest"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.2
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "chunks"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}

	if config.Extractor.BaseURL == "" {
		config.Extractor.BaseURL = "http://localhost:5001"
	}
	if config.Extractor.TimeoutSeconds == 0 {
		config.Extractor.TimeoutSeconds = 120
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 1000
	}
	if config.Processor.ChunkOverlap == 0 {
		config.Processor.ChunkOverlap = 200
	}
	if config.Processor.BackoffWindow == 0 {
		config.Processor.BackoffWindow = 32
	}

	if config.Retrieval.TopK == 0 {
		config.Retrieval.TopK = 5
	}
	if config.Retrieval.Alpha == 0 {
		config.Retrieval.Alpha = 0.7
	}

	if config.Pipeline.Workers == 0 {
		config.Pipeline.Workers = 4
	}
	if config.Pipeline.EmbedBatch == 0 {
		config.Pipeline.EmbedBatch = 16
	}
	if config.Pipeline.RequestsPerSecond == 0 {
		config.Pipeline.RequestsPerSecond = 4
	}

	if config.Composer.Mode == "" {
		config.Composer.Mode = "summarize"
	}
	if config.Composer.ContextBudget == 0 {
		config.Composer.ContextBudget = 3000
	}

	if config.Dedupe.Threshold == 0 {
		config.Dedupe.Threshold = 0.85
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if extractorURL := os.Getenv("EXTRACTOR_URL"); extractorURL != "" {
		config.Extractor.BaseURL = extractorURL
	}
}
