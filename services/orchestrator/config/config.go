// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the orchestrator configuration from YAML with
// environment overrides. File values lose to environment variables, so a
// container deployment can override any field without editing the file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the full orchestrator configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Weaviate  WeaviateConfig  `yaml:"weaviate"`
	LLM       LLMConfig       `yaml:"llm"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr"`
}

type WeaviateConfig struct {
	Scheme string `yaml:"scheme"`
	Host   string `yaml:"host"`
}

type LLMConfig struct {
	// Provider can be "ollama" or "openai".
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type PipelineConfig struct {
	// MaxHistoryMessages bounds the transcript suffix loaded per turn.
	MaxHistoryMessages int `yaml:"max_history_messages"`

	// Temperature for answer generation.
	Temperature float32 `yaml:"temperature"`

	// Persona overrides the direct-chat system prompt when set.
	Persona string `yaml:"persona"`
}

type LifecycleConfig struct {
	// SeedPrompt is the system message seeded into new conversations.
	SeedPrompt string `yaml:"seed_prompt"`
}

type TelemetryConfig struct {
	// Enabled turns OTLP trace export on.
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address, e.g. "otel:4317".
	Endpoint string `yaml:"endpoint"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Weaviate: WeaviateConfig{
			Scheme: "http",
			Host:   "localhost:8081",
		},
		LLM: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.1:8b",
		},
		Pipeline: PipelineConfig{
			MaxHistoryMessages: 20,
			Temperature:        0.2,
		},
		Telemetry: TelemetryConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
		},
	}
}

// Load reads the configuration file at path and applies environment
// overrides. A missing file is not an error: defaults plus environment win.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv overrides file values from DRIFTLINE_* variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("DRIFTLINE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("WEAVIATE_SCHEME"); v != "" {
		cfg.Weaviate.Scheme = v
	}
	if v := os.Getenv("WEAVIATE_HOST"); v != "" {
		cfg.Weaviate.Host = v
	}
	if v := os.Getenv("DRIFTLINE_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("DRIFTLINE_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("DRIFTLINE_MAX_HISTORY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Pipeline.MaxHistoryMessages = n
		}
	}
	if v := os.Getenv("DRIFTLINE_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			cfg.Pipeline.Temperature = float32(f)
		}
	}
	if v := os.Getenv("DRIFTLINE_PERSONA"); v != "" {
		cfg.Pipeline.Persona = v
	}
	if v := os.Getenv("DRIFTLINE_SEED_PROMPT"); v != "" {
		cfg.Lifecycle.SeedPrompt = v
	}
	if v := os.Getenv("DRIFTLINE_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.Enabled = true
		cfg.Telemetry.Endpoint = v
	}
}
