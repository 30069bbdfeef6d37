package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds gateway settings. Values come from an optional yaml file,
// overridden by environment variables.
type Config struct {
	Port              string `yaml:"port"`
	LogLevel          string `yaml:"log_level"`
	WindowSize        int    `yaml:"window_size"`
	PingIntervalSec   int    `yaml:"ping_interval_sec"`
	ReportIntervalSec int    `yaml:"report_interval_sec"`
	NATSURL           string `yaml:"nats_url"`
	NATSSubjectPrefix string `yaml:"nats_subject_prefix"`
	ProbeTargetURL    string `yaml:"probe_target_url"`
	ProbeIntervalSec  int    `yaml:"probe_interval_sec"`
}

func defaultConfig() Config {
	return Config{
		Port:              "8081",
		LogLevel:          "info",
		WindowSize:        10,
		PingIntervalSec:   5,
		ReportIntervalSec: 30,
		NATSSubjectPrefix: "latency.reports",
		ProbeIntervalSec:  5,
	}
}

// loadConfig reads the yaml config at path (missing file is fine) and then
// applies environment overrides.
func loadConfig(path string) (Config, error) {
	config := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &config); err != nil {
				return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	config.Port = getEnv("GATEWAY_PORT", config.Port)
	config.LogLevel = getEnv("LOG_LEVEL", config.LogLevel)
	config.WindowSize = getEnvAsInt("LATENCY_WINDOW_SIZE", config.WindowSize)
	config.PingIntervalSec = getEnvAsInt("PING_INTERVAL_SEC", config.PingIntervalSec)
	config.ReportIntervalSec = getEnvAsInt("REPORT_INTERVAL_SEC", config.ReportIntervalSec)
	config.NATSURL = getEnv("NATS_URL", config.NATSURL)
	config.NATSSubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", config.NATSSubjectPrefix)
	config.ProbeTargetURL = getEnv("PROBE_TARGET_URL", config.ProbeTargetURL)
	config.ProbeIntervalSec = getEnvAsInt("PROBE_INTERVAL_SEC", config.ProbeIntervalSec)

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
