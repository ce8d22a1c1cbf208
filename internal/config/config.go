// Package config reads server and engine-driver configuration from
// environment variables, all with safe defaults.
package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Config holds every environment-tunable option the server reads at startup.
type Config struct {
	Host string
	Port string

	DataDir string

	EngineCmd     []string
	EngineEvalDir string

	EngineThreads int
	EngineHashMB  int

	USIOKTimeoutS                int
	ReadyOKTimeoutS              int
	PostSetoptionReadyOKTimeoutS int
}

func intEnv(name string, def, min, max int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func engineCmd() []string {
	raw := strings.TrimSpace(os.Getenv("ENGINE_CMD"))
	if raw != "" {
		return strings.Fields(raw)
	}
	path := strings.TrimSpace(os.Getenv("ENGINE_PATH"))
	if path != "" {
		return []string{path}
	}
	return nil
}

// Load reads Config from the environment, applying the defaults from
// the configuration table.
func Load() *Config {
	host := os.Getenv("HOST")
	if host == "" {
		host = "0.0.0.0"
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	dataDir := os.Getenv("SHOGI_DATA_DIR")
	if dataDir == "" {
		dataDir = "./data/shogidb"
	}

	return &Config{
		Host:    host,
		Port:    port,
		DataDir: dataDir,

		EngineCmd:     engineCmd(),
		EngineEvalDir: strings.TrimSpace(os.Getenv("ENGINE_EVAL_DIR")),

		EngineThreads: intEnv("ENGINE_THREADS", max(1, runtime.NumCPU()), 1, 512),
		EngineHashMB:  intEnv("ENGINE_HASH_MB", 512, 16, 65536),

		USIOKTimeoutS:                intEnv("USIOK_TIMEOUT_S", 12, 1, 120),
		ReadyOKTimeoutS:              intEnv("READYOK_TIMEOUT_S", 45, 2, 300),
		PostSetoptionReadyOKTimeoutS: intEnv("POST_SETOPTION_READYOK_TIMEOUT_S", 45, 2, 300),
	}
}
