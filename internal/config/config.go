// Package config discovers and parses .hfdconfig plus HF_ENDPOINT, merged
// with CLI flag overrides, using gopkg.in/yaml.v3 for the file format —
// see DESIGN.md for why YAML is used here instead of TOML.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/hfdownloader/hfd/internal/engine/types"
)

// Config is the merged view of .hfdconfig, HF_ENDPOINT, and CLI flags.
type Config struct {
	Endpoint                   string   `yaml:"endpoint"`
	UseLocalDir                bool     `yaml:"use_local_dir"`
	LocalDirBase               string   `yaml:"local_dir_base"`
	ConcurrentDownloads        int      `yaml:"concurrent_downloads"`
	ConnectionsPerDownload     int      `yaml:"connections_per_download"`
	ParallelDownloadThreshold  int64    `yaml:"parallel_download_threshold"`
	ChunkSize                  int64    `yaml:"chunk_size"`
	BufferSize                 int64    `yaml:"buffer_size"`
	MaxRetries                 int      `yaml:"max_retries"`
	MaxDownloadSpeed           int64    `yaml:"max_download_speed"`
	IncludePatterns            []string `yaml:"include_patterns"`
	ExcludePatterns            []string `yaml:"exclude_patterns"`
	HFToken                    string   `yaml:"hf_token"`
	HFUsername                 string   `yaml:"hf_username"`
}

// Defaults returns the built-in configuration defaults.
func Defaults() Config {
	return Config{
		Endpoint:                  types.DefaultEndpoint,
		UseLocalDir:               false,
		LocalDirBase:              "~/.cache/huggingface/hub",
		ConcurrentDownloads:       types.DefaultConcurrentDownloads,
		ConnectionsPerDownload:    types.DefaultConnectionsPerDownload,
		ParallelDownloadThreshold: types.DefaultParallelDownloadThreshold,
		ChunkSize:                 types.DefaultChunkSize,
		BufferSize:                types.DefaultBufferSize,
		MaxRetries:                types.DefaultMaxRetries,
	}
}

// Load discovers .hfdconfig (first at ~/.hfdconfig, then ./.hfdconfig),
// parses it over the built-in defaults, then applies HF_ENDPOINT. Absence
// of a config file at either location is not an error. explicitPath, when
// non-empty, is read instead of the discovered locations and its absence
// IS an error (it came from --config).
func Load(explicitPath string) (Config, error) {
	cfg := Defaults()

	if explicitPath != "" {
		if err := mergeFile(&cfg, explicitPath); err != nil {
			return cfg, err
		}
	} else {
		for _, p := range candidatePaths() {
			if _, err := os.Stat(p); err == nil {
				if err := mergeFile(&cfg, p); err != nil {
					return cfg, err
				}
				break
			}
		}
	}

	if env := os.Getenv("HF_ENDPOINT"); env != "" {
		cfg.Endpoint = env
	}

	return cfg, nil
}

func candidatePaths() []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".hfdconfig"))
	}
	paths = append(paths, "./.hfdconfig")
	return paths
}

// mergeFile parses a YAML document at path over cfg. Unknown keys are
// ignored, matching yaml.v3's default unmarshal behavior.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// LocalDirBaseExpanded expands a leading "~" in LocalDirBase to the user's
// home directory.
func (c Config) LocalDirBaseExpanded() string {
	if len(c.LocalDirBase) >= 2 && c.LocalDirBase[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, c.LocalDirBase[2:])
		}
	}
	return c.LocalDirBase
}

// RuntimeConfig converts the merged config into the engine's RuntimeConfig.
func (c Config) RuntimeConfig() *types.RuntimeConfig {
	return &types.RuntimeConfig{
		MaxConnectionsPerHost: c.ConnectionsPerDownload,
		MinChunkSize:          types.MinChunk,
		MaxChunkSize:          types.MaxChunk,
		TargetChunkSize:       clampChunkSize(c.ChunkSize),
		WorkerBufferSize:      c.BufferSize,
		MaxTaskRetries:        c.MaxRetries,
		MaxDownloadSpeed:      c.MaxDownloadSpeed,
		HFToken:               c.HFToken,
	}
}

// clampChunkSize clamps chunk_size into [1 MiB, 64 MiB] before use,
// defending against pathological configs.
func clampChunkSize(size int64) int64 {
	if size < types.MinChunk {
		return types.MinChunk
	}
	if size > types.MaxChunk {
		return types.MaxChunk
	}
	return size
}

// LogsDir returns the directory debug logs are written under (internal/xlog).
func LogsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "hfd", "logs")
	}
	return filepath.Join(home, ".cache", "huggingface", "hfd", "logs")
}

// HistoryDBPath returns the path to the history ledger's SQLite file.
func HistoryDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "hfd", "history.db")
	}
	return filepath.Join(home, ".cache", "huggingface", "hfd", "history.db")
}
