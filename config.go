package relicdig

import (
	"os"
	"path/filepath"

	"github.com/hanlin-zhu/relicdig/llm"
)

// Config holds all configuration for the extraction workflow.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.relicdig/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	// Defaults to "relicdig".
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set. Options: "home" (default) uses ~/.relicdig/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// LLM is the primary extraction provider. The scheduler may override
	// its credential per task from the Credentials pool.
	LLM llm.Config `json:"llm" yaml:"llm"`

	// Credentials is an optional pool of API credentials assigned to
	// concurrent tasks round-robin. When empty, LLM is used as is.
	Credentials []llm.Credential `json:"credentials" yaml:"credentials"`

	// Templates maps each artifact kind to its field-definition workbook.
	Templates TemplateConfig `json:"templates" yaml:"templates"`

	// Chunking of tomb sections before extraction.
	ChunkSize    int `json:"chunk_size" yaml:"chunk_size"`       // default 2500 chars
	ChunkOverlap int `json:"chunk_overlap" yaml:"chunk_overlap"` // default 250 chars

	// SimilarityThreshold controls name clustering during artifact merge.
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold"`

	// Concurrency is the requested scheduler worker count. The effective
	// count never exceeds the credential pool size.
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// RecoveryDir is where unparsable LLM responses are dumped for manual
	// recovery. Defaults to <db dir>/recovery.
	RecoveryDir string `json:"recovery_dir" yaml:"recovery_dir"`
}

// TemplateConfig holds the workbook path per artifact kind.
type TemplateConfig struct {
	Site    string `json:"site" yaml:"site"`
	Period  string `json:"period" yaml:"period"`
	Pottery string `json:"pottery" yaml:"pottery"`
	Jade    string `json:"jade" yaml:"jade"`
}

// DefaultConfig returns a Config with sensible defaults.
// Database is stored in ~/.relicdig/relicdig.db by default.
func DefaultConfig() Config {
	return Config{
		DBName:     "relicdig",
		StorageDir: "home",
		LLM: llm.Config{
			Provider:    "gemini",
			Model:       "gemini-2.0-flash",
			Temperature: 0.1,
			MaxTokens:   8192,
		},
		ChunkSize:           2500,
		ChunkOverlap:        250,
		SimilarityThreshold: 0.6,
		Concurrency:         3,
	}
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "relicdig"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		dir := filepath.Join(home, ".relicdig")
		return filepath.Join(dir, name+".db")
	}
}

// resolveRecoveryDir computes the recovery dump directory.
func (c *Config) resolveRecoveryDir() string {
	if c.RecoveryDir != "" {
		return c.RecoveryDir
	}
	return filepath.Join(filepath.Dir(c.resolveDBPath()), "recovery")
}
