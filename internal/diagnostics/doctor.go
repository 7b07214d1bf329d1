package diagnostics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/config"
)

// Status is the outcome of one check.
type Status string

const (
	StatusOK   Status = "ok"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// Thresholds below which the doctor warns.
const (
	MinAvailableMemMB = 512
	MinFreeDiskGB     = 1
)

// Check is one doctor finding.
type Check struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Detail string `json:"detail"`
}

// Report is the full doctor output.
type Report struct {
	ConfigFile string  `json:"config_file,omitempty"`
	System     System  `json:"system"`
	Checks     []Check `json:"checks"`
}

// Healthy reports whether no check failed.
func (r Report) Healthy() bool {
	for _, c := range r.Checks {
		if c.Status == StatusFail {
			return false
		}
	}
	return true
}

// Run evaluates cfg and sys. Warnings never make a report unhealthy.
func Run(cfg *config.Config, configFile string, sys System) Report {
	r := Report{ConfigFile: configFile, System: sys}
	add := func(name string, st Status, format string, args ...any) {
		r.Checks = append(r.Checks, Check{Name: name, Status: st, Detail: fmt.Sprintf(format, args...)})
	}

	if configFile == "" {
		add("config", StatusOK, "no config file, using defaults and environment")
	} else {
		add("config", StatusOK, "loaded %s", configFile)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		add("config", StatusFail, "%v", err)
	}

	if cfg.Generation.APIKey == "" {
		add("generation", StatusFail, "no API key (set generation.api_key or OPENAI_API_KEY)")
	} else {
		add("generation", StatusOK, "model %s at %s", cfg.Generation.Model, cfg.Generation.BaseURL)
	}

	switch cfg.Retrieval.Backend {
	case config.BackendSQLite:
		if err := checkWritable(filepath.Dir(cfg.Retrieval.SQLite.Path)); err != nil {
			add("retrieval", StatusFail, "sqlite index directory not writable: %v", err)
		} else {
			add("retrieval", StatusOK, "sqlite index at %s", cfg.Retrieval.SQLite.Path)
		}
	case config.BackendPinecone:
		switch {
		case cfg.Retrieval.Pinecone.APIKey == "":
			add("retrieval", StatusFail, "no Pinecone API key (set retrieval.pinecone.api_key or PINECONE_API_KEY)")
		case cfg.Retrieval.Pinecone.Host == "":
			add("retrieval", StatusFail, "retrieval.pinecone.host is not set")
		default:
			add("retrieval", StatusOK, "pinecone index at %s (embeddings: %s, %d dims)",
				cfg.Retrieval.Pinecone.Host, cfg.Embedding.Model, cfg.Embedding.Dimensions)
		}
	}

	switch {
	case sys.MemTotalMB == 0:
		add("memory", StatusWarn, "could not read memory usage")
	case sys.MemAvailableMB < MinAvailableMemMB:
		add("memory", StatusWarn, "only %.0f MB available", sys.MemAvailableMB)
	default:
		add("memory", StatusOK, "%.0f of %.0f MB available", sys.MemAvailableMB, sys.MemTotalMB)
	}

	if sys.DiskPath != "" {
		if sys.DiskFreeGB < MinFreeDiskGB {
			add("disk", StatusWarn, "only %.1f GB free on %s", sys.DiskFreeGB, sys.DiskPath)
		} else {
			add("disk", StatusOK, "%.1f GB free on %s", sys.DiskFreeGB, sys.DiskPath)
		}
	}

	if len(sys.GPUs) == 0 {
		add("gpu", StatusOK, "none detected (not required)")
	} else {
		add("gpu", StatusOK, "%s", strings.Join(sys.GPUs, ", "))
	}
	return r
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// Format renders the report as aligned plain text.
func Format(r Report) string {
	var b strings.Builder
	s := r.System
	fmt.Fprintf(&b, "system: %s/%s, %s, %d goroutines\n", s.OS, s.Arch, s.GoVersion, s.Goroutines)
	if s.CPUModel != "" {
		fmt.Fprintf(&b, "cpu:    %s (%d cores, %d threads, load %.2f)\n", s.CPUModel, s.CPUCores, s.CPUThreads, s.LoadAvg1)
	}
	b.WriteString("\n")
	for _, c := range r.Checks {
		fmt.Fprintf(&b, "[%-4s] %-10s %s\n", c.Status, c.Name, c.Detail)
	}
	return b.String()
}
