package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// duration is a time.Duration that unmarshals from YAML scalars like
// "45s" or "2m", or from bare integers taken as nanoseconds.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		v, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = duration(v)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = duration(n)
	return nil
}

func (d duration) std() time.Duration { return time.Duration(d) }

// config is the top-level service configuration. Every field has a
// working default; an empty file (or no file at all) yields a usable
// service.
type config struct {
	Server   serverConfig   `yaml:"server"`
	Browser  browserConfig  `yaml:"browser"`
	Fetch    fetchConfig    `yaml:"fetch"`
	Cache    cacheConfig    `yaml:"cache"`
	Analysis analysisConfig `yaml:"analysis"`
	Log      logConfig      `yaml:"log"`
}

type serverConfig struct {
	Port string `yaml:"port"`
}

// browserConfig controls the Chrome process and the session pool over it.
type browserConfig struct {
	// Enabled toggles the browser tier. When false the service runs on
	// the two HTTP tiers only and never launches Chrome.
	Enabled        *bool               `yaml:"enabled"`
	PoolSize       int                 `yaml:"pool_size"`
	MaxRequests    int                 `yaml:"max_requests"`
	AcquireTimeout duration            `yaml:"acquire_timeout"`
	NavTimeout     duration            `yaml:"nav_timeout"`
	DomainTimeouts map[string]duration `yaml:"domain_timeouts"`
}

func (c browserConfig) domainTimeouts() map[string]time.Duration {
	if len(c.DomainTimeouts) == 0 {
		return nil
	}
	out := make(map[string]time.Duration, len(c.DomainTimeouts))
	for host, d := range c.DomainTimeouts {
		out[host] = d.std()
	}
	return out
}

// fetchConfig sets the per-tier attempt budgets and the success floor.
type fetchConfig struct {
	MinContent    int      `yaml:"min_content"`
	SessionBudget duration `yaml:"session_budget"`
	EvasiveBudget duration `yaml:"evasive_budget"`
	BasicBudget   duration `yaml:"basic_budget"`
}

type cacheConfig struct {
	MaxEntries int      `yaml:"max_entries"`
	TTL        duration `yaml:"ttl"`
}

type analysisConfig struct {
	FetchConcurrency    int        `yaml:"fetch_concurrency"`
	ClassifyConcurrency int        `yaml:"classify_concurrency"`
	RefetchConcurrency  int        `yaml:"refetch_concurrency"`
	RefetchBudgets      []duration `yaml:"refetch_budgets"`
	ClassifyTimeout     duration   `yaml:"classify_timeout"`
	BatchThreshold      int        `yaml:"batch_threshold"`
}

func (c analysisConfig) refetchBudgets() []time.Duration {
	if len(c.RefetchBudgets) == 0 {
		return nil
	}
	out := make([]time.Duration, len(c.RefetchBudgets))
	for i, d := range c.RefetchBudgets {
		out[i] = d.std()
	}
	return out
}

type logConfig struct {
	Level   string `yaml:"level"`
	FetchDB string `yaml:"fetch_db"`
}

// loadConfig reads the YAML file at path, or returns pure defaults when
// path is empty.
func loadConfig(path string) (*config, error) {
	var cfg config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults fills the settings main has to decide itself. Knobs that
// map onto a package Config (pool size, cache bounds, concurrency) are
// left at zero so the package defaults apply.
func (c *config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8086"
	}
	if c.Fetch.SessionBudget <= 0 {
		c.Fetch.SessionBudget = duration(15 * time.Second)
	}
	if c.Fetch.EvasiveBudget <= 0 {
		c.Fetch.EvasiveBudget = duration(20 * time.Second)
	}
	if c.Fetch.BasicBudget <= 0 {
		c.Fetch.BasicBudget = duration(5 * time.Second)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.FetchDB == "" {
		c.Log.FetchDB = "db/fetchlog.db"
	}
}

func (c *config) browserEnabled() bool {
	return c.Browser.Enabled == nil || *c.Browser.Enabled
}
