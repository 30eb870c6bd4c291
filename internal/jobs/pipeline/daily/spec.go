package daily

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/marketlake/internal/executor"
	"github.com/yungbote/marketlake/internal/jobs/orchestrator"
)

// PipelineConfigEnv points at a YAML file that replaces the embedded policy.
const PipelineConfigEnv = "PIPELINE_CONFIG_PATH"

//go:embed daily.yaml
var dailySpecFS embed.FS

// TaskPolicy is the cache and retry policy of one task. Nil fields inherit
// from the defaults block.
type TaskPolicy struct {
	TTL         *time.Duration `yaml:"ttl"`
	RetryBudget *int           `yaml:"retry_budget"`
	RetryDelay  *time.Duration `yaml:"retry_delay"`
	Jitter      *float64       `yaml:"jitter"`
}

type Config struct {
	Pipeline string                `yaml:"pipeline"`
	Version  int                   `yaml:"version"`
	Defaults TaskPolicy            `yaml:"defaults"`
	Tasks    map[string]TaskPolicy `yaml:"tasks"`

	FanOut struct {
		Workers   int           `yaml:"workers"`
		MaxPacing time.Duration `yaml:"max_pacing"`
	} `yaml:"fan_out"`

	MaxProducts    int `yaml:"max_products"`
	GoldWindowDays int `yaml:"gold_window_days"`

	Polled struct {
		Interval time.Duration `yaml:"interval"`
		Timeout  time.Duration `yaml:"timeout"`
	} `yaml:"polled"`
}

// LoadConfig reads PIPELINE_CONFIG_PATH when set, the embedded policy
// otherwise.
func LoadConfig() (Config, error) {
	var (
		data []byte
		err  error
	)
	if path := strings.TrimSpace(os.Getenv(PipelineConfigEnv)); path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = dailySpecFS.ReadFile("daily.yaml")
	}
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultConfig is the embedded policy. It panics only if the embedded file
// is broken.
func DefaultConfig() Config {
	data, err := dailySpecFS.ReadFile("daily.yaml")
	if err != nil {
		panic(err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) validate() error {
	if c == nil {
		return errors.New("missing config")
	}
	if strings.TrimSpace(c.Pipeline) != "daily" {
		return fmt.Errorf("unexpected pipeline: %s", c.Pipeline)
	}
	known := map[string]bool{}
	for _, name := range TaskNames {
		known[name] = true
	}
	for name, p := range c.Tasks {
		if !known[name] {
			return fmt.Errorf("unknown task in policy: %s", name)
		}
		if p.RetryBudget != nil && *p.RetryBudget < 0 {
			return fmt.Errorf("task %s: retry_budget must be >= 0", name)
		}
	}
	if c.Defaults.RetryBudget != nil && *c.Defaults.RetryBudget < 0 {
		return errors.New("defaults: retry_budget must be >= 0")
	}
	if c.FanOut.Workers < 0 {
		return errors.New("fan_out.workers must be >= 0")
	}
	return nil
}

// Spec resolves the orchestrator policy of a task.
func (c Config) Spec(task string) orchestrator.TaskSpec {
	spec := orchestrator.TaskSpec{Name: task, TTL: time.Minute, RetryBudget: 2, RetryDelay: 5 * time.Second, Jitter: 0.2}
	apply := func(p TaskPolicy) {
		if p.TTL != nil {
			spec.TTL = *p.TTL
		}
		if p.RetryBudget != nil {
			spec.RetryBudget = *p.RetryBudget
		}
		if p.RetryDelay != nil {
			spec.RetryDelay = *p.RetryDelay
		}
		if p.Jitter != nil {
			spec.Jitter = *p.Jitter
		}
	}
	apply(c.Defaults)
	if p, ok := c.Tasks[task]; ok {
		apply(p)
	}
	return spec
}

func (c Config) fanOut() orchestrator.FanOutConfig {
	return orchestrator.FanOutConfig{Workers: c.FanOut.Workers, MaxPacing: c.FanOut.MaxPacing}
}

func (c Config) wait() executor.WaitConfig {
	return executor.WaitConfig{Interval: c.Polled.Interval, Timeout: c.Polled.Timeout}
}
