package domain

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Stage represents one phase of the fixed file pipeline
type Stage string

const (
	StagePrelims    Stage = "PRELIMS"
	StageProduction Stage = "PRODUCTION"
	StageCompleted  Stage = "COMPLETED"
	StageQC         Stage = "QC"
	StageDelivered  Stage = "DELIVERED"
)

// IsValid checks if the stage is valid
func (s Stage) IsValid() bool {
	switch s {
	case StagePrelims, StageProduction, StageCompleted, StageQC, StageDelivered:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the stage is the end of the pipeline
func (s Stage) IsTerminal() bool {
	return s == StageDelivered
}

// AllStages returns the pipeline stages in order
func AllStages() []Stage {
	return []Stage{StagePrelims, StageProduction, StageCompleted, StageQC, StageDelivered}
}

// VisitStatus represents the status of a single stage visit
type VisitStatus string

const (
	VisitStatusPending    VisitStatus = "PENDING"
	VisitStatusInProgress VisitStatus = "IN_PROGRESS"
	VisitStatusCompleted  VisitStatus = "COMPLETED"
	VisitStatusEscalated  VisitStatus = "ESCALATED"
)

// IsOpen reports whether the visit still accepts work
func (s VisitStatus) IsOpen() bool {
	return s == VisitStatusPending || s == VisitStatusInProgress || s == VisitStatusEscalated
}

// FileStatus represents the file-level tracking status
type FileStatus string

const (
	FileStatusInProgress FileStatus = "IN_PROGRESS"
	FileStatusCompleted  FileStatus = "COMPLETED"
	FileStatusDelivered  FileStatus = "DELIVERED"
)

// StageConfig holds the SLA thresholds and reachability rules for one stage
type StageConfig struct {
	IdealMinutes      float64 `yaml:"idealMinutes"`
	MaxMinutes        float64 `yaml:"maxMinutes"`
	EscalationMinutes float64 `yaml:"escalationMinutes"`
	AllowedPrevious   []Stage `yaml:"allowedPrevious"`
}

// allowsPrevious reports whether from is a legal predecessor
func (c StageConfig) allowsPrevious(from Stage) bool {
	for _, s := range c.AllowedPrevious {
		if s == from {
			return true
		}
	}
	return false
}

// StageCatalog is the immutable per-stage configuration table. It is built
// once at process start and is safe for unsynchronized concurrent reads.
type StageCatalog struct {
	configs map[Stage]StageConfig
}

// NewStageCatalog builds a catalog from explicit per-stage configuration
func NewStageCatalog(configs map[Stage]StageConfig) *StageCatalog {
	return &StageCatalog{configs: configs}
}

// DefaultCatalog returns the built-in stage configuration
func DefaultCatalog() *StageCatalog {
	return &StageCatalog{
		configs: map[Stage]StageConfig{
			StagePrelims: {
				IdealMinutes:      240,
				MaxMinutes:        480,
				EscalationMinutes: 720,
				AllowedPrevious:   nil, // start stage only
			},
			StageProduction: {
				IdealMinutes:      480,
				MaxMinutes:        960,
				EscalationMinutes: 1440,
				AllowedPrevious:   []Stage{StagePrelims},
			},
			StageCompleted: {
				IdealMinutes:      60,
				MaxMinutes:        120,
				EscalationMinutes: 240,
				AllowedPrevious:   []Stage{StageProduction},
			},
			StageQC: {
				IdealMinutes:      120,
				MaxMinutes:        240,
				EscalationMinutes: 360,
				AllowedPrevious:   []Stage{StageCompleted},
			},
			StageDelivered: {
				IdealMinutes:      0,
				MaxMinutes:        0,
				EscalationMinutes: 0,
				AllowedPrevious:   []Stage{StageQC},
			},
		},
	}
}

// LoadCatalog reads stage configuration overrides from a YAML file and merges
// them over the defaults. Stages absent from the file keep their built-in
// thresholds and reachability.
func LoadCatalog(path string) (*StageCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stage catalog: %w", err)
	}

	var overrides map[Stage]StageConfig
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse stage catalog: %w", err)
	}

	catalog := DefaultCatalog()
	for stage, cfg := range overrides {
		if !stage.IsValid() {
			return nil, fmt.Errorf("unknown stage in catalog: %s", stage)
		}
		for _, prev := range cfg.AllowedPrevious {
			if !prev.IsValid() {
				return nil, fmt.Errorf("unknown predecessor stage %s for %s", prev, stage)
			}
		}
		catalog.configs[stage] = cfg
	}

	return catalog, nil
}

// Config returns the configuration for a stage
func (c *StageCatalog) Config(stage Stage) (StageConfig, bool) {
	cfg, ok := c.configs[stage]
	return cfg, ok
}

// CanTransition reports whether from is a legal predecessor of to
func (c *StageCatalog) CanTransition(from, to Stage) bool {
	cfg, ok := c.configs[to]
	if !ok {
		return false
	}
	return cfg.allowsPrevious(from)
}

// StartStages returns the stages only reachable as a pipeline start
func (c *StageCatalog) StartStages() []Stage {
	var stages []Stage
	for _, s := range AllStages() {
		if cfg, ok := c.configs[s]; ok && len(cfg.AllowedPrevious) == 0 {
			stages = append(stages, s)
		}
	}
	return stages
}
