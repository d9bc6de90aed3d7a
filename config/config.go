// Package config holds run configuration defaults and loads YAML run plans.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/weiihann/pqbench/workload"
)

const (
	DefaultRepeat     = 1000
	DefaultMessageLen = 32
	DefaultOutput     = ".."
)

// ErrMessageLen is returned for a signature message length that is not
// positive.
var ErrMessageLen = errors.New("message length must be positive")

// CheckMessageLen rejects non-positive message lengths. Unlike repeat,
// an explicit message length is never replaced by the default.
func CheckMessageLen(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: got %d", ErrMessageLen, n)
	}

	return nil
}

// Run is the configuration of a single measured run.
type Run struct {
	Repeat     int    `yaml:"repeat"`
	MessageLen int    `yaml:"message_len"`
	Output     string `yaml:"output"`
}

// Normalize replaces non-positive or empty fields with their defaults.
func (r Run) Normalize() Run {
	if r.Repeat <= 0 {
		r.Repeat = DefaultRepeat
	}
	if r.MessageLen <= 0 {
		r.MessageLen = DefaultMessageLen
	}
	if r.Output == "" {
		r.Output = DefaultOutput
	}

	return r
}

// ParseRepeat parses a repetition count, falling back to DefaultRepeat
// when s is empty, unparseable or not positive.
func ParseRepeat(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return DefaultRepeat
	}

	return n
}

// Entry is one workload in a plan.
type Entry struct {
	Family    string `yaml:"family"`
	Algorithm string `yaml:"algorithm"`
	Repeat    int    `yaml:"repeat"`
}

// Plan is a list of workloads run one after the other with shared
// defaults. MessageLen is nil when the plan leaves it unset.
type Plan struct {
	Repeat     int     `yaml:"repeat"`
	MessageLen *int    `yaml:"message_len"`
	Output     string  `yaml:"output"`
	Workloads  []Entry `yaml:"workloads"`
}

// Job is a resolved plan entry.
type Job struct {
	Family    workload.Family
	Algorithm string
	Run       Run
}

// LoadPlan reads and validates a YAML plan.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan %s: %w", path, err)
	}

	return ParsePlan(data)
}

// ParsePlan decodes a YAML plan, rejecting unknown fields.
func ParsePlan(data []byte) (*Plan, error) {
	var plan Plan

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&plan); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}

	if plan.MessageLen != nil {
		if err := CheckMessageLen(*plan.MessageLen); err != nil {
			return nil, fmt.Errorf("plan message_len: %w", err)
		}
	}

	if len(plan.Workloads) == 0 {
		return nil, fmt.Errorf("plan has no workloads")
	}

	for i, e := range plan.Workloads {
		if _, err := workload.ParseFamily(e.Family); err != nil {
			return nil, fmt.Errorf("workload %d: %w", i, err)
		}
		if e.Algorithm == "" {
			return nil, fmt.Errorf("workload %d: algorithm is required", i)
		}
	}

	return &plan, nil
}

// Jobs resolves every entry against the plan defaults. An entry's own
// repeat overrides the plan's when positive.
func (p *Plan) Jobs() []Job {
	base := Run{Repeat: p.Repeat, Output: p.Output}
	if p.MessageLen != nil {
		base.MessageLen = *p.MessageLen
	}
	base = base.Normalize()

	jobs := make([]Job, 0, len(p.Workloads))

	for _, e := range p.Workloads {
		family, _ := workload.ParseFamily(e.Family)

		run := base
		if e.Repeat > 0 {
			run.Repeat = e.Repeat
		}

		jobs = append(jobs, Job{
			Family:    family,
			Algorithm: e.Algorithm,
			Run:       run,
		})
	}

	return jobs
}
