// Package jobdef assembles per-position cluster-count validation commands
// into schedulable job definitions.  It is deliberately thin: the scheduler
// integration lives elsewhere and consumes Definition as an opaque unit.
package jobdef

import (
	"fmt"
	"strings"
)

// Params are the per-position inputs to one validation job.
type Params struct {
	IDRun           int
	Position        int
	TileMetricsPath string
	QCPath          string
	Paired          bool
	Multiplexed     bool
}

// Definition is one schedulable unit.
type Definition struct {
	Name    string
	Command string
}

func validate(p Params) error {
	if p.IDRun <= 0 {
		return fmt.Errorf("jobdef: id run must be positive, got %d", p.IDRun)
	}
	if p.Position <= 0 {
		return fmt.Errorf("jobdef: position must be positive, got %d", p.Position)
	}
	if p.TileMetricsPath == "" {
		return fmt.Errorf("jobdef: tile metrics path is required")
	}
	if p.QCPath == "" {
		return fmt.Errorf("jobdef: qc path is required")
	}
	return nil
}

// New builds the job definition for one position.
func New(p Params) (Definition, error) {
	if err := validate(p); err != nil {
		return Definition{}, err
	}
	args := []string{
		"runqc-check",
		fmt.Sprintf("-id-run=%d", p.IDRun),
		fmt.Sprintf("-positions=%d", p.Position),
		fmt.Sprintf("-interop=%s", p.TileMetricsPath),
		fmt.Sprintf("-qc-dir=%s", p.QCPath),
	}
	if p.Paired {
		args = append(args, "-paired")
	}
	if p.Multiplexed {
		args = append(args, "-multiplexed")
	}
	return Definition{
		Name:    fmt.Sprintf("check_cluster_count_%d_%d", p.IDRun, p.Position),
		Command: strings.Join(args, " "),
	}, nil
}
