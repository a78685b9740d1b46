// Package harness drives an engine over repeated synthetic batches and records
// how resident memory grows across engine lifecycles.
package harness

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// RunConfig names a run and sizes its batches.
type RunConfig struct {
	TestName   string
	TotalItems int
	BatchCount int
}

// BatchSize is TotalItems / BatchCount, rounded down.
func (c RunConfig) BatchSize() int {
	if c.BatchCount <= 0 {
		return 0
	}
	return c.TotalItems / c.BatchCount
}

func (c RunConfig) Validate() error {
	name := strings.TrimSpace(c.TestName)
	if name == "" {
		return errors.New("test name is required")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("test name %q must not contain path separators", c.TestName)
	}
	if c.BatchCount <= 0 {
		return fmt.Errorf("batch count must be > 0, got %d", c.BatchCount)
	}
	if c.BatchSize() < 1 {
		return fmt.Errorf("total items %d is too small for %d batches", c.TotalItems, c.BatchCount)
	}
	return nil
}

// ArtifactPath is where a run's series is persisted.
func ArtifactPath(dir, testName string) string {
	return filepath.Join(dir, testName+".csv")
}
