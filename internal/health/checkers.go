// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"fmt"
	"os/exec"
)

// BinaryChecker reports whether an external program can be resolved.
type BinaryChecker struct {
	name string
	path string
}

// NewBinaryChecker creates a checker resolving path through exec.LookPath.
func NewBinaryChecker(name, path string) *BinaryChecker {
	return &BinaryChecker{name: name, path: path}
}

func (c *BinaryChecker) Name() string {
	return c.name
}

func (c *BinaryChecker) Check(_ context.Context) CheckResult {
	resolved, err := exec.LookPath(c.path)
	if err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Error:   err.Error(),
			Message: c.path,
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: resolved,
	}
}

// CountChecker is unhealthy while count reports zero items.
type CountChecker struct {
	name  string
	noun  string
	count func() int
}

// NewCountChecker creates a checker over a live item count, e.g. loaded profiles.
func NewCountChecker(name, noun string, count func() int) *CountChecker {
	return &CountChecker{name: name, noun: noun, count: count}
}

func (c *CountChecker) Name() string {
	return c.name
}

func (c *CountChecker) Check(_ context.Context) CheckResult {
	n := c.count()
	if n == 0 {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("no %s loaded", c.noun),
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("%d %s loaded", n, c.noun),
	}
}
