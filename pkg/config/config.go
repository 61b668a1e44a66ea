package config

import "github.com/i5heu/GoBlockingQueue/internal/testbench"

// Config is an alias for testbench.Config. This allows other programs to import
// the queue configuration without pulling in the entire testbench package.
type Config = testbench.Config

// Scenario and Duration are aliased for the same reason: scenario files are
// part of the public surface of the bench tooling.
type (
	Scenario = testbench.Scenario
	Duration = testbench.Duration
)
