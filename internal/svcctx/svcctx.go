// Package svcctx bundles the concrete dependencies every service
// constructs once at startup and threads explicitly through its
// components — no package-level singletons, per the design note that
// reproducible tests require injected collaborators (bus, clock, RNG)
// rather than globals.
package svcctx

import (
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/chatsim/chatsim/internal/busadapter"
	"github.com/chatsim/chatsim/internal/generator"
	"github.com/chatsim/chatsim/internal/memory"
	"github.com/chatsim/chatsim/internal/policy"
	"github.com/chatsim/chatsim/internal/safety"
	"github.com/chatsim/chatsim/internal/schema"
)

// ServiceContext is the explicit dependency bag passed into the gateway,
// persona worker, and perceptor constructors.
type ServiceContext struct {
	Bus       *busadapter.Adapter
	Validator *schema.Validator
	Safety    *safety.Filter
	Memory    *memory.Adapter
	Generator generator.Generator
	Policy    *policy.Engine

	LLMSem *semaphore.Weighted
	MemSem *semaphore.Weighted

	// Now returns the current time; tests inject a fixed/stepped clock.
	Now func() time.Time

	MemTimeout time.Duration
}

// New builds a ServiceContext with the given collaborators, defaulting Now
// to time.Now and MemTimeout to the spec's 500ms default when unset.
func New(
	bus *busadapter.Adapter,
	validator *schema.Validator,
	safetyFilter *safety.Filter,
	mem *memory.Adapter,
	gen generator.Generator,
	pol *policy.Engine,
	maxLLMConcurrency, maxMemConcurrency int64,
) *ServiceContext {
	if maxLLMConcurrency <= 0 {
		maxLLMConcurrency = 8
	}
	if maxMemConcurrency <= 0 {
		maxMemConcurrency = 8
	}
	return &ServiceContext{
		Bus:        bus,
		Validator:  validator,
		Safety:     safetyFilter,
		Memory:     mem,
		Generator:  gen,
		Policy:     pol,
		LLMSem:     semaphore.NewWeighted(maxLLMConcurrency),
		MemSem:     semaphore.NewWeighted(maxMemConcurrency),
		Now:        time.Now,
		MemTimeout: 500 * time.Millisecond,
	}
}
