// Package adapter builds capability backends from configuration and manages
// their lifecycle: version checks, startup, health probing with recovery and
// rebuilding the capability bindings when the config file changes.
package adapter

import (
	"context"
	"sync/atomic"

	"github.com/moolen/insight/internal/capability"
)

// Instance is a configured backend. Multiple instances of one Type may exist
// with different names, but only one enabled instance may serve a tag.
type Instance interface {
	capability.Backend

	// Metadata returns the instance's identifying information.
	Metadata() Metadata

	// Start connects the instance. A failed start leaves the instance bound
	// and Degraded; the manager retries it on every health check.
	Start(ctx context.Context) error

	// Stop releases connections. It should respect the ctx deadline.
	Stop(ctx context.Context) error

	// Health probes the backend.
	Health(ctx context.Context) HealthStatus
}

// Metadata holds identifying information for an instance.
type Metadata struct {
	// Name is the unique instance name (e.g., "internal-metrics").
	Name string

	// Version is the backend implementation version (e.g., "1.0.0").
	Version string

	// Description is shown by /v1/capabilities.
	Description string

	// Type is the factory type (e.g., "metrics", "grounded-trends").
	Type string
}

// HealthStatus represents the current health state of an instance.
type HealthStatus int32

const (
	// Healthy indicates the instance is functioning normally.
	Healthy HealthStatus = iota

	// Degraded indicates the backend is not reachable. The instance stays
	// bound; its calls fail as unreachable until it recovers.
	Degraded

	// Stopped indicates the instance was explicitly stopped.
	Stopped
)

// String returns the string representation of HealthStatus.
func (h HealthStatus) String() string {
	switch h {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// HealthState is an atomically updated HealthStatus for backends to embed.
type HealthState struct {
	v atomic.Int32
}

// NewHealthState returns a state initialized to Degraded.
func NewHealthState() *HealthState {
	s := &HealthState{}
	s.Set(Degraded)
	return s
}

// Set stores h.
func (s *HealthState) Set(h HealthStatus) { s.v.Store(int32(h)) }

// Get loads the current status.
func (s *HealthState) Get() HealthStatus { return HealthStatus(s.v.Load()) }

// Observe sets Healthy when err is nil and Degraded otherwise, unless the
// instance was stopped. It returns err unchanged.
func (s *HealthState) Observe(err error) error {
	if s.Get() == Stopped {
		return err
	}
	if err != nil {
		s.Set(Degraded)
	} else {
		s.Set(Healthy)
	}
	return err
}

// InstanceStatus is the externally visible state of a running instance.
type InstanceStatus struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Tag         string `json:"capability"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	Health      string `json:"health"`
}
