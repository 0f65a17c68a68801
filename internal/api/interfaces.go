package api

import (
	"context"

	"github.com/moolen/insight/internal/adapter"
	"github.com/moolen/insight/internal/capability"
	"github.com/moolen/insight/internal/report"
	"github.com/moolen/insight/internal/router"
)

// Engine answers queries. *router.Router implements it.
type Engine interface {
	Handle(ctx context.Context, q capability.Query) (report.Report, error)
	Classify(ctx context.Context, q capability.Query) (router.Classification, error)
	Enabled() []capability.Tag
}

// AdapterStatus reports the state of the running adapter instances.
// *adapter.Manager implements it.
type AdapterStatus interface {
	Statuses() []adapter.InstanceStatus
	Ready() error
}
