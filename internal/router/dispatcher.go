package router

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/moolen/insight/internal/capability"
	"github.com/moolen/insight/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Bindings maps each capability tag to its adapter. It is resolved once at
// startup (and on config reload) so dispatch never looks adapters up by name.
type Bindings [capability.NumTags]*capability.Adapter

// Bind sets the adapter for its tag. Binding a tag twice is an error.
func (b *Bindings) Bind(a *capability.Adapter) error {
	tag := a.Tag()
	if !tag.Valid() {
		return fmt.Errorf("%w: adapter %s serves %s", capability.ErrUnknownCapability, a.Name(), tag)
	}
	if prev := b[tag]; prev != nil {
		return fmt.Errorf("capability %s is served by both %s and %s", tag, prev.Name(), a.Name())
	}
	b[tag] = a
	return nil
}

// Get returns the adapter bound to tag.
func (b Bindings) Get(tag capability.Tag) (*capability.Adapter, bool) {
	if !tag.Valid() || b[tag] == nil {
		return nil, false
	}
	return b[tag], true
}

// Tags returns the bound tags in enumeration order.
func (b Bindings) Tags() []capability.Tag {
	var out []capability.Tag
	for _, tag := range capability.AllTags() {
		if b[tag] != nil {
			out = append(out, tag)
		}
	}
	return out
}

// Validate checks that every enabled tag has an adapter.
func (b Bindings) Validate(enabled []capability.Tag) error {
	for _, tag := range enabled {
		if !tag.Valid() {
			return fmt.Errorf("%w: %s", capability.ErrUnknownCapability, tag)
		}
		if b[tag] == nil {
			return fmt.Errorf("%w: no adapter bound to enabled capability %s", capability.ErrUnknownCapability, tag)
		}
	}
	return nil
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// RequestTimeout bounds each adapter call. Zero leaves only the query deadline.
	RequestTimeout time.Duration

	// MaxConcurrency caps concurrent adapter calls per query. Zero means one per tag.
	MaxConcurrency int

	Metrics *Metrics
}

// Dispatcher fans a query out to the adapters of a tag set.
type Dispatcher struct {
	bindings atomic.Pointer[Bindings]
	opts     DispatcherOptions
	logger   *logging.Logger
	tracer   trace.Tracer
}

// NewDispatcher creates a dispatcher over bindings.
func NewDispatcher(bindings Bindings, opts DispatcherOptions) *Dispatcher {
	d := &Dispatcher{
		opts:   opts,
		logger: logging.GetLogger("router.dispatcher"),
		tracer: otel.Tracer("insight.router"),
	}
	d.bindings.Store(&bindings)
	return d
}

// Bindings returns the current bindings.
func (d *Dispatcher) Bindings() Bindings {
	return *d.bindings.Load()
}

// SetBindings swaps the bindings. Queries already dispatching keep the old set.
func (d *Dispatcher) SetBindings(b Bindings) {
	d.bindings.Store(&b)
}

// Dispatch issues one request per distinct tag and returns one result per
// distinct tag. Backend problems are results, not errors; the only error is
// ErrUnknownCapability for a tag without an adapter, reported before any call.
// When ctx ends, calls still pending or not yet started yield Failure(cancelled).
func (d *Dispatcher) Dispatch(ctx context.Context, q capability.Query, tags []capability.Tag) (map[capability.Tag]capability.Result, error) {
	bindings := d.bindings.Load()
	for _, tag := range tags {
		if _, ok := bindings.Get(tag); !ok {
			return nil, fmt.Errorf("%w: no adapter bound to %s", capability.ErrUnknownCapability, tag)
		}
	}
	distinct := capability.Distinct(tags)

	ctx, span := d.tracer.Start(ctx, "router.Dispatch",
		trace.WithAttributes(attribute.Int("dispatch.tags", len(distinct))))
	defer span.End()

	results := make([]capability.Result, len(distinct))
	g := new(errgroup.Group)
	if d.opts.MaxConcurrency > 0 {
		g.SetLimit(d.opts.MaxConcurrency)
	}
	for i, tag := range distinct {
		i, tag := i, tag
		adapter, _ := bindings.Get(tag)
		g.Go(func() error {
			res, err := d.invoke(ctx, adapter, capability.Request{Tag: tag, Query: q})
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
		return nil, err
	}

	out := make(map[capability.Tag]capability.Result, len(results))
	for _, res := range results {
		out[res.Tag] = res
	}
	return out, nil
}

func (d *Dispatcher) invoke(ctx context.Context, adapter *capability.Adapter, req capability.Request) (capability.Result, error) {
	// queued behind MaxConcurrency while the query expired
	if err := ctx.Err(); err != nil {
		res := capability.Failed(req.Tag, capability.ReasonCancelled, err.Error())
		d.opts.Metrics.observeCall(res)
		return res, nil
	}

	ctx, span := d.tracer.Start(ctx, "adapter.Invoke", trace.WithAttributes(
		attribute.String("capability", req.Tag.String()),
		attribute.String("adapter", adapter.Name()),
	))
	defer span.End()

	res, err := adapter.Invoke(ctx, req, d.opts.RequestTimeout)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "contract violation")
		return capability.Result{}, err
	}

	span.SetAttributes(attribute.String("outcome", res.Outcome()))
	if res.Failure != nil {
		span.SetStatus(codes.Error, res.Failure.String())
		d.logger.WithContext(ctx).WithFields(
			logging.Field("capability", req.Tag.String()),
			logging.Field("adapter", adapter.Name()),
			logging.Field("reason", string(res.Failure.Reason)),
		).Warn("Capability call failed: %s", res.Failure.Detail)
	} else {
		d.logger.WithContext(ctx).Debug("Capability %s answered in %s (%s)", req.Tag, res.Elapsed, res.Outcome())
	}
	d.opts.Metrics.observeCall(res)
	return res, nil
}
