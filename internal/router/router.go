// Package router classifies marketing questions into capability tags, fans them
// out to the bound adapters and merges the answers into a single report.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/moolen/insight/internal/capability"
	"github.com/moolen/insight/internal/logging"
	"github.com/moolen/insight/internal/report"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrInvalidQuery is returned by Handle for parameters that fail validation.
var ErrInvalidQuery = errors.New("invalid query")

// Options configures a Router.
type Options struct {
	// Classifier maps queries to tags. Required.
	Classifier Classifier

	// Bindings map tags to adapters.
	Bindings Bindings

	// Enabled is the set of capabilities the router answers. Every enabled tag
	// needs a binding. Empty means every bound tag.
	Enabled []capability.Tag

	RequestTimeout time.Duration
	QueryTimeout   time.Duration
	MaxConcurrency int

	// DefaultWindowDays is applied when a query names no window. Zero leaves
	// the window to each backend.
	DefaultWindowDays int

	// Commentator fills the commentary slot. Nil means NoCommentary.
	Commentator Commentator

	Metrics *Metrics

	// Now is the clock used to resolve relative windows (tests pin it).
	Now func() time.Time
}

// Router is the entry point of the core: Handle turns a query into a report.
type Router struct {
	classifier  Classifier
	dispatcher  *Dispatcher
	synthesizer *Synthesizer
	enabled     []capability.Tag
	opts        Options
	logger      *logging.Logger
	tracer      trace.Tracer
}

// New validates opts and creates a router. A tag without an adapter, or an
// adapter outside the vocabulary, fails with ErrUnknownCapability.
func New(opts Options) (*Router, error) {
	if opts.Classifier == nil {
		return nil, fmt.Errorf("router: classifier is required")
	}
	if opts.RequestTimeout < 0 || opts.QueryTimeout < 0 {
		return nil, fmt.Errorf("router: timeouts must not be negative")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	enabled := capability.Distinct(opts.Enabled)
	for _, tag := range opts.Enabled {
		if !tag.Valid() {
			return nil, fmt.Errorf("%w: %s", capability.ErrUnknownCapability, tag)
		}
	}
	if len(enabled) == 0 {
		enabled = opts.Bindings.Tags()
	}
	if len(enabled) == 0 {
		return nil, fmt.Errorf("%w: no capability has an adapter", capability.ErrUnknownCapability)
	}
	if err := opts.Bindings.Validate(enabled); err != nil {
		return nil, err
	}

	return &Router{
		classifier: opts.Classifier,
		dispatcher: NewDispatcher(restrict(opts.Bindings, enabled), DispatcherOptions{
			RequestTimeout: opts.RequestTimeout,
			MaxConcurrency: opts.MaxConcurrency,
			Metrics:        opts.Metrics,
		}),
		synthesizer: NewSynthesizer(opts.Commentator),
		enabled:     enabled,
		opts:        opts,
		logger:      logging.GetLogger("router"),
		tracer:      otel.Tracer("insight.router"),
	}, nil
}

// restrict drops bindings of tags that are not enabled.
func restrict(b Bindings, enabled []capability.Tag) Bindings {
	var out Bindings
	for _, tag := range enabled {
		out[tag] = b[tag]
	}
	return out
}

// Rebind validates and installs new bindings, for example after a config reload.
// On error the previous bindings stay in effect.
func (r *Router) Rebind(b Bindings) error {
	if err := b.Validate(r.enabled); err != nil {
		return err
	}
	r.dispatcher.SetBindings(restrict(b, r.enabled))
	r.logger.Info("Installed new capability bindings for %s", joinTags(r.enabled))
	return nil
}

// Bindings returns the bindings currently used for dispatch.
func (r *Router) Bindings() Bindings {
	return r.dispatcher.Bindings()
}

// Enabled returns the capabilities the router answers, in enumeration order.
func (r *Router) Enabled() []capability.Tag {
	return append([]capability.Tag(nil), r.enabled...)
}

// Classify runs classification only and restricts the tags to enabled
// capabilities. Tags that are not enabled move to Rejected.
func (r *Router) Classify(ctx context.Context, q capability.Query) (Classification, error) {
	ctx, span := r.tracer.Start(ctx, "router.Classify")
	defer span.End()

	cls, err := r.classifier.Classify(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "classification failed")
		return Classification{}, err
	}

	bindings := r.dispatcher.Bindings()
	var kept []capability.Tag
	for _, tag := range capability.Distinct(cls.Tags) {
		if _, ok := bindings.Get(tag); ok {
			kept = append(kept, tag)
		} else {
			cls.Rejected = append(cls.Rejected, tag.String())
		}
	}
	cls.Tags = kept
	if len(kept) == 0 {
		cls.Unroutable = true
	}

	span.SetAttributes(
		attribute.String("classification.source", cls.Source),
		attribute.Bool("classification.unroutable", cls.Unroutable),
		attribute.String("classification.tags", joinTags(cls.Tags)),
	)
	r.opts.Metrics.observeClassification(cls.Source)
	return cls, nil
}

// Handle answers one query. It applies the query timeout, classifies, dispatches
// and synthesizes. An unroutable query yields a single-section report and no
// adapter calls. Backend failures are sections of the report, never errors;
// errors are returned only for invalid parameters and contract violations.
func (r *Router) Handle(ctx context.Context, q capability.Query) (report.Report, error) {
	ctx, span := r.tracer.Start(ctx, "router.Handle")
	defer span.End()
	logger := r.logger.WithContext(ctx)

	if err := q.Params.Validate(); err != nil {
		r.opts.Metrics.observeQuery("invalid")
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid query")
		return report.Report{}, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	if r.opts.DefaultWindowDays > 0 {
		q.Params.Window = q.Params.Window.Resolve(r.opts.Now(), r.opts.DefaultWindowDays)
	}

	queryCtx, cancel := ctx, context.CancelFunc(func() {})
	if r.opts.QueryTimeout > 0 {
		queryCtx, cancel = context.WithTimeout(ctx, r.opts.QueryTimeout)
	}
	defer cancel()

	cls, err := r.Classify(queryCtx, q)
	if err != nil {
		return report.Report{}, err
	}
	if cls.Unroutable {
		logger.Info("Answering without dispatch: %v", cls.Err())
		r.opts.Metrics.observeQuery("unroutable")
		span.RecordError(cls.Err())
		span.SetAttributes(attribute.String("query.outcome", "unroutable"))
		return report.NewUnroutable(q.Text, tagNames(r.enabled), rejectedDetail(cls)), nil
	}

	results, err := r.dispatcher.Dispatch(queryCtx, q, cls.Tags)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
		return report.Report{}, err
	}

	// commentary gets whatever is left of the query budget
	rep := r.synthesizer.Synthesize(queryCtx, q, results)

	outcome := queryOutcome(rep)
	r.opts.Metrics.observeQuery(outcome)
	span.SetAttributes(attribute.String("query.outcome", outcome))
	logger.InfoWithFields("Query answered",
		logging.Field("capabilities", joinTags(cls.Tags)),
		logging.Field("source", cls.Source),
		logging.Field("outcome", outcome),
	)
	return rep, nil
}

func queryOutcome(rep report.Report) string {
	failed := len(rep.Failures())
	switch {
	case failed == 0:
		return "ok"
	case failed == len(rep.Sections):
		return "failed"
	default:
		return "partial"
	}
}

func rejectedDetail(cls Classification) string {
	if len(cls.Rejected) == 0 {
		return ""
	}
	return "Not available: " + strings.Join(cls.Rejected, ", ") + "."
}

func tagNames(tags []capability.Tag) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.String()
	}
	return out
}

func joinTags(tags []capability.Tag) string {
	return strings.Join(tagNames(tags), ",")
}
