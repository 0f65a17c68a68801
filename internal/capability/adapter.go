package capability

import (
	"context"
	"fmt"
	"reflect"
	"time"
)

// Backend is implemented by every concrete capability backend.
// Fetch may return any error; the Adapter maps it into the failure taxonomy.
type Backend interface {
	Tag() Tag
	Fetch(ctx context.Context, req Request) (Payload, error)
}

// Adapter puts a Backend behind the uniform invoke contract.
// It holds no per-call state and is safe for concurrent use.
type Adapter struct {
	name    string
	backend Backend
}

// NewAdapter wraps backend. name identifies the adapter instance in logs and metadata.
func NewAdapter(name string, backend Backend) *Adapter {
	return &Adapter{name: name, backend: backend}
}

// Name returns the adapter instance name.
func (a *Adapter) Name() string { return a.name }

// Tag returns the capability served by the backend.
func (a *Adapter) Tag() Tag { return a.backend.Tag() }

type fetchOutcome struct {
	payload Payload
	err     error
}

// Invoke calls the backend with a deadline of timeout (0 means no per-request
// deadline beyond ctx). It returns as soon as the backend answers or the
// deadline passes, even if the backend ignores its context.
//
// Ordinary backend problems come back as a Failure result. The error is non-nil
// only when req targets a tag this adapter does not serve.
func (a *Adapter) Invoke(ctx context.Context, req Request, timeout time.Duration) (Result, error) {
	if req.Tag != a.backend.Tag() {
		return Result{}, fmt.Errorf("%w: adapter %s serves %s, got request for %s",
			ErrUnknownCapability, a.name, a.backend.Tag(), req.Tag)
	}

	start := time.Now()
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- a.resultFrom(req.Tag, ctx, fetchOutcome{err: Malformed("backend panic: %v", r)})
			}
		}()
		payload, err := a.backend.Fetch(callCtx, req)
		// payload methods run here as well, under the recover
		done <- a.resultFrom(req.Tag, ctx, fetchOutcome{payload: payload, err: err})
	}()

	var res Result
	select {
	case res = <-done:
	case <-callCtx.Done():
		res = a.expired(req.Tag, ctx, timeout)
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

func (a *Adapter) resultFrom(tag Tag, parent context.Context, out fetchOutcome) Result {
	if out.err != nil {
		// a backend that gave up because the query ended reports cancelled, not its own error
		if parent.Err() != nil {
			return Failed(tag, ReasonCancelled, parent.Err().Error())
		}
		f := FailureFrom(out.err)
		return Result{Tag: tag, Failure: &f}
	}
	if isNil(out.payload) {
		return Failed(tag, ReasonMalformed, "backend returned no payload")
	}
	if out.payload.Tag() != tag {
		return Failed(tag, ReasonMalformed, fmt.Sprintf("backend returned %s payload", out.payload.Tag()))
	}

	metadata := map[string]string{"adapter": a.name}
	if mp, ok := out.payload.(MetadataProvider); ok {
		for k, v := range mp.Metadata() {
			metadata[k] = v
		}
	}
	return Success(tag, out.payload, metadata)
}

// isNil also catches a nil pointer stored in the interface.
func isNil(p Payload) bool {
	if p == nil {
		return true
	}
	v := reflect.ValueOf(p)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

func (a *Adapter) expired(tag Tag, parent context.Context, timeout time.Duration) Result {
	if err := parent.Err(); err != nil {
		return Failed(tag, ReasonCancelled, err.Error())
	}
	return Failed(tag, ReasonTimeout, fmt.Sprintf("no answer within %s", timeout))
}
