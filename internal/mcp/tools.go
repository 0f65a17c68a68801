package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/moolen/insight/internal/capability"
)

type queryInput struct {
	capability.QueryInput
	Format string `json:"format"`
}

func parseQuery(input json.RawMessage, now time.Time) (queryInput, capability.Query, error) {
	var in queryInput
	if err := json.Unmarshal(input, &in); err != nil {
		return queryInput{}, capability.Query{}, fmt.Errorf("invalid input: %w", err)
	}
	q, err := in.QueryInput.Build(now)
	if err != nil {
		return queryInput{}, capability.Query{}, err
	}
	return in, q, nil
}

type queryTool struct {
	engine Engine
}

func (t *queryTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	in, q, err := parseQuery(input, time.Now())
	if err != nil {
		return nil, err
	}
	rep, err := t.engine.Handle(ctx, q)
	if err != nil {
		return nil, err
	}
	switch in.Format {
	case "", "markdown":
		return Text(rep.Markdown()), nil
	case "json":
		return rep, nil
	default:
		return nil, fmt.Errorf("format must be markdown or json, got %q", in.Format)
	}
}

type classifyTool struct {
	engine Engine
}

func (t *classifyTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	_, q, err := parseQuery(input, time.Now())
	if err != nil {
		return nil, err
	}
	return t.engine.Classify(ctx, q)
}

type capabilityStatus struct {
	Capability string `json:"capability"`
	Instance   string `json:"instance,omitempty"`
	Type       string `json:"type,omitempty"`
	Health     string `json:"health"`
}

type capabilitiesTool struct {
	engine   Engine
	statuses StatusSource
}

func (t *capabilitiesTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	byTag := make(map[string]capabilityStatus)
	if t.statuses != nil {
		for _, st := range t.statuses.Statuses() {
			byTag[st.Tag] = capabilityStatus{Capability: st.Tag, Instance: st.Name, Type: st.Type, Health: st.Health}
		}
	}
	out := make([]capabilityStatus, 0)
	for _, tag := range t.engine.Enabled() {
		st, ok := byTag[tag.String()]
		if !ok {
			st = capabilityStatus{Capability: tag.String(), Health: "unbound"}
		}
		out = append(out, st)
	}
	return map[string]interface{}{"capabilities": out}, nil
}
