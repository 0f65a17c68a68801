package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/moolen/insight/internal/capability"
	"github.com/moolen/insight/internal/logging"
)

const maxBodyBytes = 64 << 10

type queryHandler struct {
	engine Engine
	now    func() time.Time
}

func (h *queryHandler) parse(w http.ResponseWriter, r *http.Request) (capability.Query, *APIError) {
	var in capability.QueryInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		if err == io.EOF {
			return capability.Query{}, NewInvalidRequestError("request body is empty")
		}
		return capability.Query{}, NewInvalidRequestError("invalid request body: %v", err)
	}
	q, err := in.Build(h.now())
	if err != nil {
		return capability.Query{}, toInputError(err)
	}
	return q, nil
}

func toInputError(err error) *APIError {
	if apiErr := toAPIError(err); apiErr.Code == ErrorCodeUnknownCapability {
		return apiErr
	}
	return NewInvalidRequestError("%s", err.Error())
}

// handleQuery answers POST /v1/query with a report.
func (h *queryHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLogger("api").WithContext(r.Context())

	q, apiErr := h.parse(w, r)
	if apiErr != nil {
		logger.Debug("Rejected query: %s", apiErr.Message)
		writeError(w, apiErr)
		return
	}

	rep, err := h.engine.Handle(r.Context(), q)
	if err != nil {
		apiErr := toAPIError(err)
		if apiErr.StatusCode >= 500 {
			logger.Error("Query failed: %v", err)
		}
		writeError(w, apiErr)
		return
	}

	if wantsMarkdown(r) {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, rep.Markdown())
		return
	}
	respond(w, http.StatusOK, rep)
}

// handleClassify answers POST /v1/classify without dispatching.
func (h *queryHandler) handleClassify(w http.ResponseWriter, r *http.Request) {
	q, apiErr := h.parse(w, r)
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}
	cls, err := h.engine.Classify(r.Context(), q)
	if err != nil {
		writeError(w, toAPIError(err))
		return
	}
	respond(w, http.StatusOK, cls)
}
