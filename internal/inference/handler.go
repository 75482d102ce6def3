package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// MarginalTolerance bounds how far a distribution's total may drift from 1.
const MarginalTolerance = 1e-6

// #region engine
// Engine is the external Bayesian-network inference engine. DoIntervention
// mutates engine state for every later Query until ResetDo is called.
type Engine interface {
	// Query returns, per observation set, the marginals of every node.
	Query(ctx context.Context, observations []Evidence) ([]map[string]Marginals, error)
	DoIntervention(ctx context.Context, variable string, bucket int) error
	ResetDo(ctx context.Context, variable string) error
}

// #endregion engine

// #region request
// Request is a typed predict call. Query requests use Observations;
// do-calculus requests use InterventionQuery and Interventions.
type Request struct {
	Method            Method         `json:"method"`
	Target            string         `json:"target"`
	Observations      []Evidence     `json:"observations,omitempty"`
	InterventionQuery Evidence       `json:"intervention_query,omitempty"`
	Interventions     []Intervention `json:"interventions,omitempty"`
}

// Validate checks the request once, before any engine call.
func (r Request) Validate() error {
	if r.Target == "" {
		return fmt.Errorf("%w: target is required", ErrInvalidRequest)
	}
	switch r.Method {
	case MethodQuery:
		if len(r.Observations) == 0 {
			return fmt.Errorf("%w: query needs at least one observation set", ErrInvalidRequest)
		}
	case MethodDoCalculus:
		if len(r.Interventions) == 0 {
			return fmt.Errorf("%w: do_calculus needs at least one intervention", ErrInvalidRequest)
		}
		for i, iv := range r.Interventions {
			if iv.Variable == "" {
				return fmt.Errorf("%w: intervention %d has no variable", ErrInvalidRequest, i)
			}
			if iv.Bucket < 0 {
				return fmt.Errorf("%w: intervention %d has negative bucket", ErrInvalidRequest, i)
			}
		}
	default:
		return &UnsupportedMethodError{Method: r.Method}
	}
	return nil
}

// #endregion request

// #region response
// Response carries either the query batch or the do-calculus result.
type Response struct {
	Method     Method
	Queries    []QueryResult
	DoCalculus *DoCalculusResult
}

// Format reduces the response to most-likely buckets.
func (r Response) Format() (Formatted, error) {
	switch r.Method {
	case MethodQuery:
		return FormatQuery(r.Queries)
	case MethodDoCalculus:
		if r.DoCalculus == nil {
			return Formatted{}, ErrEmptyOutput
		}
		return FormatDoCalculus(*r.DoCalculus)
	default:
		return Formatted{}, &UnsupportedMethodError{Method: r.Method}
	}
}

// MarshalJSON emits the array or object shape FormatOutput reads back.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Method == MethodDoCalculus {
		return json.Marshal(r.DoCalculus)
	}
	return json.Marshal(r.Queries)
}

// #endregion response

// #region handler
// Handler runs predict requests against an injected engine.
type Handler struct {
	engine Engine
	logger *zap.Logger
}

// NewHandler wires a handler. A nil logger is replaced with a no-op one.
func NewHandler(engine Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{engine: engine, logger: logger}
}

// Predict validates req and dispatches it.
func (h *Handler) Predict(ctx context.Context, req Request) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, err
	}
	h.logger.Debug("predict request",
		zap.String("method", string(req.Method)),
		zap.String("target", req.Target))

	switch req.Method {
	case MethodQuery:
		return h.query(ctx, req)
	default:
		return h.doCalculus(ctx, req)
	}
}

func (h *Handler) query(ctx context.Context, req Request) (Response, error) {
	all, err := h.engine.Query(ctx, req.Observations)
	if err != nil {
		return Response{}, fmt.Errorf("query: %w", err)
	}
	if len(all) != len(req.Observations) {
		return Response{}, fmt.Errorf("query: engine returned %d results for %d observation sets", len(all), len(req.Observations))
	}

	results := make([]QueryResult, len(all))
	for i, nodes := range all {
		m, err := targetMarginals(nodes, req.Target)
		if err != nil {
			return Response{}, fmt.Errorf("observation %d: %w", i, err)
		}
		results[i] = QueryResult{
			Method:      MethodQuery,
			Target:      req.Target,
			Observation: req.Observations[i],
			Marginals:   m,
		}
	}

	h.logger.Info("marginals of observed states",
		zap.String("target", req.Target),
		zap.Int("observations", len(results)))
	return Response{Method: MethodQuery, Queries: results}, nil
}

// doCalculus queries the target, applies the interventions, queries again,
// then resets every intervention it applied, including on failure.
func (h *Handler) doCalculus(ctx context.Context, req Request) (resp Response, err error) {
	before, err := h.queryOne(ctx, req.InterventionQuery, req.Target)
	if err != nil {
		return Response{}, fmt.Errorf("before intervention: %w", err)
	}

	var applied []string
	defer func() {
		for _, v := range applied {
			// a fresh context so a cancelled request still leaves the engine clean
			if rerr := h.engine.ResetDo(context.WithoutCancel(ctx), v); rerr != nil {
				h.logger.Error("reset intervention failed", zap.String("variable", v), zap.Error(rerr))
				err = errors.Join(err, fmt.Errorf("reset %s: %w", v, rerr))
			}
		}
		if err != nil {
			resp = Response{}
		}
	}()

	for _, iv := range req.Interventions {
		if err := h.engine.DoIntervention(ctx, iv.Variable, iv.Bucket); err != nil {
			return Response{}, fmt.Errorf("intervene %s=%d: %w", iv.Variable, iv.Bucket, err)
		}
		applied = append(applied, iv.Variable)
	}

	after, err := h.queryOne(ctx, req.InterventionQuery, req.Target)
	if err != nil {
		return Response{}, fmt.Errorf("after intervention: %w", err)
	}

	h.logger.Info("intervention applied",
		zap.String("target", req.Target),
		zap.Int("interventions", len(req.Interventions)))

	return Response{
		Method: MethodDoCalculus,
		DoCalculus: &DoCalculusResult{
			Method:        MethodDoCalculus,
			Target:        req.Target,
			Query:         req.InterventionQuery,
			Interventions: req.Interventions,
			Before:        before,
			After:         after,
		},
	}, nil
}

func (h *Handler) queryOne(ctx context.Context, obs Evidence, target string) (Marginals, error) {
	if obs == nil {
		obs = Evidence{}
	}
	all, err := h.engine.Query(ctx, []Evidence{obs})
	if err != nil {
		return nil, err
	}
	if len(all) != 1 {
		return nil, fmt.Errorf("engine returned %d results for 1 observation set", len(all))
	}
	return targetMarginals(all[0], target)
}

// #endregion handler

func targetMarginals(nodes map[string]Marginals, target string) (Marginals, error) {
	m, ok := nodes[target]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTargetMissing, target)
	}
	if err := m.Validate(MarginalTolerance); err != nil {
		return nil, fmt.Errorf("%s: %w", target, err)
	}
	return m, nil
}
