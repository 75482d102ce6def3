package inference

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// #region fake-engine
// fakeEngine answers "yield" marginals that shift toward bucket 1 whenever
// any intervention is active.
type fakeEngine struct {
	active   map[string]int
	calls    []string
	queryErr error
	doErr    error
	resetErr error
	// failAfter makes the second query fail
	failAfter bool
	queries   int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{active: map[string]int{}}
}

func (f *fakeEngine) Query(_ context.Context, observations []Evidence) ([]map[string]Marginals, error) {
	f.calls = append(f.calls, "query")
	f.queries++
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.failAfter && f.queries > 1 {
		return nil, errors.New("engine crashed")
	}
	out := make([]map[string]Marginals, len(observations))
	for i, obs := range observations {
		yield := Marginals{{"0", 0.7}, {"1", 0.3}}
		if len(f.active) > 0 || obs["tmean_w12"] == 2 {
			yield = Marginals{{"0", 0.2}, {"1", 0.8}}
		}
		out[i] = map[string]Marginals{
			"yield":    yield,
			"ndvi_w20": {{"0", 0.5}, {"1", 0.5}},
		}
	}
	return out, nil
}

func (f *fakeEngine) DoIntervention(_ context.Context, variable string, bucket int) error {
	f.calls = append(f.calls, "do:"+variable)
	if f.doErr != nil {
		return f.doErr
	}
	f.active[variable] = bucket
	return nil
}

func (f *fakeEngine) ResetDo(_ context.Context, variable string) error {
	f.calls = append(f.calls, "reset:"+variable)
	if f.resetErr != nil {
		return f.resetErr
	}
	delete(f.active, variable)
	return nil
}

// #endregion fake-engine

// #region validate-tests
func TestRequest_Validate(t *testing.T) {
	cases := []struct {
		name string
		req  Request
		want error
	}{
		{"ok query", Request{Method: MethodQuery, Target: "yield", Observations: []Evidence{{}}}, nil},
		{"ok do", Request{Method: MethodDoCalculus, Target: "yield", Interventions: []Intervention{{"ndvi_w20", 1}}}, nil},
		{"no target", Request{Method: MethodQuery, Observations: []Evidence{{}}}, ErrInvalidRequest},
		{"no observations", Request{Method: MethodQuery, Target: "yield"}, ErrInvalidRequest},
		{"no interventions", Request{Method: MethodDoCalculus, Target: "yield"}, ErrInvalidRequest},
		{"blank intervention", Request{Method: MethodDoCalculus, Target: "yield", Interventions: []Intervention{{"", 1}}}, ErrInvalidRequest},
		{"negative bucket", Request{Method: MethodDoCalculus, Target: "yield", Interventions: []Intervention{{"x", -1}}}, ErrInvalidRequest},
		{"bad method", Request{Method: "sample", Target: "yield"}, ErrUnsupportedMethod},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.req.Validate()
			if c.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, c.want)
		})
	}
}

func TestRequest_JSON(t *testing.T) {
	raw := `{"method":"do_calculus","target":"yield","intervention_query":{"tmean_w12":0},"interventions":[["ndvi_w20",2]]}`
	var req Request
	require.NoError(t, json.Unmarshal([]byte(raw), &req))
	assert.Equal(t, MethodDoCalculus, req.Method)
	assert.Equal(t, Evidence{"tmean_w12": 0}, req.InterventionQuery)
	assert.Equal(t, []Intervention{{"ndvi_w20", 2}}, req.Interventions)
	require.NoError(t, req.Validate())
}

// #endregion validate-tests

// #region predict-tests
func TestPredict_Query(t *testing.T) {
	eng := newFakeEngine()
	h := NewHandler(eng, zaptest.NewLogger(t))

	resp, err := h.Predict(context.Background(), Request{
		Method:       MethodQuery,
		Target:       "yield",
		Observations: []Evidence{{"tmean_w12": 0}, {"tmean_w12": 2}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Queries, 2)
	assert.Equal(t, Evidence{"tmean_w12": 2}, resp.Queries[1].Observation)

	f, err := resp.Format()
	require.NoError(t, err)
	assert.Equal(t, 0, f.Buckets[0].Index)
	assert.Equal(t, 1, f.Buckets[1].Index)
}

func TestPredict_QueryTargetMissing(t *testing.T) {
	h := NewHandler(newFakeEngine(), nil)
	_, err := h.Predict(context.Background(), Request{
		Method:       MethodQuery,
		Target:       "protein",
		Observations: []Evidence{{}},
	})
	assert.ErrorIs(t, err, ErrTargetMissing)
}

func TestPredict_QueryEngineError(t *testing.T) {
	eng := newFakeEngine()
	eng.queryErr = errors.New("unavailable")
	h := NewHandler(eng, nil)

	_, err := h.Predict(context.Background(), Request{Method: MethodQuery, Target: "yield", Observations: []Evidence{{}}})
	assert.ErrorIs(t, err, eng.queryErr)
}

func TestPredict_InvalidRequestSkipsEngine(t *testing.T) {
	eng := newFakeEngine()
	h := NewHandler(eng, nil)

	_, err := h.Predict(context.Background(), Request{Method: "sample", Target: "yield"})
	assert.ErrorIs(t, err, ErrUnsupportedMethod)
	assert.Empty(t, eng.calls)
}

func TestPredict_DoCalculus(t *testing.T) {
	eng := newFakeEngine()
	h := NewHandler(eng, zaptest.NewLogger(t))

	resp, err := h.Predict(context.Background(), Request{
		Method:            MethodDoCalculus,
		Target:            "yield",
		InterventionQuery: Evidence{"tmean_w12": 0},
		Interventions:     []Intervention{{"ndvi_w20", 1}, {"ndvi_w24", 1}},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.DoCalculus)

	assert.Equal(t, []string{
		"query", "do:ndvi_w20", "do:ndvi_w24", "query", "reset:ndvi_w20", "reset:ndvi_w24",
	}, eng.calls)
	assert.Empty(t, eng.active)

	f, err := resp.Format()
	require.NoError(t, err)
	assert.Equal(t, 0, f.Buckets[0].Index)
	assert.Equal(t, 1, f.Buckets[1].Index)

	out, err := json.Marshal(resp)
	require.NoError(t, err)
	back, err := FormatOutput(out)
	require.NoError(t, err)
	assert.Equal(t, f, back)
}

func TestPredict_DoCalculusResetsOnFailure(t *testing.T) {
	eng := newFakeEngine()
	eng.failAfter = true
	h := NewHandler(eng, nil)

	_, err := h.Predict(context.Background(), Request{
		Method:        MethodDoCalculus,
		Target:        "yield",
		Interventions: []Intervention{{"ndvi_w20", 1}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after intervention")
	assert.Empty(t, eng.active)
	assert.Equal(t, "reset:ndvi_w20", eng.calls[len(eng.calls)-1])
}

func TestPredict_DoCalculusPartialIntervention(t *testing.T) {
	eng := &partialEngine{fakeEngine: newFakeEngine(), failOn: "ndvi_w24"}
	h := NewHandler(eng, nil)

	_, err := h.Predict(context.Background(), Request{
		Method:        MethodDoCalculus,
		Target:        "yield",
		Interventions: []Intervention{{"ndvi_w20", 1}, {"ndvi_w24", 1}},
	})
	require.Error(t, err)
	// only the intervention that took effect is reset
	assert.Equal(t, []string{"query", "do:ndvi_w20", "do:ndvi_w24", "reset:ndvi_w20"}, eng.calls)
}

func TestPredict_DoCalculusResetError(t *testing.T) {
	eng := newFakeEngine()
	eng.resetErr = errors.New("reset refused")
	h := NewHandler(eng, nil)

	resp, err := h.Predict(context.Background(), Request{
		Method:        MethodDoCalculus,
		Target:        "yield",
		Interventions: []Intervention{{"ndvi_w20", 1}},
	})
	assert.ErrorIs(t, err, eng.resetErr)
	assert.Nil(t, resp.DoCalculus)
}

type partialEngine struct {
	*fakeEngine
	failOn string
}

func (p *partialEngine) DoIntervention(ctx context.Context, variable string, bucket int) error {
	if variable == p.failOn {
		p.calls = append(p.calls, "do:"+variable)
		return errors.New("no such node")
	}
	return p.fakeEngine.DoIntervention(ctx, variable, bucket)
}

// #endregion predict-tests
