package engine

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/cropnet/internal/inference"
)

// #region mock
type mockInferenceService struct {
	queryReq  *structpb.Struct
	queryResp *structpb.Struct
	queryErr  error

	doReq *structpb.Struct
	doErr error

	resetReq *structpb.Struct
	resetErr error
}

func (m *mockInferenceService) Query(_ context.Context, in *structpb.Struct, _ ...grpc.CallOption) (*structpb.Struct, error) {
	m.queryReq = in
	return m.queryResp, m.queryErr
}

func (m *mockInferenceService) DoIntervention(_ context.Context, in *structpb.Struct, _ ...grpc.CallOption) (*structpb.Struct, error) {
	m.doReq = in
	return &structpb.Struct{}, m.doErr
}

func (m *mockInferenceService) ResetDo(_ context.Context, in *structpb.Struct, _ ...grpc.CallOption) (*structpb.Struct, error) {
	m.resetReq = in
	return &structpb.Struct{}, m.resetErr
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("new struct: %v", err)
	}
	return s
}

// #endregion mock

// #region constructor-tests
func TestNewClientUnusedAddr(t *testing.T) {
	client, err := NewClient("localhost:0")
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}
	defer client.Close()
}

func TestNewClientWithService(t *testing.T) {
	c := NewClientWithService(&mockInferenceService{}, WithWorkers(6))
	if c == nil {
		t.Fatal("expected non-nil client")
	}
	if c.workers != 6 {
		t.Errorf("expected 6 workers, got %d", c.workers)
	}
	if err := c.Close(); err != nil {
		t.Errorf("close without conn: %v", err)
	}
}

func TestWithWorkersIgnoresNonPositive(t *testing.T) {
	c := NewClientWithService(&mockInferenceService{}, WithWorkers(0))
	if c.workers != 1 {
		t.Errorf("expected default 1 worker, got %d", c.workers)
	}
}

// #endregion constructor-tests

// #region query-tests
func TestQuery_Success(t *testing.T) {
	mock := &mockInferenceService{
		queryResp: mustStruct(t, map[string]any{
			"results": []any{
				map[string]any{
					"yield": map[string]any{"10": 0.05, "2": 0.15, "0": 0.1, "1": 0.7},
				},
			},
		}),
	}
	c := NewClientWithService(mock, WithWorkers(3))

	results, err := c.Query(context.Background(), []inference.Evidence{{"tmean_w12": 2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	yield := results[0]["yield"]
	wantOrder := []string{"0", "1", "2", "10"}
	if len(yield) != len(wantOrder) {
		t.Fatalf("expected %d buckets, got %d", len(wantOrder), len(yield))
	}
	for i, b := range wantOrder {
		if yield[i].Bucket != b {
			t.Errorf("position %d: expected bucket %s, got %s", i, b, yield[i].Bucket)
		}
	}

	// request carries observations and the worker hint
	fields := mock.queryReq.GetFields()
	if got := fields["workers"].GetNumberValue(); got != 3 {
		t.Errorf("expected workers 3, got %v", got)
	}
	obs := fields["observations"].GetListValue().GetValues()
	if len(obs) != 1 {
		t.Fatalf("expected 1 observation set, got %d", len(obs))
	}
	if got := obs[0].GetStructValue().GetFields()["tmean_w12"].GetNumberValue(); got != 2 {
		t.Errorf("expected tmean_w12=2, got %v", got)
	}
}

func TestQuery_Error(t *testing.T) {
	mock := &mockInferenceService{queryErr: errors.New("rpc failed")}
	c := NewClientWithService(mock)

	_, err := c.Query(context.Background(), []inference.Evidence{{}})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, mock.queryErr) {
		t.Errorf("expected wrapped rpc error, got: %v", err)
	}
}

func TestQuery_MissingResults(t *testing.T) {
	mock := &mockInferenceService{queryResp: &structpb.Struct{}}
	c := NewClientWithService(mock)

	if _, err := c.Query(context.Background(), []inference.Evidence{{}}); err == nil {
		t.Fatal("expected error for response without results")
	}
}

// #endregion query-tests

// #region intervention-tests
func TestDoIntervention(t *testing.T) {
	mock := &mockInferenceService{}
	c := NewClientWithService(mock)

	if err := c.DoIntervention(context.Background(), "ndvi_w20", 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fields := mock.doReq.GetFields()
	if fields["variable"].GetStringValue() != "ndvi_w20" {
		t.Errorf("expected variable ndvi_w20, got %q", fields["variable"].GetStringValue())
	}
	if fields["bucket"].GetNumberValue() != 2 {
		t.Errorf("expected bucket 2, got %v", fields["bucket"].GetNumberValue())
	}
}

func TestDoIntervention_Error(t *testing.T) {
	mock := &mockInferenceService{doErr: errors.New("unknown node")}
	c := NewClientWithService(mock)

	err := c.DoIntervention(context.Background(), "x", 1)
	if !errors.Is(err, mock.doErr) {
		t.Errorf("expected wrapped do error, got: %v", err)
	}
}

func TestResetDo(t *testing.T) {
	mock := &mockInferenceService{}
	c := NewClientWithService(mock)

	if err := c.ResetDo(context.Background(), "ndvi_w20"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := mock.resetReq.GetFields()["variable"].GetStringValue(); got != "ndvi_w20" {
		t.Errorf("expected variable ndvi_w20, got %q", got)
	}

	mock.resetErr = errors.New("reset failed")
	if err := c.ResetDo(context.Background(), "ndvi_w20"); !errors.Is(err, mock.resetErr) {
		t.Errorf("expected wrapped reset error, got: %v", err)
	}
}

// #endregion intervention-tests
