package engine

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/cropnet/internal/inference"
)

// #region encode
func encodeEvidence(obs inference.Evidence) map[string]any {
	m := make(map[string]any, len(obs))
	for k, v := range obs {
		m[k] = v
	}
	return m
}

func encodeQuery(observations []inference.Evidence, workers int) (*structpb.Struct, error) {
	list := make([]any, len(observations))
	for i, obs := range observations {
		list[i] = encodeEvidence(obs)
	}
	return structpb.NewStruct(map[string]any{
		"observations": list,
		"workers":      workers,
	})
}

func encodeResults(results []map[string]inference.Marginals) (*structpb.Struct, error) {
	list := make([]any, len(results))
	for i, nodes := range results {
		n := make(map[string]any, len(nodes))
		for node, marg := range nodes {
			b := make(map[string]any, len(marg))
			for _, mass := range marg {
				b[mass.Bucket] = mass.P
			}
			n[node] = b
		}
		list[i] = n
	}
	return structpb.NewStruct(map[string]any{"results": list})
}

// #endregion encode

// #region decode
func decodeEvidence(s *structpb.Struct) (inference.Evidence, error) {
	obs := inference.Evidence{}
	for k, v := range s.GetFields() {
		b, err := bucketValue(v)
		if err != nil {
			return nil, fmt.Errorf("observation %s: %w", k, err)
		}
		obs[k] = b
	}
	return obs, nil
}

func decodeQuery(s *structpb.Struct) ([]inference.Evidence, error) {
	values := s.GetFields()["observations"].GetListValue().GetValues()
	out := make([]inference.Evidence, len(values))
	for i, v := range values {
		obs, err := decodeEvidence(v.GetStructValue())
		if err != nil {
			return nil, fmt.Errorf("observation set %d: %w", i, err)
		}
		out[i] = obs
	}
	return out, nil
}

// decodeResults unpacks the engine answer. Struct fields carry no order, so
// buckets come back sorted by index.
func decodeResults(s *structpb.Struct) ([]map[string]inference.Marginals, error) {
	resultsField, ok := s.GetFields()["results"]
	if !ok {
		return nil, fmt.Errorf("response has no results field")
	}
	values := resultsField.GetListValue().GetValues()
	out := make([]map[string]inference.Marginals, len(values))
	for i, v := range values {
		nodes := make(map[string]inference.Marginals)
		for node, nv := range v.GetStructValue().GetFields() {
			nodes[node] = decodeMarginals(nv.GetStructValue())
		}
		out[i] = nodes
	}
	return out, nil
}

func decodeMarginals(s *structpb.Struct) inference.Marginals {
	fields := s.GetFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return keys[i] < keys[j]
	})
	out := make(inference.Marginals, len(keys))
	for i, k := range keys {
		out[i] = inference.Mass{Bucket: k, P: fields[k].GetNumberValue()}
	}
	return out
}

func bucketValue(v *structpb.Value) (int, error) {
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("expected number")
	}
	if n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, fmt.Errorf("bucket %g is not an integer", n.NumberValue)
	}
	return int(n.NumberValue), nil
}

// #endregion decode
