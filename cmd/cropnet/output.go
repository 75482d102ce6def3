package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/danielpatrickdp/cropnet/internal/codec"
	"github.com/danielpatrickdp/cropnet/internal/constraints"
	"github.com/danielpatrickdp/cropnet/internal/inference"
)

// #region output
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output

// #region args
// splitPair splits "name=value".
func splitPair(arg string) (string, string, error) {
	name, value, ok := strings.Cut(arg, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", "", fmt.Errorf("expected name=value, got %q", arg)
	}
	return name, strings.TrimSpace(value), nil
}

func parseReadings(args []string) ([]codec.Reading, error) {
	out := make([]codec.Reading, 0, len(args))
	for _, arg := range args {
		name, value, err := splitPair(arg)
		if err != nil {
			return nil, err
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, codec.Reading{Variable: name, Value: v})
	}
	return out, nil
}

func parseBuckets(args []string) ([]codec.Bucket, error) {
	out := make([]codec.Bucket, 0, len(args))
	for _, arg := range args {
		name, value, err := splitPair(arg)
		if err != nil {
			return nil, err
		}
		b, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, codec.Bucket{Variable: name, Index: b})
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseEvidence(args []string) (inference.Evidence, error) {
	buckets, err := parseBuckets(args)
	if err != nil {
		return nil, err
	}
	ev := make(inference.Evidence, len(buckets))
	for _, b := range buckets {
		ev[b.Variable] = b.Index
	}
	return ev, nil
}

// #endregion args

// #region stages
// readStages loads a stage mapping from CSV or YAML, chosen by extension.
func readStages(path string) (constraints.StageMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return constraints.ReadStageYAML(f)
	case ".csv":
		return constraints.ReadStageCSV(f)
	default:
		return nil, fmt.Errorf("%s: stage mapping must be .csv, .yaml or .json", path)
	}
}

// #endregion stages
