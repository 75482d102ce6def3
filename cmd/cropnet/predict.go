package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/cropnet/internal/codec"
	"github.com/danielpatrickdp/cropnet/internal/engine"
	"github.com/danielpatrickdp/cropnet/internal/inference"
	"github.com/danielpatrickdp/cropnet/internal/logging"
)

// #region query
func newQueryCmd() *cobra.Command {
	var (
		target      string
		given       []string
		requestPath string
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query target marginals under one or more observation sets",
		Long: `Query target marginals under one or more observation sets.

Each --given flag is one observation set of comma-separated name=bucket
pairs, e.g. --given tmean_w12=1,rain_w14=0. Alternatively pass a full
request with --request.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := loadRequest(requestPath)
			if err != nil {
				return err
			}
			if requestPath == "" {
				req.Method = inference.MethodQuery
				req.Target = targetOr(target)
				for _, set := range given {
					ev, err := parseEvidence(splitList(set))
					if err != nil {
						return err
					}
					req.Observations = append(req.Observations, ev)
				}
				if len(req.Observations) == 0 {
					req.Observations = []inference.Evidence{{}}
				}
			}
			return predict(cmd, req)
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "target variable (default from config)")
	cmd.Flags().StringArrayVar(&given, "given", nil, "observation set as name=bucket,... (repeatable)")
	cmd.Flags().StringVar(&requestPath, "request", "", "read the request from a JSON file")
	return cmd
}

// #endregion query

// #region do
func newDoCmd() *cobra.Command {
	var (
		target    string
		given     []string
		intervene []string
	)

	cmd := &cobra.Command{
		Use:   "do",
		Short: "Compare target marginals before and after do-interventions",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := parseEvidence(given)
			if err != nil {
				return err
			}
			ivs, err := parseBuckets(intervene)
			if err != nil {
				return err
			}
			req := inference.Request{
				Method:            inference.MethodDoCalculus,
				Target:            targetOr(target),
				InterventionQuery: query,
			}
			for _, b := range ivs {
				req.Interventions = append(req.Interventions, inference.Intervention{Variable: b.Variable, Bucket: b.Index})
			}
			return predict(cmd, req)
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "target variable (default from config)")
	cmd.Flags().StringSliceVar(&given, "given", nil, "evidence as name=bucket (repeatable or comma-separated)")
	cmd.Flags().StringSliceVar(&intervene, "intervene", nil, "intervention as name=bucket (repeatable)")
	return cmd
}

// #endregion do

// #region predict
type predictOutput struct {
	RequestID string              `json:"request_id"`
	Result    inference.Formatted `json:"result"`
	Ranges    []codec.Range       `json:"ranges,omitempty"`
	Raw       *inference.Response `json:"raw,omitempty"`
}

// predict runs req against the engine, decodes the winning buckets with the
// active threshold table when one exists, and records the call.
func predict(cmd *cobra.Command, req inference.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}

	client, err := engine.NewClient(cfg.EngineAddr,
		engine.WithWorkers(cfg.Workers),
		engine.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer client.Close()

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	requestID := uuid.New().String()
	entry := logging.InferenceEntry{
		RequestID: requestID,
		Method:    string(req.Method),
		Target:    req.Target,
	}
	if b, err := json.Marshal(req); err == nil {
		entry.RequestJSON = string(b)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.QueryTimeout)
	defer cancel()

	h := inference.NewHandler(client, logger.With(zap.String("request_id", requestID)))
	resp, err := h.Predict(ctx, req)
	if err != nil {
		entry.Error = err.Error()
		logInference(s.LogInference, entry)
		return err
	}
	if b, err := json.Marshal(resp); err == nil {
		entry.ResponseJSON = string(b)
	}

	formatted, err := resp.Format()
	if err != nil {
		entry.Error = err.Error()
		logInference(s.LogInference, entry)
		return err
	}
	out := predictOutput{RequestID: requestID, Result: formatted}
	if verbose {
		out.Raw = &resp
	}

	if active, err := s.GetActiveThresholds(); err == nil {
		entry.ThresholdVersion = active.VersionID
		ranges, err := codec.Decode(active.Table, formatted.Buckets)
		if err != nil {
			logger.Warn("decode buckets", zap.Error(err))
		} else {
			out.Ranges = ranges
		}
	}
	if b, err := json.Marshal(out); err == nil {
		entry.DecodedJSON = string(b)
	}
	logInference(s.LogInference, entry)

	return printJSON(cmd.OutOrStdout(), out)
}

func logInference(log func(logging.InferenceEntry) error, entry logging.InferenceEntry) {
	if err := log(entry); err != nil {
		logger.Warn("inference log", zap.Error(err))
	}
}

func loadRequest(path string) (inference.Request, error) {
	var req inference.Request
	if path == "" {
		return req, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return req, err
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("parse request %s: %w", path, err)
	}
	return req, nil
}

func targetOr(target string) string {
	if target != "" {
		return target
	}
	return cfg.Target
}

// #endregion predict
