package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// #region log-inference
// LogInference writes an entry to the inference_log table.
func LogInference(db *sql.DB, entry InferenceEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.RequestJSON == "" {
		entry.RequestJSON = "{}"
	}

	_, err := db.Exec(
		`INSERT INTO inference_log (request_id, method, target, threshold_version, request_json, response_json, decoded_json, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID,
		entry.Method,
		entry.Target,
		nullIfEmpty(entry.ThresholdVersion),
		entry.RequestJSON,
		nullIfEmpty(entry.ResponseJSON),
		nullIfEmpty(entry.DecodedJSON),
		nullIfEmpty(entry.Error),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log inference: %w", err)
	}
	return nil
}

// #endregion log-inference

// #region list-inferences
// ListInferences returns the most recent log entries, newest first.
func ListInferences(db *sql.DB, limit int) ([]InferenceEntry, error) {
	rows, err := db.Query(
		`SELECT id, request_id, method, target, threshold_version, request_json, response_json, decoded_json, error, created_at
		 FROM inference_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list inferences: %w", err)
	}
	defer rows.Close()

	var out []InferenceEntry
	for rows.Next() {
		var e InferenceEntry
		var version, resp, decoded, errStr sql.NullString
		var createdStr string
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Method, &e.Target, &version, &e.RequestJSON, &resp, &decoded, &errStr, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		e.ThresholdVersion = version.String
		e.ResponseJSON = resp.String
		e.DecodedJSON = decoded.String
		e.Error = errStr.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion list-inferences

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
