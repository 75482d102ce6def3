package constraints

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"gopkg.in/yaml.v3"
)

// ErrDuplicateVariable is returned when a stage table lists a variable twice.
var ErrDuplicateVariable = errors.New("duplicate variable")

// #region stage-map
// StageMap assigns each variable its temporal stage level. Earlier stages
// are modeled first.
type StageMap map[string]int

// StageRecord is one row of the tabular stage mapping.
type StageRecord struct {
	Variable string `csv:"variable" yaml:"variable" json:"variable"`
	Level    int    `csv:"level" yaml:"level" json:"level"`
}

// FromRecords builds a StageMap, rejecting blank or repeated names.
func FromRecords(records []StageRecord) (StageMap, error) {
	m := make(StageMap, len(records))
	for i, r := range records {
		name := strings.TrimSpace(r.Variable)
		if name == "" {
			return nil, fmt.Errorf("record %d: empty variable name", i+1)
		}
		if _, ok := m[name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateVariable, name)
		}
		m[name] = r.Level
	}
	return m, nil
}

// Records returns the mapping as rows sorted by (level, variable).
func (m StageMap) Records() []StageRecord {
	staged := sortStaged(m)
	out := make([]StageRecord, len(staged))
	for i, s := range staged {
		out[i] = StageRecord{Variable: s.Variable, Level: s.Level}
	}
	return out
}

// Hash returns a stable digest of the mapping. Two mappings hash equal iff
// they assign the same levels to the same names.
func (m StageMap) Hash() string {
	h := sha256.New()
	for _, r := range m.Records() {
		fmt.Fprintf(h, "%s\x00%d\n", r.Variable, r.Level)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// #endregion stage-map

// #region readers
// ReadStageCSV reads `variable,level` records.
func ReadStageCSV(r io.Reader) (StageMap, error) {
	var records []StageRecord
	if err := gocsv.Unmarshal(r, &records); err != nil {
		// gocsv reports an empty body as an error; an empty mapping is valid
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return StageMap{}, nil
		}
		return nil, fmt.Errorf("read stage csv: %w", err)
	}
	return FromRecords(records)
}

// ReadStageYAML accepts either a `name: level` map or a list of records.
// JSON input parses as well, being a subset of YAML.
func ReadStageYAML(r io.Reader) (StageMap, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read stage yaml: %w", err)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parse stage yaml: %w", err)
	}
	if len(node.Content) == 0 {
		return StageMap{}, nil
	}

	switch node.Content[0].Kind {
	case yaml.SequenceNode:
		var records []StageRecord
		if err := node.Content[0].Decode(&records); err != nil {
			return nil, fmt.Errorf("decode stage records: %w", err)
		}
		return FromRecords(records)
	case yaml.MappingNode:
		m := StageMap{}
		if err := node.Content[0].Decode(&m); err != nil {
			return nil, fmt.Errorf("decode stage map: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("stage yaml: expected map or list")
	}
}

// #endregion readers
