// Package storage keeps solved and integrated runs on disk.
//
// Every run lives in its own directory under the store root:
//
//	<root>/<model>_<id>/metadata.json
//	<root>/<model>_<id>/states.csv
//
// An optional sqlite Index catalogues the metadata for queries.
package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/tracersim/internal/dynamo"
	"github.com/san-kum/tracersim/internal/params"
	"github.com/san-kum/tracersim/internal/units"
)

// Run kinds.
const (
	KindSteady    = "steady"
	KindTransient = "transient"
	KindFit       = "fit"
)

type Store struct {
	baseDir string
	index   *Index
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// Dir returns the store root.
func (s *Store) Dir() string { return s.baseDir }

// AttachIndex records every saved run in ix.
func (s *Store) AttachIndex(ix *Index) { s.index = ix }

// ParamValue is one parameter of a run, shown in its display unit next to
// the stored SI value.
type ParamValue struct {
	Name        string  `json:"name"`
	Value       float64 `json:"value"`
	Unit        string  `json:"unit"`
	Storage     float64 `json:"storage_value"`
	StorageUnit string  `json:"storage_unit"`
	Optimizable bool    `json:"optimizable"`
}

type RunMetadata struct {
	ID          string             `json:"id"`
	Kind        string             `json:"kind"`
	Model       string             `json:"model"`
	Circulation string             `json:"circulation"`
	Timestamp   time.Time          `json:"timestamp"`
	Integrator  string             `json:"integrator,omitempty"`
	Dt          float64            `json:"dt,omitempty"`
	Duration    float64            `json:"duration,omitempty"`
	Tracers     []string           `json:"tracers"`
	Boxes       int                `json:"boxes"`
	Parameters  []ParamValue       `json:"parameters"`
	Metrics     map[string]float64 `json:"metrics"`
}

// Run describes what produced a result.
type Run struct {
	Kind        string
	Model       string
	Circulation string
	Integrator  string
	Dt          float64
	Duration    float64
	Tracers     []string
	Boxes       int
	Params      *params.Params[float64]
}

// ParamValues renders p for storage.
func ParamValues(p *params.Params[float64]) []ParamValue {
	if p == nil {
		return nil
	}
	recs := p.Records()
	out := make([]ParamValue, len(recs))
	for i, r := range recs {
		out[i] = ParamValue{
			Name:        r.Name,
			Value:       units.ToDisplay(r.Value, r.DisplayUnit),
			Unit:        r.DisplayUnit.String(),
			Storage:     r.Value,
			StorageUnit: r.StorageUnit.String(),
			Optimizable: r.Optimizable,
		}
	}
	return out
}

// Save writes a run and returns its ID.
func (s *Store) Save(ctx context.Context, run Run, result *dynamo.Result) (string, error) {
	runID := fmt.Sprintf("%s_%s", run.Model, uuid.NewString()[:8])
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:          runID,
		Kind:        run.Kind,
		Model:       run.Model,
		Circulation: run.Circulation,
		Timestamp:   time.Now().UTC(),
		Integrator:  run.Integrator,
		Dt:          run.Dt,
		Duration:    run.Duration,
		Tracers:     run.Tracers,
		Boxes:       run.Boxes,
		Parameters:  ParamValues(run.Params),
		Metrics:     result.Metrics,
	}

	if err := writeJSON(filepath.Join(runDir, "metadata.json"), meta); err != nil {
		return "", err
	}
	if err := writeStates(filepath.Join(runDir, "states.csv"), run, result); err != nil {
		return "", err
	}

	if s.index != nil {
		if err := s.index.Record(ctx, meta); err != nil {
			return runID, fmt.Errorf("index run %s: %w", runID, err)
		}
	}
	return runID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeStates(path string, run Run, result *dynamo.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if len(result.States) > 0 {
		if err := w.Write(header(run, len(result.States[0]))); err != nil {
			return err
		}
	}
	for i, x := range result.States {
		row := make([]string, 0, len(x)+1)
		row = append(row, strconv.FormatFloat(result.Times[i], 'g', -1, 64))
		for _, v := range x {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// header names state columns "<tracer>[<box>]" when the layout is known
// and "x<i>" otherwise.
func header(run Run, n int) []string {
	h := make([]string, 0, n+1)
	h = append(h, "time")
	if nt := len(run.Tracers); nt > 0 && run.Boxes > 0 && nt*run.Boxes == n {
		for _, tr := range run.Tracers {
			for b := 0; b < run.Boxes; b++ {
				h = append(h, fmt.Sprintf("%s[%d]", tr, b))
			}
		}
		return h
	}
	for i := 0; i < n; i++ {
		h = append(h, fmt.Sprintf("x%d", i))
	}
	return h
}

// List returns the metadata of every run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	return &meta, nil
}

// LoadStates reads the saved states and their times.
func (s *Store) LoadStates(runID string) ([]dynamo.State, []float64, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "states.csv"))
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) < 2 {
		return []dynamo.State{}, []float64{}, nil
	}

	times := make([]float64, 0, len(records)-1)
	states := make([]dynamo.State, 0, len(records)-1)
	for i, record := range records[1:] {
		if len(record) == 0 {
			continue
		}
		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("run %s: row %d: %w", runID, i+1, err)
		}
		x := make(dynamo.State, len(record)-1)
		for j, field := range record[1:] {
			if x[j], err = strconv.ParseFloat(field, 64); err != nil {
				return nil, nil, fmt.Errorf("run %s: row %d: %w", runID, i+1, err)
			}
		}
		times = append(times, t)
		states = append(states, x)
	}
	return states, times, nil
}

// ExportData is the JSON form of a stored run.
type ExportData struct {
	RunMetadata
	Steps  int         `json:"steps"`
	Times  []float64   `json:"times"`
	States [][]float64 `json:"states"`
}

// Export writes run runID as indented JSON to w.
func (s *Store) Export(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	states, times, err := s.LoadStates(runID)
	if err != nil {
		return err
	}
	data := ExportData{
		RunMetadata: *meta,
		Steps:       len(times),
		Times:       times,
		States:      make([][]float64, len(states)),
	}
	for i, x := range states {
		data.States[i] = x
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// ExportJSON writes run runID to the file at path.
func (s *Store) ExportJSON(path, runID string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := s.Export(f, runID); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
