// Package recorder persists sampled telemetry to per-plant, per-day CSV files.
// Null-boundary rows, which carry a timestamp but no values, frame recording
// sessions and historical gaps.
package recorder

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cepro/plantcontroller/telemetry"
	timeutils "github.com/cepro/plantcontroller/time_utils"
)

var header = []string{
	"timestamp",
	"p_setpoint_kw",
	"p_actual_kw",
	"q_setpoint_kvar",
	"q_actual_kvar",
	"soc_pu",
	"poi_p_kw",
	"poi_q_kvar",
	"poi_v_kv",
}

// Recorder appends telemetry rows to day files under one directory. Rows are
// append-ordered by scheduled timestamp; the sampler is the only writer.
type Recorder struct {
	dir string
}

// New creates the recorder, creating the directory if needed.
func New(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create telemetry dir: %w", err)
	}
	return &Recorder{dir: dir}, nil
}

func (r *Recorder) fileFor(plant telemetry.PlantID, t time.Time) string {
	return filepath.Join(r.dir, fmt.Sprintf("%s_%s.csv", plant, timeutils.DayKey(t)))
}

// WriteSample appends one sampled row for the plant.
func (r *Recorder) WriteSample(plant telemetry.PlantID, sample telemetry.Sample) error {
	return r.appendRow(plant, sample.Time, []string{
		sample.Time.Format(time.RFC3339),
		formatValue(sample.PSetpointKw),
		formatValue(sample.PActualKw),
		formatValue(sample.QSetpointKvar),
		formatValue(sample.QActualKvar),
		formatValue(sample.SocPu),
		formatValue(sample.PoiPKw),
		formatValue(sample.PoiQKvar),
		formatValue(sample.PoiVKv),
	})
}

// WriteBoundary appends a null-boundary row at t: a timestamp with every value
// field empty.
func (r *Recorder) WriteBoundary(plant telemetry.PlantID, t time.Time) error {
	row := make([]string, len(header))
	row[0] = t.Format(time.RFC3339)
	return r.appendRow(plant, t, row)
}

func (r *Recorder) appendRow(plant telemetry.PlantID, t time.Time, row []string) error {
	path := r.fileFor(plant, t)

	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open telemetry file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	w.Flush()

	return w.Error()
}

// LastRowIsBoundary reports whether the most recent persisted row for the plant is a
// null-boundary row. A plant with no history at all counts as bounded: there is
// nothing to separate a new session from.
func (r *Recorder) LastRowIsBoundary(plant telemetry.PlantID) (bool, error) {
	path, ok, err := r.latestFile(plant)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read telemetry file: %w", err)
	}

	lines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	last := lines[len(lines)-1]
	if len(lines) < 2 {
		// header only
		return true, nil
	}

	fields := strings.Split(last, ",")
	for _, field := range fields[1:] {
		if field != "" {
			return false, nil
		}
	}
	return true, nil
}

// latestFile returns the most recent day file for the plant, by the date embedded in
// the name.
func (r *Recorder) latestFile(plant telemetry.PlantID) (string, bool, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return "", false, fmt.Errorf("list telemetry dir: %w", err)
	}

	prefix := fmt.Sprintf("%s_", plant)
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".csv") {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", false, nil
	}

	sort.Strings(names)
	return filepath.Join(r.dir, names[len(names)-1]), true, nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
