package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"kinfit/internal/evo"
	"kinfit/internal/model"
	"kinfit/internal/tuning"
)

const (
	runIndexFile       = "run_index.json"
	resultFile         = "result.json"
	fitnessHistoryFile = "fitness_history.csv"
	diagnosticsFile    = "diagnostics.json"
	trajectoryFile     = "trajectory.csv"
)

type RunConfig struct {
	RunID          string                 `json:"run_id"`
	Model          model.Kind             `json:"model"`
	DatasetPoints  int                    `json:"dataset_points"`
	Fixed          map[string]float64     `json:"fixed,omitempty"`
	Bounds         map[string]model.Bound `json:"bounds"`
	GA             evo.Config             `json:"ga"`
	RefineMethod   string                 `json:"refine_method,omitempty"`
	RefineAttempts int                    `json:"refine_attempts"`
}

// RunResult is the content of result.json.
type RunResult struct {
	Config       RunConfig          `json:"config"`
	Best         map[string]float64 `json:"best"`
	BestVector   []float64          `json:"best_vector"`
	BestFitness  float64            `json:"best_fitness"`
	GAFitness    float64            `json:"ga_fitness"`
	StopReason   evo.StopReason     `json:"stop_reason"`
	Generations  int                `json:"generations"`
	Evaluations  int                `json:"evaluations"`
	Refinement   *tuning.TuneReport `json:"refinement,omitempty"`
	CreatedAtUTC string             `json:"created_at_utc,omitempty"`
}

type RunArtifacts struct {
	Result                RunResult
	BestByGeneration      []float64
	GenerationDiagnostics []evo.GenerationDiagnostics
	Trajectory            model.Trajectory
}

type RunIndexEntry struct {
	RunID          string     `json:"run_id"`
	Model          model.Kind `json:"model"`
	PopulationSize int        `json:"population_size"`
	Generations    int        `json:"generations"`
	Seed           int64      `json:"seed"`
	BestFitness    float64    `json:"best_fitness"`
	StopReason     string     `json:"stop_reason"`
	CreatedAtUTC   string     `json:"created_at_utc"`
}

// WriteRunArtifacts writes one run under baseDir/<run id> and returns the
// run directory.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	runID := artifacts.Result.Config.RunID
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, resultFile), artifacts.Result); err != nil {
		return "", err
	}
	if err := writeFitnessHistory(filepath.Join(runDir, fitnessHistoryFile), artifacts.BestByGeneration); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, diagnosticsFile), artifacts.GenerationDiagnostics); err != nil {
		return "", err
	}
	if artifacts.Trajectory.Len() > 0 {
		err := writeFile(filepath.Join(runDir, trajectoryFile), func(w io.Writer) error {
			return WriteTrajectoryCSV(w, artifacts.Trajectory)
		})
		if err != nil {
			return "", err
		}
	}

	return runDir, nil
}

func ReadRunResult(baseDir, runID string) (RunResult, bool, error) {
	path := filepath.Join(baseDir, runID, resultFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunResult{}, false, nil
		}
		return RunResult{}, false, err
	}

	var result RunResult
	if err := json.Unmarshal(data, &result); err != nil {
		return RunResult{}, false, err
	}
	return result, true, nil
}

// WriteTrajectoryCSV writes one row per time point: t followed by each state.
func WriteTrajectoryCSV(w io.Writer, traj model.Trajectory) error {
	writer := csv.NewWriter(w)
	header := append([]string{"t"}, model.StateNames...)
	if err := writer.Write(header[:1+len(traj.States)]); err != nil {
		return fmt.Errorf("write trajectory header: %w", err)
	}
	row := make([]string, 1+len(traj.States))
	for i, t := range traj.Time {
		row[0] = formatFloat(t)
		for s, series := range traj.States {
			row[s+1] = formatFloat(series[i])
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write trajectory row %d: %w", i+1, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeFitnessHistory(path string, bestByGeneration []float64) error {
	return writeFile(path, func(w io.Writer) error {
		writer := csv.NewWriter(w)
		if err := writer.Write([]string{"generation", "best_fitness"}); err != nil {
			return err
		}
		for i, best := range bestByGeneration {
			if err := writer.Write([]string{
				strconv.Itoa(i),
				formatFloat(best),
			}); err != nil {
				return err
			}
		}
		writer.Flush()
		return writer.Error()
	})
}

// writeFile creates path, hands it to write and reports the close error when
// write itself succeeded.
func writeFile(path string, write func(io.Writer) error) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", filepath.Base(path), cerr)
		}
	}()
	return write(file)
}

func ReadFitnessHistory(baseDir, runID string) ([]float64, bool, error) {
	path := filepath.Join(baseDir, runID, fitnessHistoryFile)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 2 {
		return nil, false, fmt.Errorf("fitness history header must have at least 2 columns")
	}

	series := make([]float64, 0, 64)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) < 2 {
			return nil, false, fmt.Errorf("fitness history row must have at least 2 columns")
		}
		value, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, false, err
		}
		series = append(series, value)
	}
	return series, true, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns entries newest first; equal timestamps keep the later
// append first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
