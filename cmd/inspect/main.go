package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/masked-tae/go-validator/internal/history"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to validation_history.db")
	modelName := flag.String("model", "", "filter to one run name")
	last := flag.Int("last", 20, "show N most recent passes")
	runID := flag.String("run", "", "show every pass of one run")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/validation_history.db [--model name] [--last N] [--run id] [--json]")
		os.Exit(2)
	}

	store, err := history.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if *runID != "" {
		err = runDetailMode(store, *runID, *jsonOut)
	} else {
		err = runListMode(store, *modelName, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type epochRow struct {
	RunID        string   `json:"run_id"`
	ModelName    string   `json:"model_name"`
	ModelType    string   `json:"model_type"`
	Epoch        int      `json:"epoch"`
	NumEpochs    int      `json:"num_epochs"`
	MeanLoss     *float64 `json:"mean_loss"`
	BestLoss     *float64 `json:"best_loss"`
	Improved     bool     `json:"improved"`
	ArtifactPath string   `json:"artifact_path,omitempty"`
	CreatedAt    string   `json:"created_at"`
}

func toRow(r history.EpochRecord) epochRow {
	return epochRow{
		RunID:        r.RunID,
		ModelName:    r.ModelName,
		ModelType:    r.ModelType,
		Epoch:        r.Epoch,
		NumEpochs:    r.NumEpochs,
		MeanLoss:     r.MeanLoss,
		BestLoss:     r.BestLoss,
		Improved:     r.Improved,
		ArtifactPath: r.ArtifactPath,
		CreatedAt:    r.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func runListMode(store *history.Store, modelName string, last int, jsonOut bool) error {
	recs, err := store.ListEpochs(modelName, last)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(os.Stderr, "no passes found")
		return nil
	}

	// Store returns DESC, reverse for chronological
	rows := make([]epochRow, len(recs))
	for i, r := range recs {
		rows[len(recs)-1-i] = toRow(r)
	}

	if jsonOut {
		return printJSON(rows)
	}
	printTable(rows, true)
	return nil
}

// #endregion list-mode

// #region detail-mode

type runDetail struct {
	RunID     string     `json:"run_id"`
	ModelName string     `json:"model_name"`
	ModelType string     `json:"model_type"`
	CreatedAt string     `json:"created_at"`
	Epochs    []epochRow `json:"epochs"`
}

func runDetailMode(store *history.Store, runID string, jsonOut bool) error {
	run, err := store.GetRun(runID)
	if err != nil {
		return err
	}
	recs, err := store.RunEpochs(runID)
	if err != nil {
		return err
	}

	out := runDetail{
		RunID:     run.RunID,
		ModelName: run.ModelName,
		ModelType: run.ModelType,
		CreatedAt: run.CreatedAt.Format("2006-01-02T15:04:05Z"),
		Epochs:    make([]epochRow, len(recs)),
	}
	for i, r := range recs {
		out.Epochs[i] = toRow(r)
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Run:     %s\n", out.RunID)
	fmt.Printf("Model:   %s\n", out.ModelName)
	fmt.Printf("Type:    %s\n", out.ModelType)
	fmt.Printf("Created: %s\n", out.CreatedAt)
	if len(out.Epochs) == 0 {
		fmt.Println("\nno passes recorded")
		return nil
	}
	fmt.Println()
	printTable(out.Epochs, false)
	return nil
}

// #endregion detail-mode

// #region output

func printTable(rows []epochRow, withModel bool) {
	if withModel {
		fmt.Printf("%-8s  %-24s  %-18s  %7s  %10s  %10s  %-5s  %s\n",
			"Run", "Model", "Type", "Epoch", "Val Loss", "Best", "Saved", "Time")
	} else {
		fmt.Printf("%7s  %10s  %10s  %-5s  %s\n", "Epoch", "Val Loss", "Best", "Saved", "Time")
	}

	for _, r := range rows {
		epoch := fmt.Sprintf("%d/%d", r.Epoch+1, r.NumEpochs)
		saved := ""
		if r.Improved {
			saved = "*"
		}
		if withModel {
			fmt.Printf("%-8s  %-24s  %-18s  %7s  %10s  %10s  %-5s  %s\n",
				shortID(r.RunID), r.ModelName, r.ModelType, epoch, fmtLoss(r.MeanLoss), fmtLoss(r.BestLoss), saved, r.CreatedAt)
		} else {
			fmt.Printf("%7s  %10s  %10s  %-5s  %s\n",
				epoch, fmtLoss(r.MeanLoss), fmtLoss(r.BestLoss), saved, r.CreatedAt)
		}
	}
}

func fmtLoss(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *v)
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
