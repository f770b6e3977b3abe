package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/glucoloop/dosing-controller/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to an evaluation log")
	last := flag.Int("last", 20, "show N most recent evaluations")
	id := flag.String("id", "", "show single evaluation detail")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/evaluations.db [--last N] [--id uuid] [--json]")
		os.Exit(2)
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if *id != "" {
		err = runDetailMode(st, *id, *jsonOut)
	} else {
		err = runListMode(st, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	ID          string   `json:"id"`
	EvaluatedAt string   `json:"evaluated_at"`
	Glucose     *float64 `json:"glucose,omitempty"`
	EventualBG  *float64 `json:"eventual_bg,omitempty"`
	Rate        float64  `json:"rate"`
	Duration    int      `json:"duration_minutes"`
	Bolus       float64  `json:"bolus"`
	Reasons     []string `json:"reasons,omitempty"`
}

func runListMode(st *store.Store, last int, jsonOut bool) error {
	records, err := st.List(last)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stderr, "no evaluations found")
		return nil
	}

	rows := make([]listRow, len(records))
	for i, rec := range records {
		row := listRow{
			ID:          rec.ID,
			EvaluatedAt: rec.EvaluatedAt.Format("2006-01-02T15:04:05Z"),
			Rate:        rec.Recommendation.Rate,
			Duration:    rec.Recommendation.DurationMinutes,
			Bolus:       rec.Recommendation.Bolus,
		}
		if sample, ok := rec.Snapshot.Latest(); ok {
			g := sample.Glucose
			row.Glucose = &g
		}
		if v, ok := rec.Recommendation.EventualBG.Get(); ok {
			row.EventualBG = &v
		}
		for _, d := range rec.Recommendation.Decisions {
			row.Reasons = append(row.Reasons, string(d.Code))
		}
		rows[i] = row
	}

	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-10s  %-20s  %7s  %8s  %6s  %5s  %6s  %s\n",
		"ID", "Time", "Glucose", "Eventual", "Rate", "Min", "Bolus", "Reasons")
	fmt.Printf("%-10s  %-20s  %7s  %8s  %6s  %5s  %6s  %s\n",
		"----------", "--------------------", "-------", "--------", "------", "-----", "------", "-------")
	for _, r := range rows {
		fmt.Printf("%-10s  %-20s  %7s  %8s  %6.2f  %5d  %6.3f  %s\n",
			shortID(r.ID), r.EvaluatedAt, fmtOpt(r.Glucose), fmtOpt(r.EventualBG),
			r.Rate, r.Duration, r.Bolus, joinReasons(r.Reasons))
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

func runDetailMode(st *store.Store, id string, jsonOut bool) error {
	rec, err := st.Get(id)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(rec)
	}

	fmt.Printf("ID:         %s\n", rec.ID)
	fmt.Printf("Evaluated:  %s\n", rec.EvaluatedAt.Format("2006-01-02T15:04:05Z"))
	fmt.Printf("Logged:     %s\n", rec.CreatedAt.Format("2006-01-02T15:04:05Z"))
	fmt.Printf("Rate:       %.2f U/h for %d min\n", rec.Recommendation.Rate, rec.Recommendation.DurationMinutes)
	fmt.Printf("Bolus:      %.3f U\n", rec.Recommendation.Bolus)
	if v, ok := rec.Recommendation.EventualBG.Get(); ok {
		fmt.Printf("Eventual:   %.2f mmol/L\n", v)
	}
	if v, ok := rec.Recommendation.InsulinReq.Get(); ok {
		fmt.Printf("Insulin Req: %.3f U\n", v)
	}

	if len(rec.Recommendation.Decisions) > 0 {
		fmt.Printf("\nGates fired:\n")
		for _, d := range rec.Recommendation.Decisions {
			fmt.Printf("  %-20s %s\n", d.Code, d.Detail)
		}
	}

	if len(rec.TraceStages) > 0 {
		fmt.Printf("\nTrace:\n")
		for _, stage := range rec.TraceStages {
			fmt.Printf("  [%s]\n", stage.Name)
			for _, v := range stage.Values {
				fmt.Printf("    %-24s %.6f\n", v.Name, v.Value)
			}
			for _, n := range stage.Notes {
				fmt.Printf("    # %s\n", n)
			}
		}
	}
	return nil
}

// #endregion detail-mode

// #region output

func fmtOpt(v *float64) string {
	if v == nil {
		return "—"
	}
	return fmt.Sprintf("%.2f", *v)
}

func joinReasons(reasons []string) string {
	if len(reasons) == 0 {
		return "—"
	}
	out := reasons[0]
	for _, r := range reasons[1:] {
		out += "," + r
	}
	return out
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
