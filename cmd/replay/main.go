package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/glucoloop/dosing-controller/internal/engine"
	"github.com/glucoloop/dosing-controller/internal/logging"
	"github.com/glucoloop/dosing-controller/internal/replay"
	"github.com/glucoloop/dosing-controller/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to an evaluation log (DB mode)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	tolerance := flag.Float64("tolerance", 0, "numeric comparison tolerance (0 = exact)")
	workers := flag.Int("workers", 0, "concurrent evaluations (0 = GOMAXPROCS)")
	logLevel := flag.String("log-level", "info", "debug|info|warn|error")
	flag.Parse()

	logging.Setup(*logLevel, true)

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json [--tolerance t] [--workers n]")
		fmt.Fprintln(os.Stderr, "       replay --db path/to/evaluations.db [--tolerance t]")
		os.Exit(2)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath, *tolerance, *workers)
	} else {
		exitCode = runDBMode(*dbPath, *tolerance)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region fixture-mode

func runFixtureMode(path string, tolerance float64, workers int) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}

	cfg := replay.Config{Tolerance: tolerance, Workers: workers}
	results, summary, err := replay.Run(context.Background(), f, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		return 2
	}

	printResults(results)
	fmt.Printf("\nSummary: %d total, %d match, %d diverge", summary.Total, summary.Passed, summary.Failed)
	if summary.Errors > 0 {
		fmt.Printf(" (%d errored)", summary.Errors)
	}
	fmt.Println()

	if summary.Failed > 0 {
		return 1
	}
	return 0
}

func printResults(results []replay.CaseResult) {
	fmt.Printf("%-28s| %8s | %8s | %s\n", "Case", "Rate", "Bolus", "Match")
	fmt.Printf("%-28s+%10s+%10s+%s\n",
		"----------------------------", "----------", "----------", "------")

	for _, r := range results {
		switch {
		case r.Err != nil:
			fmt.Printf("%-28s| %8s | %8s | ERROR: %v\n", r.Name, "—", "—", r.Err)
		case len(r.Mismatches) > 0:
			fmt.Printf("%-28s| %8.2f | %8.3f | DIFF\n", r.Name, r.Recommendation.Rate, r.Recommendation.Bolus)
			for _, m := range r.Mismatches {
				fmt.Printf("%-28s|          |          |   %s\n", "", m)
			}
		default:
			fmt.Printf("%-28s| %8.2f | %8.3f | OK\n", r.Name, r.Recommendation.Rate, r.Recommendation.Bolus)
		}
	}
}

// #endregion fixture-mode

// #region db-mode

// runDBMode re-evaluates every snapshot stored in the evaluation log and
// compares the replayed recommendation against the stored one. Divergence
// means the engine's behavior changed since the row was written.
func runDBMode(dbPath string, tolerance float64) int {
	st, err := store.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer st.Close()

	records, err := st.ListAll()
	if err != nil {
		fmt.Fprintf(os.Stderr, "list evaluations: %v\n", err)
		return 2
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stderr, "no evaluations found")
		return 2
	}

	fmt.Printf("%-12s| %8s | %8s | %8s | %8s | %s\n",
		"ID", "Stored", "Replayed", "Bolus", "Bolus'", "Match")
	fmt.Printf("%-12s+%10s+%10s+%10s+%10s+%s\n",
		"------------", "----------", "----------", "----------", "----------", "------")

	matches := 0
	for _, rec := range records {
		out, err := engine.Evaluate(rec.Snapshot)
		if err != nil {
			fmt.Printf("%-12s| %8.2f | %8s | %8.3f | %8s | ERROR: %v\n",
				shortID(rec.ID), rec.Recommendation.Rate, "—", rec.Recommendation.Bolus, "—", err)
			continue
		}

		replayed := out.Recommendation
		match := within(rec.Recommendation.Rate, replayed.Rate, tolerance) &&
			within(rec.Recommendation.Bolus, replayed.Bolus, tolerance) &&
			rec.Recommendation.DurationMinutes == replayed.DurationMinutes

		status := "DIFF"
		if match {
			status = "OK"
			matches++
		}
		fmt.Printf("%-12s| %8.2f | %8.2f | %8.3f | %8.3f | %s\n",
			shortID(rec.ID), rec.Recommendation.Rate, replayed.Rate,
			rec.Recommendation.Bolus, replayed.Bolus, status)
	}

	diverge := len(records) - matches
	fmt.Printf("\nSummary: %d total, %d match, %d diverge\n", len(records), matches, diverge)

	if diverge > 0 {
		return 1
	}
	return 0
}

func within(want, got, tol float64) bool {
	if tol <= 0 {
		return want == got
	}
	diff := want - got
	if diff < 0 {
		diff = -diff
	}
	return diff <= tol
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion db-mode
