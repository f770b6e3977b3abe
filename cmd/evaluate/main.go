package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/glucoloop/dosing-controller/internal/engine"
	"github.com/glucoloop/dosing-controller/internal/logging"
	"github.com/glucoloop/dosing-controller/internal/model"
	"github.com/glucoloop/dosing-controller/internal/profile"
	"github.com/glucoloop/dosing-controller/internal/replay"
	"github.com/glucoloop/dosing-controller/internal/store"
	"github.com/glucoloop/dosing-controller/internal/trace"
)

// #region main

func main() {
	inputPath := flag.String("input", "", "path to snapshot JSON")
	profilePath := flag.String("profile", "", "path to profile YAML (overrides the profile embedded in the input)")
	dbPath := flag.String("db", "", "append the evaluation to this SQLite log (optional)")
	jsonOut := flag.Bool("json", false, "output as JSON instead of text")
	showTrace := flag.Bool("trace", false, "print the full audit trace")
	logLevel := flag.String("log-level", "info", "debug|info|warn|error")
	flag.Parse()

	log := logging.Setup(*logLevel, true)

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: evaluate --input snapshot.json [--profile profile.yaml] [--db log.db] [--json] [--trace]")
		os.Exit(2)
	}

	snap, err := loadSnapshot(*inputPath, *profilePath)
	if err != nil {
		log.Error().Err(err).Msg("load snapshot")
		os.Exit(1)
	}

	result, err := engine.Evaluate(snap)
	if err != nil {
		log.Error().Err(err).Msg("evaluate")
		os.Exit(1)
	}

	if *dbPath != "" {
		st, err := store.Open(*dbPath)
		if err != nil {
			log.Error().Err(err).Msg("open evaluation log")
			os.Exit(1)
		}
		defer st.Close()
		id, err := st.Log(snap, result.Recommendation, result.Trace)
		if err != nil {
			log.Error().Err(err).Msg("log evaluation")
			os.Exit(1)
		}
		log.Info().Str("id", id).Msg("evaluation logged")
	}

	if err := printResult(result, *jsonOut, *showTrace); err != nil {
		log.Error().Err(err).Msg("print result")
		os.Exit(1)
	}
}

// #endregion main

// #region input

// evalInput is the JSON input format: one replay fixture case plus an
// embedded profile. Expected values, if present, are ignored here.
type evalInput struct {
	Profile profile.Profile    `json:"profile"`
	Case    replay.FixtureCase `json:"case"`
}

func loadSnapshot(inputPath, profilePath string) (model.Snapshot, error) {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("read input %s: %w", inputPath, err)
	}
	var in evalInput
	if err := json.Unmarshal(data, &in); err != nil {
		return model.Snapshot{}, fmt.Errorf("parse input %s: %w", inputPath, err)
	}

	prof := in.Profile
	if profilePath != "" {
		loaded, err := profile.Load(profilePath)
		if err != nil {
			return model.Snapshot{}, err
		}
		prof = *loaded
	}

	return in.Case.ToSnapshot(&prof)
}

// #endregion input

// #region output

func printResult(result engine.Result, jsonOut, showTrace bool) error {
	if jsonOut {
		out := struct {
			Recommendation model.Recommendation `json:"recommendation"`
			Trace          []trace.Stage        `json:"trace,omitempty"`
		}{Recommendation: result.Recommendation}
		if showTrace {
			out.Trace = result.Trace.Stages()
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	rec := result.Recommendation
	fmt.Printf("Rate:       %.2f U/h for %d min\n", rec.Rate, rec.DurationMinutes)
	fmt.Printf("Bolus:      %.3f U\n", rec.Bolus)
	if v, ok := rec.EventualBG.Get(); ok {
		fmt.Printf("Eventual:   %.2f mmol/L\n", v)
	}
	if v, ok := rec.InsulinReq.Get(); ok {
		fmt.Printf("Insulin Req: %.3f U\n", v)
	}
	if len(rec.Decisions) > 0 {
		fmt.Printf("\nGates fired:\n")
		for _, d := range rec.Decisions {
			fmt.Printf("  %-20s %s\n", d.Code, d.Detail)
		}
	}

	if showTrace {
		fmt.Printf("\nTrace:\n")
		for _, stage := range result.Trace.Stages() {
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

// #endregion output
