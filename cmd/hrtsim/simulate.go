package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hrtlevels/hrtlevels/internal/api/models"
	"github.com/hrtlevels/hrtlevels/internal/doseio"
	"github.com/hrtlevels/hrtlevels/internal/dosing"
	"github.com/hrtlevels/hrtlevels/internal/featureflags"
	"github.com/hrtlevels/hrtlevels/internal/levels"
	"github.com/hrtlevels/hrtlevels/internal/pk"
)

// Output formats of the simulate command.
const (
	outputCSV  = "csv"
	outputJSON = "json"
)

// simFlags gates routes for a local run.
type simFlags struct {
	gel        bool
	maxSamples int
}

func (f simFlags) RouteEnabled(_ context.Context, r pk.Route) bool {
	return r != pk.Gel || f.gel
}

func (f simFlags) MaxSimulationSamples(context.Context) int { return f.maxSamples }

func (simFlags) SnapshotsEnabled(context.Context) bool { return false }

func (a *app) simulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate the concentration curve of a CSV or JSON dose file",
		Example: `  hrtsim simulate --doses doses.csv --weight 62.5
  hrtsim simulate --doses - --input-format json --from 2026-01-01T00:00:00Z --step 30 --format json`,
		Args: cobra.NoArgs,
		RunE: a.runSimulate,
	}

	f := cmd.Flags()
	f.String("doses", "", `dose file, or "-" for stdin`)
	f.String("input-format", "", "dose file format (csv|json), detected from the extension when empty")
	f.String("tz", "UTC", "IANA zone for CSV times without an offset")
	f.Float64("weight", 0, "body weight in kg")
	f.String("from", "", "window start (RFC3339)")
	f.String("to", "", "window end (RFC3339)")
	f.String("now", "", "reference time for the current level (RFC3339), defaults to the clock")
	f.Int("step", 0, "sample step in minutes, chosen from the window when zero")
	f.String("format", outputCSV, "output format (csv|json)")
	f.Bool("enable-gel", false, "accept gel doses, which contribute nothing to the curve")
	f.Int("max-samples", featureflags.DefaultMaxSimulationSamples, "maximum number of samples")
	return cmd
}

func (a *app) runSimulate(cmd *cobra.Command, _ []string) error {
	format := strings.ToLower(a.v.GetString("format"))
	if format != outputCSV && format != outputJSON {
		return fmt.Errorf("--format must be %s or %s, got %q", outputCSV, outputJSON, format)
	}

	req, err := a.simulationRequest(cmd)
	if err != nil {
		return err
	}

	svc := levels.NewService(levels.ServiceConfig{
		Flags: simFlags{
			gel:        a.v.GetBool("enable-gel"),
			maxSamples: a.v.GetInt("max-samples"),
		},
		Logger: a.logger(cmd.ErrOrStderr()),
	})
	series, err := svc.Simulate(cmd.Context(), req)
	if err != nil {
		return describe(err)
	}

	if format == outputJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(series)
	}
	return writeSeriesCSV(cmd.OutOrStdout(), series)
}

func (a *app) simulationRequest(cmd *cobra.Command) (*models.SimulationRequest, error) {
	doses, err := a.readDoses(cmd.InOrStdin())
	if err != nil {
		return nil, err
	}

	req := &models.SimulationRequest{
		WeightKG: a.v.GetFloat64("weight"),
		Doses:    doses,
	}
	for _, p := range []struct {
		flag string
		dst  **models.Timestamp
	}{
		{"from", &req.From},
		{"to", &req.To},
		{"now", &req.Now},
	} {
		raw := a.v.GetString(p.flag)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", p.flag, err)
		}
		*p.dst = models.TimestampPtr(t)
	}
	if step := a.v.GetInt("step"); step != 0 {
		req.StepMinutes = &step
	}
	return req, nil
}

func (a *app) readDoses(stdin io.Reader) ([]models.DoseInput, error) {
	path := a.v.GetString("doses")
	if path == "" {
		return nil, errors.New("--doses is required")
	}

	var format doseio.Format
	if f := a.v.GetString("input-format"); f != "" {
		format = doseio.Format(strings.ToLower(f))
	} else {
		detected, err := doseio.DetectFormat("", path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w, set --input-format", path, err)
		}
		format = detected
	}

	loc, err := time.LoadLocation(a.v.GetString("tz"))
	if err != nil {
		return nil, fmt.Errorf("--tz: %w", err)
	}

	r := stdin
	if path != "-" {
		file, err := os.Open(path) //nolint:gosec // path is supplied by the operator
		if err != nil {
			return nil, err
		}
		defer file.Close()
		r = file
	}

	doses, err := doseio.Parse(r, format, doseio.Options{Location: loc})
	if err != nil {
		return nil, describe(err)
	}
	return doses, nil
}

func writeSeriesCSV(w io.Writer, series *models.LevelSeries) error {
	ref := series.Reference.Time()
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "hours", "pg_per_ml"}); err != nil {
		return err
	}
	for i, h := range series.Hours {
		at := levels.TimeAt(ref, h)
		row := []string{
			at.UTC().Format(time.RFC3339),
			strconv.FormatFloat(h, 'f', 4, 64),
			strconv.FormatFloat(series.Concentrations[i], 'f', 3, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// describe expands validation errors into one line per field.
func describe(err error) error {
	var fieldErrs []models.FieldError
	var validationErr *dosing.ValidationError
	var parseErr *doseio.ParseError
	switch {
	case errors.As(err, &validationErr):
		fieldErrs = validationErr.Errors
	case errors.As(err, &parseErr):
		fieldErrs = parseErr.Errors
	default:
		return err
	}
	if len(fieldErrs) == 0 {
		return err
	}

	var b strings.Builder
	b.WriteString(err.Error())
	for _, fe := range fieldErrs {
		fmt.Fprintf(&b, "\n  %s: %s", fe.Field, fe.Message)
	}
	return errors.New(b.String())
}
