package main

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hrtlevels/hrtlevels/internal/doseio"
	"github.com/hrtlevels/hrtlevels/internal/pk"
)

func (a *app) convertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert between an ester mass and its estradiol equivalent",
		Example: `  hrtsim convert --compound EV --raw 5
  hrtsim convert --compound valerate --e2 3.8`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			compound, err := pk.ParseCompound(doseio.NormalizeCompound(a.v.GetString("compound")))
			if err != nil {
				return err
			}

			hasRaw, hasE2 := cmd.Flags().Changed("raw"), cmd.Flags().Changed("e2")
			if hasRaw == hasE2 {
				return errors.New("exactly one of --raw or --e2 is required")
			}

			out := cmd.OutOrStdout()
			if hasRaw {
				raw := a.v.GetFloat64("raw")
				e2, err := pk.ToE2Equivalent(compound, raw)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(out, "%s mg %s = %s mg %s\n", formatNum(raw), compound, formatNum(e2), pk.Estradiol)
				return err
			}

			e2 := a.v.GetFloat64("e2")
			raw, err := pk.FromE2Equivalent(compound, e2)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "%s mg %s = %s mg %s\n", formatNum(e2), pk.Estradiol, formatNum(raw), compound)
			return err
		},
	}
	cmd.Flags().String("compound", "", "compound code or name, e.g. EV")
	cmd.Flags().Float64("raw", 0, "administered mass in mg")
	cmd.Flags().Float64("e2", 0, "estradiol-equivalent mass in mg")
	return cmd
}

func (a *app) thetaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "theta",
		Short: "Convert between a sublingual hold time and its absorption split",
		Example: `  hrtsim theta --hold 12
  hrtsim theta --theta 0.1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hasHold, hasTheta := cmd.Flags().Changed("hold"), cmd.Flags().Changed("theta")
			if hasHold == hasTheta {
				return errors.New("exactly one of --hold or --theta is required")
			}

			var hold, theta float64
			var clamped bool
			if hasHold {
				in := a.v.GetFloat64("hold")
				theta = pk.ThetaFromHold(in)
				hold = pk.HoldFromTheta(theta)
				clamped = in < pk.MinHoldMinutes || in > pk.MaxHoldMinutes
			} else {
				in := a.v.GetFloat64("theta")
				hold = pk.HoldFromTheta(in)
				theta = pk.ThetaFromHold(hold)
				clamped = in < pk.ThetaMin() || in > pk.ThetaMax()
			}

			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "hold %s min = theta %s\n", formatNum(hold), strconv.FormatFloat(theta, 'f', 4, 64)); err != nil {
				return err
			}
			if clamped {
				_, err := fmt.Fprintf(out, "input clamped to hold [%g, %g] min, theta [%.4f, %.4f]\n",
					pk.MinHoldMinutes, pk.MaxHoldMinutes, pk.ThetaMin(), pk.ThetaMax())
				return err
			}
			return nil
		},
	}
	cmd.Flags().Float64("hold", 0, "hold time in minutes")
	cmd.Flags().Float64("theta", 0, "fraction absorbed via the sublingual path")
	return cmd
}

func (a *app) tiersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tiers",
		Short: "List the sublingual hold-time presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIER\tHOLD (MIN)\tTHETA\tDEFAULT")
			for _, t := range pk.SublingualTiers() {
				def := ""
				if t.Key == pk.DefaultSublingualTier {
					def = "yes"
				}
				fmt.Fprintf(tw, "%s\t%g\t%.4f\t%s\n", t.Key, t.HoldMinutes, t.Theta(), def)
			}
			return tw.Flush()
		},
	}
}

func (a *app) policyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Show which dose fields apply to each route and compound",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var only pk.Route
			if name := a.v.GetString("route"); name != "" {
				r, err := pk.ParseRoute(doseio.NormalizeRoute(name))
				if err != nil {
					return err
				}
				only = r
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ROUTE\tCOMPOUND\tRAW\tE2\tPATCH\tINERT\tBETA\tSUPPORTED")
			for _, p := range pk.FieldPolicies() {
				if only != "" && p.Route != only {
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					p.Route, p.Compound, p.Raw, p.E2,
					yesNo(p.PatchMode), yesNo(p.Inert), yesNo(p.Beta), yesNo(p.Supported))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("route", "", "only show this route")
	return cmd
}

// formatNum rounds to four decimals and drops trailing zeros.
func formatNum(v float64) string {
	return strconv.FormatFloat(math.Round(v*1e4)/1e4, 'f', -1, 64)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
