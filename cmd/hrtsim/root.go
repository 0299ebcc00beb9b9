package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// envPrefix namespaces environment overrides, e.g. HRTSIM_WEIGHT.
const envPrefix = "HRTSIM"

// app carries state shared by the subcommands of one invocation.
type app struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "hrtsim",
		Short:         "Simulate estradiol levels from a dose log",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig(cmd)
		},
	}
	root.PersistentFlags().String("config", "", "YAML file with default flag values")
	root.PersistentFlags().BoolP("verbose", "v", false, "log simulation details to stderr")

	root.AddCommand(
		a.simulateCmd(),
		a.convertCmd(),
		a.thetaCmd(),
		a.tiersCmd(),
		a.policyCmd(),
	)
	return root
}

// loadConfig layers flag values over HRTSIM_* variables over the config
// file. Keys use the flag names.
func (a *app) loadConfig(cmd *cobra.Command) error {
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	if path := a.v.GetString("config"); path != "" {
		a.v.SetConfigFile(path)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	return nil
}

func (a *app) logger(w io.Writer) zerolog.Logger {
	level := zerolog.WarnLevel
	if a.v.GetBool("verbose") {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true}).
		Level(level).
		With().
		Timestamp().
		Logger()
}
