package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/teslashibe/go-looktrigger/internal/config"
	"github.com/teslashibe/go-looktrigger/internal/log"
	"github.com/teslashibe/go-looktrigger/pkg/debug"
)

var version = "0.1.0"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "looktrigger",
		Short: "Gaze trigger service",
		Long: `looktrigger watches pawns inside trigger volumes and fires an outcome
once every occupant has kept their aim on a target long enough, or a
timeout when that never happens.`,
		SilenceUsage: true,
	}

	// Global flags
	root.PersistentFlags().StringP("config", "c", "", "config file (default is ./looktrigger.yaml)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().Bool("debug", false, "Enable per-tick diagnostics")
	root.PersistentFlags().Bool("debug-tracking", false, "Enable very verbose per-occupant gaze logs")

	root.AddCommand(newServeCmd(), newValidateCmd(), newVersionCmd())
	return root
}

// loadConfig layers defaults, the config file, LOOKTRIGGER_* env vars and
// command flags, then validates
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	file, _ := cmd.Flags().GetString("config")
	v, err := config.NewViper(file)
	if err != nil {
		return nil, err
	}

	// PORT is honored for container platforms unless --addr is given
	if port := os.Getenv("PORT"); port != "" {
		if f := cmd.Flags().Lookup("addr"); f == nil || !f.Changed {
			v.Set("server.addr", ":"+port)
		}
	}

	bindFlag(v, cmd, "log.level", "log-level")
	bindFlag(v, cmd, "debug.enabled", "debug")
	bindFlag(v, cmd, "debug.tracking", "debug-tracking")
	bindFlag(v, cmd, "server.addr", "addr")

	return config.Load(v)
}

// bindFlag binds a flag to a viper key when the command defines it
func bindFlag(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	if f := cmd.Flags().Lookup(flag); f != nil {
		_ = v.BindPFlag(key, f)
	}
}

// setupLogging applies log and debug settings process-wide
func setupLogging(cfg *config.Config) {
	switch cfg.Log.Format {
	case "json":
		log.SetOutput(os.Stdout, cfg.Log.Level, true)
	case "text":
		log.SetOutput(os.Stdout, cfg.Log.Level, false)
	default:
		log.Init(cfg.Log.Level)
	}

	debug.Enabled = cfg.Debug.Enabled
	debug.Tracking = cfg.Debug.Tracking
}
