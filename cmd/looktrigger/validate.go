package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/teslashibe/go-looktrigger/internal/config"
	"github.com/teslashibe/go-looktrigger/pkg/engine"
	"github.com/teslashibe/go-looktrigger/pkg/scene"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and scene without serving",
		RunE:  runValidate,
	}
}

func runValidate(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(cmd)
	if err != nil {
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) {
			for _, e := range verrs {
				fmt.Fprintf(cmd.ErrOrStderr(), "  ✗ %s\n", e.Error())
			}
			return fmt.Errorf("%d validation error(s)", len(verrs))
		}
		return err
	}

	// Dry run against a scratch engine
	eng := engine.New(cfg.EngineOptions(), scene.New(), nil)
	ids, err := cfg.Scene.Apply(eng)
	if err != nil {
		return fmt.Errorf("build scene: %w", err)
	}

	fmt.Fprintf(out, "✓ configuration valid: %d target(s), %d volume(s), %d monitor(s)\n",
		len(cfg.Scene.Targets), len(cfg.Scene.Volumes), len(ids))
	return nil
}
