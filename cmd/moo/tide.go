package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mooassistant/moo/internal/app"
	"github.com/mooassistant/moo/internal/config"
	"github.com/mooassistant/moo/internal/logger"
	"github.com/mooassistant/moo/internal/state"
)

func newTideCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tide",
		Short: "Drive the idle-wake scheduler",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "wake",
		Short: "Run a single tide check now",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := state.Resolve()
			if err != nil {
				return err
			}
			cfg, err := config.Load(paths.ConfigPath(), nil)
			if err != nil {
				return err
			}
			logger.Init(cfg.Log.Level, cfg.Log.Format)

			tr, err := provideTransports(logger.L, cfg)
			if err != nil {
				return err
			}
			a, err := app.New(logger.L, paths, cfg, tr.resolve)
			if err != nil {
				return err
			}
			td := a.NewTide()
			if td == nil {
				return fmt.Errorf("tide is disabled or tide.jid is unset")
			}
			td.Wake(cmd.Context())
			return nil
		},
	})
	return cmd
}
