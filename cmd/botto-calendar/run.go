package main

import (
	"fmt"

	"github.com/cufee/botto-calendar/bot"
	"github.com/cufee/botto-calendar/config"
	"github.com/cufee/botto-calendar/database"
	"github.com/cufee/botto-calendar/logging"
	"github.com/spf13/cobra"
)

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect every stored bot and keep the boards updated",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				if cfg == nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}
			log := logging.New(cfg.Log)

			db, err := database.Open(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			m := bot.NewManager(db, cfg, log)
			if err := m.Start(cmd.Context()); err != nil {
				return err
			}
			log.Info().Strs("bots", m.Running()).Str("database", cfg.Database).Msg("started")

			<-cmd.Context().Done()
			log.Info().Msg("shutting down")
			m.Stop()
			return nil
		},
	}
}
