package main

import (
	"fmt"
	"os"

	"github.com/cufee/botto-calendar/config"
	"github.com/cufee/botto-calendar/database"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// seedFile is the YAML layout accepted by the import command.
type seedFile struct {
	Bots   []database.BotIdentity `yaml:"bots"`
	Guilds []database.GuildConfig `yaml:"guilds"`
}

func newImportCmd(configPath *string) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Store bot identities and guild settings from a YAML file",
		Long: "Store bot identities and guild settings from a YAML file.\n" +
			"Existing records with the same ids are replaced.",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var seed seedFile
			if err := yaml.Unmarshal(data, &seed); err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}

			cfg, err := config.Load(*configPath)
			if cfg == nil {
				return err
			}
			db, err := database.Open(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			for _, b := range seed.Bots {
				if b.ID == "" {
					return fmt.Errorf("bot %q has no id", b.Name)
				}
				if err := db.PutBotConfig(b); err != nil {
					return err
				}
			}
			for _, g := range seed.Guilds {
				if g.ID == 0 || g.BotID == "" {
					return fmt.Errorf("guild %q needs id and bot_id", g.Name)
				}
				if g.ChannelName == "" {
					g.ChannelName = config.DefaultChannelName
				}
				if err := db.PutGuildConfig(g); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d bots and %d guilds into %s\n", len(seed.Bots), len(seed.Guilds), cfg.Database)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with bots and guilds")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
