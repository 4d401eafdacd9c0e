package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cufee/botto-calendar/board"
	"github.com/cufee/botto-calendar/calendar"
	"github.com/cufee/botto-calendar/config"
	"github.com/cufee/botto-calendar/database"
	"github.com/cufee/botto-calendar/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newRenderCmd() *cobra.Command {
	var (
		templatePath string
		guildPath    string
		icsSource    string
		at           string
		timezone     string
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a board template against a calendar without connecting",
		Example: "  botto-calendar render --template board.txt --ics events.ics --at 2026-10-14T12:00:00Z\n" +
			"  botto-calendar render --guild guild.yaml --ics https://example.com/cal.ics",
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := time.LoadLocation(timezone)
			if err != nil {
				return fmt.Errorf("timezone: %w", err)
			}
			now := time.Now().In(loc)
			if at != "" {
				if now, err = time.ParseInLocation(time.RFC3339, at, loc); err != nil {
					return fmt.Errorf("--at: %w", err)
				}
			}

			var gc database.GuildConfig
			if guildPath != "" {
				data, err := os.ReadFile(guildPath)
				if err != nil {
					return err
				}
				if err := yaml.Unmarshal(data, &gc); err != nil {
					return fmt.Errorf("parse %s: %w", guildPath, err)
				}
			}
			if templatePath != "" {
				data, err := os.ReadFile(templatePath)
				if err != nil {
					return err
				}
				gc.Template = string(data)
			}
			if gc.Template == "" {
				return errors.New("no template: pass --template or a --guild file with one")
			}

			log := logging.NewWriter(cmd.ErrOrStderr(), config.LogConfig{Level: "warn"})
			body, err := readCalendar(cmd, icsSource, log)
			if err != nil {
				return err
			}
			cal, skipped, err := calendar.Parse(body, loc)
			if err != nil {
				return err
			}
			for _, e := range skipped {
				log.Warn().Err(e).Msg("event skipped")
			}

			roles := make([]board.Role, 0, len(gc.Roles))
			for _, rc := range gc.Roles {
				roles = append(roles, board.Role{
					Name:        rc.Name,
					Emote:       rc.Emote,
					DiscordText: rc.DiscordText,
					Filter:      board.ParseRoleFilter(rc.Filter),
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), board.NewRenderer(log).Render(gc.Template, cal, roles, now))
			return nil
		},
	}

	cmd.Flags().StringVar(&templatePath, "template", "", "Template file, overrides the template of --guild")
	cmd.Flags().StringVar(&guildPath, "guild", "", "YAML guild record providing template and roles")
	cmd.Flags().StringVar(&icsSource, "ics", "", "iCalendar file path or http(s) URL")
	cmd.Flags().StringVar(&at, "at", "", "Render instant, RFC3339 (default now)")
	cmd.Flags().StringVar(&timezone, "timezone", "UTC", "IANA timezone for week/month boundaries and formatting")
	_ = cmd.MarkFlagRequired("ics")
	return cmd
}

func readCalendar(cmd *cobra.Command, source string, log zerolog.Logger) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		f := calendar.NewFetcher(&http.Client{Timeout: 30 * time.Second}, "", log)
		res, err := f.Fetch(cmd.Context(), source, calendar.Validators{})
		if err != nil {
			return nil, err
		}
		return res.Body, nil
	}
	return os.ReadFile(source)
}
