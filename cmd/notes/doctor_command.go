package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-notes/internal/config"
	"github.com/heimdex/heimdex-notes/internal/media"
	"github.com/heimdex/heimdex-notes/internal/services"
)

type check struct {
	name   string
	detail string
	err    error
}

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools and service settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			mediaCfg := media.DefaultConfig(ctx.log())
			mediaCfg.FFmpegPath = cfg.Acquire.FFmpegPath
			mediaCfg.YTDLPPath = cfg.Acquire.YTDLPPath
			caps, err := media.NewAcquirer(mediaCfg).Doctor(cmd.Context())
			if err != nil {
				return err
			}

			checks := toolChecks(caps)
			checks = append(checks, settingsChecks(cfg)...)

			rows := make([][]string, 0, len(checks))
			failed := 0
			for _, c := range checks {
				status, detail := "ok", c.detail
				if c.err != nil {
					status, detail = "missing", c.err.Error()
					failed++
				}
				rows = append(rows, []string{c.name, status, detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Check", "Status", "Detail"}, rows, nil))
			if failed > 0 {
				return services.Wrap(services.ErrConfiguration, "doctor", "", fmt.Sprintf("%d of %d checks failed", failed, len(checks)), nil)
			}
			return nil
		},
	}
}

func toolChecks(caps *media.Capabilities) []check {
	checks := make([]check, 0, len(caps.Tools))
	for _, tool := range caps.Tools {
		c := check{name: tool.Name, detail: tool.Path}
		if !tool.Available {
			c.err = errors.New(tool.Error)
		}
		checks = append(checks, c)
	}
	return checks
}

func settingsChecks(cfg *config.Config) []check {
	storageCfg := cfg.StorageConfig()
	detail := storageCfg.Backend
	if detail == "azure" {
		detail += " (" + storageCfg.AuthMode + ")"
	}
	checks := []check{
		{name: "video indexer", detail: cfg.Indexer.Location + "/" + cfg.Indexer.AccountID, err: cfg.IndexerConfig().Validate()},
		{name: "blob storage", detail: detail, err: storageCfg.Validate()},
		{name: "summarizer", detail: cfg.Summarize.Provider, err: cfg.SummarizeConfig().Validate()},
	}
	if cfg.Events.NATSURL != "" {
		checks = append(checks, check{name: "events", detail: cfg.Events.NATSURL})
	}
	return checks
}
