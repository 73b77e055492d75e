package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-notes/internal/api"
	"github.com/heimdex/heimdex-notes/internal/config"
	"github.com/heimdex/heimdex-notes/internal/jobs"
	"github.com/heimdex/heimdex-notes/internal/media"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string
	var noRunner bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and process queued jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			startTime := time.Now()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.log()

			s, err := ctx.openSession(stageNeeds{Ledger: true})
			if err != nil {
				return err
			}
			defer s.Close()

			svc := jobs.NewService(s.Repo, logger)
			var token string
			if cfg.API.Token != "" {
				if err := svc.SetAuthToken(cmd.Context(), cfg.API.Token); err != nil {
					return err
				}
				token = cfg.API.Token
			} else if token, err = svc.EnsureAuthToken(cmd.Context()); err != nil {
				return fmt.Errorf("failed to ensure auth token: %w", err)
			}

			doctor := media.NewCachedDoctor(s.Acquirer, logger)
			if caps, err := doctor.Refresh(cmd.Context()); err != nil {
				logger.Warn("initial doctor probe failed", "error", err)
			} else if !caps.AllOK() {
				logger.Warn("acquire tools missing; jobs will fail at the acquire stage")
			}

			runCtx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			runner := jobs.NewRunner(s.Repo, s.Pipeline, logger)
			runner.SetPollInterval(seconds(cfg.Runner.PollIntervalSeconds))
			if !noRunner {
				go runner.Start(runCtx)
			}

			addr := cfg.API.Bind
			if bind != "" {
				addr = bind
			}
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", addr, err)
			}

			server := api.NewServer(api.ServerConfig{
				Bind:       addr,
				Version:    config.Version,
				Jobs:       svc,
				Runner:     runner,
				Store:      s.Store,
				Containers: cfg.StorageConfig().Containers,
				Workspace:  s.Pipeline.Workspace(),
				Doctor:     doctor,
				Logger:     logger,
				StartTime:  startTime,
			})

			runnerState := "enabled"
			if noRunner {
				runnerState = "disabled"
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"heimdex-notes " + config.Version, ""}, [][]string{
				{"API URL", "http://" + ln.Addr().String()},
				{"Auth token", token},
				{"Work dir", cfg.Paths.WorkDir},
				{"Runner", runnerState},
			}, nil))

			errCh := make(chan error, 1)
			go func() { errCh <- server.Serve(ln) }()

			select {
			case err := <-errCh:
				return err
			case <-runCtx.Done():
			}

			logger.Info("initiating graceful shutdown")
			cancel()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shutdown HTTP server", "error", err)
			}
			logger.Info("shutdown complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (defaults to api.bind)")
	cmd.Flags().BoolVar(&noRunner, "no-runner", false, "Serve the API without processing queued jobs")
	return cmd
}
