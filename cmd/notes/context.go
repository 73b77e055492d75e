package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-notes/internal/config"
	"github.com/heimdex/heimdex-notes/internal/db"
	"github.com/heimdex/heimdex-notes/internal/events"
	"github.com/heimdex/heimdex-notes/internal/indexer"
	"github.com/heimdex/heimdex-notes/internal/jobs"
	"github.com/heimdex/heimdex-notes/internal/logging"
	"github.com/heimdex/heimdex-notes/internal/media"
	"github.com/heimdex/heimdex-notes/internal/pipeline"
	"github.com/heimdex/heimdex-notes/internal/storage"
	"github.com/heimdex/heimdex-notes/internal/summarize"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	logger     *slog.Logger
	configErr  error

	stderr io.Writer
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
		stderr:       os.Stderr,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Logging.Level = strings.ToLower(strings.TrimSpace(*c.logLevelFlag))
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.logger = logging.NewLoggerTo(c.stderr, cfg.Logging.Level, cfg.Logging.Format)
	})
	return c.config, c.configErr
}

func (c *commandContext) log() *slog.Logger {
	if c.logger == nil {
		return logging.NewNop()
	}
	return c.logger
}

// stageNeeds names the collaborators a command cannot run without. Others
// are attached when their settings are present.
type stageNeeds struct {
	Store      bool
	Indexer    bool
	Summarizer bool
	Ledger     bool
}

// session is everything a pipeline command opened; Close releases it.
type session struct {
	Pipeline *pipeline.Pipeline
	Store    storage.Store
	Acquirer *media.Acquirer
	Ledger   *db.DB
	Repo     jobs.Repository
	closers  []func()
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func (c *commandContext) openSession(needs stageNeeds) (*session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger := c.log()
	s := &session{}

	storeCfg := cfg.StorageConfig()
	if f, ok := c.stderr.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		storeCfg.Progress = c.stderr
	}
	store, err := storage.Open(storeCfg, logger)
	if err != nil {
		if needs.Store {
			return nil, err
		}
		logger.Debug("blob storage unavailable, using local directory", "error", err)
		if store, err = storage.NewDirStore(filepath.Join(cfg.Paths.DataDir, "blobs"), nil); err != nil {
			return nil, err
		}
	}

	s.Store = store

	deps := pipeline.Deps{
		Store:      store,
		Containers: storeCfg.Containers,
		Logger:     logger,
	}

	mediaCfg := media.DefaultConfig(logger)
	mediaCfg.FFmpegPath = cfg.Acquire.FFmpegPath
	mediaCfg.YTDLPPath = cfg.Acquire.YTDLPPath
	mediaCfg.DownloadTimeout = seconds(cfg.Acquire.DownloadTimeoutSeconds)
	s.Acquirer = media.NewAcquirer(mediaCfg)
	deps.Acquirer = s.Acquirer

	if client, err := indexer.NewClient(cfg.IndexerConfig(), logger); err == nil {
		deps.Indexer = client
	} else if needs.Indexer {
		return nil, err
	}

	if summarizer, err := summarize.New(cfg.SummarizeConfig()); err == nil {
		deps.Summarizer = summarizer
	} else if needs.Summarizer {
		return nil, err
	}

	publisher, err := events.Open(cfg.Events.NATSURL, logger)
	if err != nil {
		return nil, err
	}
	deps.Events = publisher
	s.closers = append(s.closers, publisher.Close)

	if needs.Ledger {
		database, err := db.New(cfg.DBPath(), logger)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open job ledger: %w", err)
		}
		s.closers = append(s.closers, func() { database.Close() })
		s.Ledger = database
		s.Repo = jobs.NewRepository(database.Conn())
		deps.Ledger = s.Repo
	}

	s.Pipeline, err = pipeline.New(deps, cfg.Paths.WorkDir, runConfig(cfg, "", ""))
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// openLedger opens only the job database.
func (c *commandContext) openLedger() (*jobs.Service, func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	database, err := db.New(cfg.DBPath(), c.log())
	if err != nil {
		return nil, nil, fmt.Errorf("open job ledger: %w", err)
	}
	svc := jobs.NewService(jobs.NewRepository(database.Conn()), c.log())
	return svc, func() { database.Close() }, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
