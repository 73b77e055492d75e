package config

const (
	defaultDataDir  = "~/.local/share/heimdex-notes"
	defaultWorkDir  = "tmp"
	defaultAPIBind  = "127.0.0.1:8787"
	defaultLogLevel = "info"
	defaultLogFmt   = "auto"

	defaultIndexerAPIBase        = "https://api.videoindexer.ai"
	defaultIndexerLanguage       = "en-US"
	defaultIndexerPollSeconds    = 30
	defaultIndexerTimeoutSeconds = 1800
	defaultIndexerTokenTTL       = 3000
	defaultIndexerRequestTimeout = 60

	defaultStorageBackend     = "azure"
	defaultStorageAuthMode    = "key"
	defaultSASTTLHours        = 24
	defaultUploadConcurrency  = 4
	defaultStorageTimeoutSecs = 600

	defaultSummarizeProvider   = "azure"
	defaultSummarizeAPIVersion = "2024-07-01-preview"
	defaultSummarizeMaxTokens  = 128
	defaultSummarizeTemp       = 0.2
	defaultSummarizeTimeout    = 60

	defaultTrimDuration    = "00:05:20"
	defaultTrimMaxWidth    = 1280
	defaultTrimCRF         = 23
	defaultTrimAudio       = "128k"
	defaultTrimPreset      = "veryfast"
	defaultDownloadTimeout = 1800

	defaultRenderFormat = "html"

	defaultRunnerPollSeconds = 5

	// DBFilename is the job ledger inside the data directory.
	DBFilename = "notes.db"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			WorkDir: defaultWorkDir,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Indexer: Indexer{
			APIBase:               defaultIndexerAPIBase,
			Language:              defaultIndexerLanguage,
			PollIntervalSeconds:   defaultIndexerPollSeconds,
			PollTimeoutSeconds:    defaultIndexerTimeoutSeconds,
			TokenTTLSeconds:       defaultIndexerTokenTTL,
			RequestTimeoutSeconds: defaultIndexerRequestTimeout,
		},
		Storage: Storage{
			Backend:               defaultStorageBackend,
			AuthMode:              defaultStorageAuthMode,
			SASTTLHours:           defaultSASTTLHours,
			UploadConcurrency:     defaultUploadConcurrency,
			RequestTimeoutSeconds: defaultStorageTimeoutSecs,
			Containers: Containers{
				Raw:       "raw",
				VI:        "video-indexer",
				Frames:    "frames",
				Manifests: "manifests",
				Outputs:   "outputs",
			},
		},
		Summarize: Summarize{
			Provider:       defaultSummarizeProvider,
			APIVersion:     defaultSummarizeAPIVersion,
			MaxTokens:      defaultSummarizeMaxTokens,
			Temperature:    defaultSummarizeTemp,
			TimeoutSeconds: defaultSummarizeTimeout,
		},
		Acquire: Acquire{
			Trim:                   true,
			TrimDuration:           defaultTrimDuration,
			Reencode:               true,
			MaxWidth:               defaultTrimMaxWidth,
			CRF:                    defaultTrimCRF,
			AudioBitrate:           defaultTrimAudio,
			Preset:                 defaultTrimPreset,
			DownloadTimeoutSeconds: defaultDownloadTimeout,
		},
		Render: Render{
			Format: defaultRenderFormat,
		},
		Runner: Runner{
			PollIntervalSeconds: defaultRunnerPollSeconds,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFmt,
		},
	}
}
