package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-notes/internal/insights"
	"github.com/heimdex/heimdex-notes/internal/manifest"
	"github.com/heimdex/heimdex-notes/internal/pipeline"
)

func newStageCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newAcquireCommand(ctx),
		newIndexCommand(ctx),
		newFramesCommand(ctx),
		newAlignCommand(ctx),
		newSummarizeCommand(ctx),
		newRenderCommand(ctx),
	}
}

type stageFlags struct {
	jobID      string
	skipUpload bool
}

func (f *stageFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.jobID, "job-id", "", "Job identifier (defaults to JOB_ID)")
	cmd.Flags().BoolVar(&f.skipUpload, "skip-upload", false, "Keep outputs local instead of uploading to blob storage")
}

func newAcquireCommand(ctx *commandContext) *cobra.Command {
	var flags stageFlags
	var videoURL string
	var skipTrim bool

	cmd := &cobra.Command{
		Use:   "acquire",
		Short: "Download, trim and upload the source video",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			jobID, err := resolveJobID(flags.jobID, cfg, true)
			if err != nil {
				return err
			}
			s, err := ctx.openSession(stageNeeds{Store: !flags.skipUpload})
			if err != nil {
				return err
			}
			defer s.Close()

			stage := runConfig(cfg, jobID, resolveVideoURL(videoURL, cfg)).Acquire
			stage.SkipUpload = flags.skipUpload
			stage.SkipTrim = stage.SkipTrim || skipTrim
			res, err := s.Pipeline.Acquire(cmd.Context(), stage)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "job:   %s\nvideo: %s\n", jobID, res.LocalPath)
			if res.Blob != "" {
				fmt.Fprintf(out, "blob:  %s/%s\n", res.Container, res.Blob)
			}
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&videoURL, "video-url", "", "Source video URL (defaults to VIDEO_URL)")
	cmd.Flags().BoolVar(&skipTrim, "skip-trim", false, "Upload the full download without trimming")
	return cmd
}

func newIndexCommand(ctx *commandContext) *cobra.Command {
	var flags stageFlags
	var videoURL, name string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Submit the video to the indexer and wait for its insights",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			jobID, err := resolveJobID(flags.jobID, cfg, false)
			if err != nil {
				return err
			}
			s, err := ctx.openSession(stageNeeds{Indexer: true, Store: videoURL == "" || !flags.skipUpload})
			if err != nil {
				return err
			}
			defer s.Close()

			stage := runConfig(cfg, jobID, "").Index
			stage.VideoURL = videoURL
			stage.Name = name
			stage.SkipUpload = flags.skipUpload
			res, err := s.Pipeline.Index(cmd.Context(), stage)
			if err != nil {
				return err
			}
			shots := len(res.Document.Shots())
			fmt.Fprintf(cmd.OutOrStdout(), "video id: %s\nshots:    %d\nindex:    %s\n", res.VideoID, shots, res.LocalPath)
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&videoURL, "video-url", "", "Readable video URL; defaults to a SAS URL for the raw blob")
	cmd.Flags().StringVar(&name, "name", "", "Video name registered with the indexer (defaults to the job id)")
	return cmd
}

type indexFlags struct {
	path      string
	fromStore bool
}

func (f *indexFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.path, "index", "", "Path to index.json (defaults to the job workspace)")
	cmd.Flags().BoolVar(&f.fromStore, "index-from-store", false, "Read index.json from blob storage")
}

func (f indexFlags) source() pipeline.IndexSource {
	return pipeline.IndexSource{Path: f.path, FromStore: f.fromStore}
}

func newFramesCommand(ctx *commandContext) *cobra.Command {
	var flags stageFlags
	var index indexFlags
	var outputDir string

	cmd := &cobra.Command{
		Use:   "frames",
		Short: "Download one keyframe per shot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			jobID, err := resolveJobID(flags.jobID, cfg, false)
			if err != nil {
				return err
			}
			s, err := ctx.openSession(stageNeeds{Indexer: true, Store: index.fromStore || !flags.skipUpload})
			if err != nil {
				return err
			}
			defer s.Close()

			stage := runConfig(cfg, jobID, "").Frames
			stage.Index = index.source()
			stage.OutputDir = outputDir
			stage.SkipUpload = flags.skipUpload
			res, err := s.Pipeline.Frames(cmd.Context(), stage)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "frames: %d\ndir:    %s\n", len(res.Frames), res.Dir)
			return nil
		},
	}
	flags.bind(cmd)
	index.bind(cmd)
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Frame directory (defaults to the workspace frames/{jobId})")
	return cmd
}

func newAlignCommand(ctx *commandContext) *cobra.Command {
	var flags stageFlags
	var index indexFlags
	var framesDir, output string
	var framesFromStore, includeTail, printTable bool
	var durationMs int64

	cmd := &cobra.Command{
		Use:   "align",
		Short: "Build the segment manifest from shots, speakers and frames",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			jobID, err := resolveJobID(flags.jobID, cfg, false)
			if err != nil {
				return err
			}
			s, err := ctx.openSession(stageNeeds{Store: index.fromStore || framesFromStore || !flags.skipUpload})
			if err != nil {
				return err
			}
			defer s.Close()

			stage := runConfig(cfg, jobID, "").Align
			stage.Index = index.source()
			stage.FramesDir = framesDir
			stage.FramesFromStore = framesFromStore
			stage.IncludeTail = stage.IncludeTail || includeTail
			stage.DurationMs = durationMs
			stage.Output = output
			stage.SkipUpload = flags.skipUpload
			res, err := s.Pipeline.Align(cmd.Context(), stage)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if printTable {
				fmt.Fprintln(out, segmentTable(res.Manifest))
			}
			fmt.Fprintf(out, "segments: %d\nmanifest: %s\n", len(res.Manifest.Segments), res.LocalPath)
			if res.Dropped > 0 {
				fmt.Fprintf(out, "dropped:  %d transcript entries outside the breakpoints\n", res.Dropped)
			}
			return nil
		},
	}
	flags.bind(cmd)
	index.bind(cmd)
	cmd.Flags().StringVar(&framesDir, "frames-dir", "", "Directory of {startMs}.jpg frames")
	cmd.Flags().BoolVar(&framesFromStore, "frames-from-store", false, "List frames from the frames container")
	cmd.Flags().BoolVar(&includeTail, "include-tail", false, "Emit a closing segment up to the video duration")
	cmd.Flags().Int64Var(&durationMs, "duration-ms", 0, "Video duration override for --include-tail")
	cmd.Flags().StringVar(&output, "output", "", "Manifest path (defaults to the job workspace)")
	cmd.Flags().BoolVar(&printTable, "print", false, "Print the segments as a table")
	return cmd
}

type manifestFlags struct {
	path      string
	fromStore bool
}

func (f *manifestFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.path, "input", "", "Input manifest path (defaults to the job workspace)")
	cmd.Flags().BoolVar(&f.fromStore, "input-from-store", false, "Read the input manifest from blob storage")
}

func (f manifestFlags) source() pipeline.ManifestSource {
	return pipeline.ManifestSource{Path: f.path, FromStore: f.fromStore}
}

func newSummarizeCommand(ctx *commandContext) *cobra.Command {
	var flags stageFlags
	var input manifestFlags
	var output string

	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Add a short summary to every manifest segment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			jobID, err := resolveJobID(flags.jobID, cfg, false)
			if err != nil {
				return err
			}
			s, err := ctx.openSession(stageNeeds{Summarizer: true, Store: input.fromStore || !flags.skipUpload})
			if err != nil {
				return err
			}
			defer s.Close()

			stage := runConfig(cfg, jobID, "").Summarize
			stage.Input = input.source()
			stage.Output = output
			stage.SkipUpload = flags.skipUpload
			res, err := s.Pipeline.Summarize(cmd.Context(), stage)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "segments: %d\nmanifest: %s\n", len(res.Manifest.Segments), res.LocalPath)
			return nil
		},
	}
	flags.bind(cmd)
	input.bind(cmd)
	cmd.Flags().StringVar(&output, "output", "", "Summarized manifest path (defaults to the job workspace)")
	return cmd
}

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var flags stageFlags
	var input manifestFlags
	var format, output, frameBaseURL string

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the summarized manifest as HTML or Markdown notes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			jobID, err := resolveJobID(flags.jobID, cfg, false)
			if err != nil {
				return err
			}
			s, err := ctx.openSession(stageNeeds{Store: input.fromStore || !flags.skipUpload})
			if err != nil {
				return err
			}
			defer s.Close()

			stage := runConfig(cfg, jobID, "").Render
			stage.Input = input.source()
			if format != "" {
				stage.Format = format
			}
			if frameBaseURL != "" {
				stage.Frames.FrameBaseURL = frameBaseURL
				stage.Frames.FrameLocalDir = ""
			}
			stage.Output = output
			stage.SkipUpload = flags.skipUpload
			res, err := s.Pipeline.Render(cmd.Context(), stage)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "format: %s\nnotes:  %s\n", res.Format, res.LocalPath)
			return nil
		},
	}
	flags.bind(cmd)
	input.bind(cmd)
	cmd.Flags().StringVar(&format, "format", "", "Output format: html or md (defaults to render.format)")
	cmd.Flags().StringVar(&output, "output", "", "Output path (defaults to the job workspace)")
	cmd.Flags().StringVar(&frameBaseURL, "frame-base-url", "", "Prefix for relative frame paths (defaults to FRAME_BASE_URL)")
	return cmd
}

func segmentTable(m *manifest.Manifest) string {
	rows := make([][]string, 0, len(m.Segments))
	for i, seg := range m.Segments {
		speaker := seg.SpeakerID()
		if speaker == "" {
			speaker = "-"
		}
		rows = append(rows, []string{
			fmt.Sprint(i + 1),
			insights.FormatTimecode(seg.StartMs),
			insights.FormatTimecode(seg.EndMs),
			speaker,
			seg.Frame(),
			truncate(seg.Text, 60),
		})
	}
	return renderTable(
		[]string{"#", "Start", "End", "Speaker", "Frame", "Text"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignLeft, alignLeft, alignLeft},
	)
}
