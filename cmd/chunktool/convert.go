package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Faultbox/datachunk/internal/chunkio"
	"github.com/Faultbox/datachunk/internal/config"
)

func (a *app) fileOptions() chunkio.ConvertOptions {
	return chunkio.ConvertOptions{
		Schema: a.schema(),
		Strict: a.cfg.Convert.Strict,
		Sink:   chunkio.SinkOptions{JSONIndent: a.cfg.Convert.Indent},
		Logger: a.log,
	}
}

func indentFlag(cmd *cobra.Command) {
	cmd.Flags().Int("indent", config.Default().Convert.Indent, "JSON indent, 0 for a single line (overrides convert.indent)")
}

// toFormatCmd builds to-json and to-binary.
func (a *app) toFormatCmd(to chunkio.Format) *cobra.Command {
	cmd := &cobra.Command{
		Use:   fmt.Sprintf("to-%s <in> [out]", to),
		Short: fmt.Sprintf("Convert one file to the %s form", to),
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := args[0]
			out := strings.TrimSuffix(in, filepath.Ext(in)) + to.Ext()
			if len(args) == 2 {
				out = args[1]
			}
			if a.path(in) == a.path(out) {
				return fmt.Errorf("output %s would overwrite the input", out)
			}

			stats, err := chunkio.ConvertFile(a.fs, a.path(in), a.path(out), to, a.fileOptions())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%d chunks, %d raw)\n", in, out, stats.Chunks, stats.RawChunks)
			return nil
		},
	}

	if to == chunkio.FormatJSON {
		indentFlag(cmd)
	}
	return cmd
}

func (a *app) convertCmd() *cobra.Command {
	var (
		toName string
		exts   []string
	)

	cmd := &cobra.Command{
		Use:   "convert <in-dir> <out-dir>",
		Short: "Convert every matching file under a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := chunkio.ParseFormat(toName)
			if err != nil {
				return err
			}
			if len(exts) == 0 {
				exts = []string{".json"}
				if to == chunkio.FormatJSON {
					exts = []string{".scb", ".map", ".bin"}
				}
			}

			jobs, err := chunkio.PlanJobs(a.fs, a.path(args[0]), a.path(args[1]), exts, to)
			if err != nil {
				return err
			}
			a.log.Info("batch planned", zap.Int("files", len(jobs)), zap.Int("workers", a.cfg.Convert.Workers))

			res, err := chunkio.ConvertAll(cmd.Context(), a.fs, jobs, to, a.cfg.Convert.Workers, a.fileOptions())
			fmt.Fprintf(cmd.OutOrStdout(), "converted %d of %d files (%d chunks, %d raw)\n", res.Files, len(jobs), res.Chunks, res.RawChunks)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&toName, "to", "json", "target format: json or binary")
	f.StringSliceVar(&exts, "ext", nil, "input extensions to pick up")
	indentFlag(cmd)
	return cmd
}
