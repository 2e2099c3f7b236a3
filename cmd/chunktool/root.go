package main

import (
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Faultbox/datachunk/internal/chunkio"
	"github.com/Faultbox/datachunk/internal/config"
	"github.com/Faultbox/datachunk/internal/logger"
	"github.com/Faultbox/datachunk/pkg/chunk"
	"github.com/Faultbox/datachunk/pkg/convert"
	"github.com/Faultbox/datachunk/pkg/scripts"
)

// app is the state shared by all commands.
type app struct {
	fs  billy.Filesystem
	cfg *config.Config
	log *zap.Logger

	configPath string
	overrides  config.Overrides
}

func newRootCmd(fs billy.Filesystem) *cobra.Command {
	a := &app{fs: fs, cfg: config.Default(), log: zap.NewNop()}

	root := &cobra.Command{
		Use:          "chunktool",
		Short:        "Inspect and convert chunk streams",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "path to config file")
	pf.BoolVar(&a.overrides.Debug, "debug", false, "enable debug logging")
	pf.StringVar(&a.overrides.LogFile, "log-file", "", "also log to this file")
	pf.IntVar(&a.overrides.Workers, "workers", 0, "parallel files in batch conversion")
	pf.BoolVar(&a.overrides.Strict, "strict", false, "fail on chunks without a known layout")

	root.AddCommand(
		a.infoCmd(),
		a.dumpCmd(),
		a.toFormatCmd(chunkio.FormatJSON),
		a.toFormatCmd(chunkio.FormatBinary),
		a.convertCmd(),
		a.diffCmd(),
		a.queryCmd(),
		a.scriptsCmd(),
		a.configCmd(),
	)
	return root
}

// setup loads the config with the command line on top. A command's own
// --indent flag is applied through the overrides like the global flags.
func (a *app) setup(cmd *cobra.Command) error {
	if f := cmd.Flags().Lookup("indent"); f != nil && f.Changed {
		indent, err := cmd.Flags().GetInt("indent")
		if err != nil {
			return err
		}
		a.overrides.Indent = &indent
	}

	cfg, err := config.Load(a.configPath, a.overrides)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logger.Named("chunktool")
	a.log.Debug("config loaded",
		zap.String("level", cfg.Logging.Level),
		zap.Int("workers", cfg.Convert.Workers),
		zap.Int("indent", cfg.Convert.Indent),
		zap.Bool("strict", cfg.Convert.Strict))
	return nil
}

// path makes name absolute so it resolves against the root filesystem.
func (a *app) path(name string) string {
	abs, err := filepath.Abs(name)
	if err != nil {
		return name
	}
	return abs
}

// open reads name with a fresh name key table.
func (a *app) open(name string) (chunk.Source, chunkio.Format, *chunk.NameKeyTable, error) {
	keys := chunk.NewNameKeyTable()
	src, format, err := chunkio.ReadSource(a.fs, a.path(name), chunk.WithNameKeys(keys), chunk.WithLogger(a.log))
	if err != nil {
		return nil, 0, nil, err
	}
	return src, format, keys, nil
}

func (a *app) schema() *convert.Schema {
	return scripts.NewSchema()
}

func (a *app) convertOptions() convert.Options {
	return convert.Options{Strict: a.cfg.Convert.Strict, Logger: a.log}
}
