package chunkio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/datachunk/pkg/chunk"
	"github.com/Faultbox/datachunk/pkg/convert"
)

// ConvertOptions tune file conversion.
type ConvertOptions struct {
	Schema *convert.Schema
	Strict bool
	Sink   SinkOptions
	Logger *zap.Logger
}

func (o ConvertOptions) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// ConvertFile converts in to out, writing format to.
func ConvertFile(fs billy.Filesystem, in, out string, to Format, opts ConvertOptions) (convert.Stats, error) {
	log := opts.logger()
	keys := chunk.NewNameKeyTable()
	chunkOpts := []chunk.Option{chunk.WithNameKeys(keys), chunk.WithLogger(log)}

	src, from, err := ReadSource(fs, in, chunkOpts...)
	if err != nil {
		return convert.Stats{}, err
	}
	dst, err := NewSink(to, opts.Sink, chunkOpts...)
	if err != nil {
		return convert.Stats{}, err
	}

	stats, err := convert.Convert(src, dst, opts.Schema, convert.Options{Strict: opts.Strict, Logger: log})
	if err != nil {
		return stats, fmt.Errorf("converting %s: %w", in, err)
	}
	if err := Save(fs, out, dst); err != nil {
		return stats, err
	}

	log.Info("converted",
		zap.String("in", in),
		zap.String("out", out),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.Int("chunks", stats.Chunks),
		zap.Int("raw_chunks", stats.RawChunks))
	return stats, nil
}

// Job is one file conversion of a batch.
type Job struct {
	In  string
	Out string
}

// Result is the outcome of a batch.
type Result struct {
	Files     int
	Chunks    int
	RawChunks int
}

// ConvertAll runs jobs on at most workers goroutines. The first failure
// cancels the jobs that have not started yet.
func ConvertAll(ctx context.Context, fs billy.Filesystem, jobs []Job, to Format, workers int, opts ConvertOptions) (Result, error) {
	if workers < 1 {
		workers = 1
	}

	var (
		mu  sync.Mutex
		res Result
	)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)

	for _, job := range jobs {
		job := job
		if ctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			stats, err := ConvertFile(fs, job.In, job.Out, to, opts)
			if err != nil {
				return err
			}
			mu.Lock()
			res.Files++
			res.Chunks += stats.Chunks
			res.RawChunks += stats.RawChunks
			mu.Unlock()
			return nil
		})
	}

	err := eg.Wait()
	return res, err
}

// PlanJobs lists every file under inDir whose extension is in exts and maps
// it to the same relative path under outDir with the extension of to.
func PlanJobs(fs billy.Filesystem, inDir, outDir string, exts []string, to Format) ([]Job, error) {
	want := make(map[string]bool, len(exts))
	for _, e := range exts {
		want[strings.ToLower(e)] = true
	}

	var jobs []Job
	err := walk(fs, inDir, func(name string) {
		ext := filepath.Ext(name)
		if !want[strings.ToLower(ext)] {
			return
		}
		rel, err := filepath.Rel(inDir, name)
		if err != nil {
			return
		}
		out := filepath.Join(outDir, strings.TrimSuffix(rel, ext)+to.Ext())
		jobs = append(jobs, Job{In: name, Out: out})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].In < jobs[j].In })
	return jobs, nil
}

func walk(fs billy.Filesystem, dir string, visit func(name string)) error {
	entries, err := fs.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("listing %s: %w", dir, err)
	}
	for _, e := range entries {
		name := fs.Join(dir, e.Name())
		if e.IsDir() {
			if err := walk(fs, name, visit); err != nil {
				return err
			}
			continue
		}
		if e.Mode()&os.ModeType == 0 {
			visit(name)
		}
	}
	return nil
}
