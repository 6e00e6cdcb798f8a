// Package bake drives the texture, mesh and skeleton bakers over a source tree.
//
// Sources are discovered by extension, baked by a bounded pool of workers and written
// to a mirror of the source tree under the export root. One failing source never stops
// its siblings.
package bake

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Faultbox/kiln/internal/config"
	"github.com/Faultbox/kiln/internal/logger"
	"github.com/Faultbox/kiln/pkg/container"
	"github.com/Faultbox/kiln/pkg/mesh"
	"github.com/Faultbox/kiln/pkg/skeleton"
	"github.com/Faultbox/kiln/pkg/texture"
	"github.com/qmuntal/gltf"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Output extensions.
const (
	TextureExt  = ".texi"
	SkeletonExt = ".skel"
)

// Options control a batch bake.
type Options struct {
	Workers           int
	Compression       container.Compression
	Progress          bool
	ProgressWriter    io.Writer // defaults to stderr
	TextureExtensions []string
	SceneExtensions   []string
	Texture           texture.Options
	// WatchDelay is how long a watched file must stay quiet before it is re-baked.
	WatchDelay time.Duration
}

// OptionsFromConfig maps the loaded configuration onto bake options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Workers:           cfg.Bake.Workers,
		Compression:       cfg.CompressionMode(),
		Progress:          cfg.Bake.Progress,
		TextureExtensions: cfg.Bake.TextureExtensions,
		SceneExtensions:   cfg.Bake.SceneExtensions,
		Texture: texture.Options{
			SRGBSuffixes: cfg.Texture.SRGBSuffixes,
			MagentaKey:   cfg.Texture.MagentaKey,
		},
	}
}

// Result describes what baking one source produced.
type Result struct {
	Job      Job
	Outputs  []string
	Warnings []string
	// Failures are skipped primitives or skeletons. They do not fail the source.
	Failures []error
	// Err is set when the source could not be baked at all.
	Err      error
	Duration time.Duration
}

// Report summarizes a batch.
type Report struct {
	Results []Result
	// Err combines every fatal source error.
	Err error
}

// Fatal returns the number of sources that failed to bake.
func (r *Report) Fatal() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Outputs returns the number of containers written.
func (r *Report) Outputs() int {
	n := 0
	for _, res := range r.Results {
		n += len(res.Outputs)
	}
	return n
}

// Failures returns the number of skipped primitives and skeletons.
func (r *Report) Failures() int {
	n := 0
	for _, res := range r.Results {
		n += len(res.Failures)
	}
	return n
}

// Warnings returns the number of warnings raised by the bakers.
func (r *Report) Warnings() int {
	n := 0
	for _, res := range r.Results {
		n += len(res.Warnings)
	}
	return n
}

// OK reports whether every source baked.
func (r *Report) OK() bool { return r.Err == nil }

// Baker runs bakes with a fixed set of options.
type Baker struct {
	opts Options
	log  *zap.Logger
}

// New creates a Baker. Missing options fall back to the configuration defaults.
func New(opts Options) *Baker {
	def := config.Default()
	if opts.Workers < 1 {
		opts.Workers = def.Bake.Workers
	}
	if opts.Compression == "" {
		opts.Compression = container.CompressionNone
	}
	if opts.TextureExtensions == nil {
		opts.TextureExtensions = def.Bake.TextureExtensions
	}
	if opts.SceneExtensions == nil {
		opts.SceneExtensions = def.Bake.SceneExtensions
	}
	if opts.ProgressWriter == nil {
		opts.ProgressWriter = os.Stderr
	}
	if opts.WatchDelay <= 0 {
		opts.WatchDelay = 200 * time.Millisecond
	}
	return &Baker{opts: opts, log: logger.Named("bake")}
}

// Run bakes every source under sourceRoot into exportRoot.
// The returned error is only set when discovery fails; per-source failures are in the report.
func (b *Baker) Run(sourceRoot, exportRoot string) (*Report, error) {
	jobs, err := Discover(sourceRoot, exportRoot, b.opts.TextureExtensions, b.opts.SceneExtensions)
	if err != nil {
		return nil, err
	}
	b.log.Info("baking",
		zap.String("source", sourceRoot),
		zap.String("export", exportRoot),
		zap.Int("files", len(jobs)),
		zap.Int("workers", b.opts.Workers),
		zap.String("compression", string(b.opts.Compression)))

	var bar *progressbar.ProgressBar
	if b.opts.Progress && len(jobs) > 0 {
		bar = progressbar.NewOptions(len(jobs),
			progressbar.OptionSetWriter(b.opts.ProgressWriter),
			progressbar.OptionSetDescription("baking"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	results := make([]Result, len(jobs))
	var g errgroup.Group
	g.SetLimit(b.opts.Workers)
	for i, job := range jobs {
		g.Go(func() error {
			results[i] = b.Bake(job, exportRoot)
			if bar != nil {
				_ = bar.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	if bar != nil {
		_ = bar.Finish()
	}

	report := &Report{Results: results}
	for _, res := range results {
		report.Err = multierr.Append(report.Err, res.Err)
	}
	b.log.Info("bake finished",
		zap.Int("files", len(jobs)),
		zap.Int("outputs", report.Outputs()),
		zap.Int("fatal", report.Fatal()),
		zap.Int("skipped", report.Failures()),
		zap.Int("warnings", report.Warnings()))
	return report, nil
}

// BakeFile bakes a single source that lives under sourceRoot. Its output name is chosen
// against the bakeable files next to it, the same way Run does.
func (b *Baker) BakeFile(path, sourceRoot, exportRoot string) (Result, error) {
	if _, ok := Classify(path, b.opts.TextureExtensions, b.opts.SceneExtensions); !ok {
		return Result{}, fmt.Errorf("%s is not a bakeable source", path)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		return Result{}, err
	}

	var siblings []Job
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		p := filepath.Join(filepath.Dir(path), e.Name())
		kind, ok := Classify(p, b.opts.TextureExtensions, b.opts.SceneExtensions)
		if !ok {
			continue
		}
		rel, err := filepath.Rel(sourceRoot, p)
		if err != nil {
			return Result{}, err
		}
		siblings = append(siblings, Job{Path: p, Rel: filepath.ToSlash(rel), Kind: kind})
	}
	assignOutputNames(siblings)

	for _, job := range siblings {
		if job.Path == filepath.Clean(path) {
			return b.Bake(job, exportRoot), nil
		}
	}
	return Result{}, fmt.Errorf("%s: %w", path, os.ErrNotExist)
}

// Bake runs the baker for one job and logs the outcome.
func (b *Baker) Bake(job Job, exportRoot string) Result {
	start := time.Now()
	res := Result{Job: job}
	switch {
	case job.Conflict != nil:
		res.Err = job.Conflict
	case job.Kind == SourceScene:
		b.bakeScene(&res, exportRoot)
	default:
		b.bakeTexture(&res, exportRoot)
	}
	res.Duration = time.Since(start)

	log := b.log.With(zap.String("source", job.Rel))
	for _, w := range res.Warnings {
		log.Warn(w)
	}
	for _, f := range res.Failures {
		log.Error("skipped", zap.Error(f))
	}
	if res.Err != nil {
		log.Error("bake failed", zap.Error(res.Err))
	} else {
		log.Debug("baked", zap.Int("outputs", len(res.Outputs)), zap.Duration("took", res.Duration))
	}
	return res
}

func (b *Baker) bakeTexture(res *Result, exportRoot string) {
	opts := b.opts.Texture
	opts.Source = res.Job.Rel
	asset, err := texture.Bake(res.Job.Path, opts)
	if err != nil {
		res.Err = err
		return
	}
	out := filepath.Join(res.Job.OutputDir(exportRoot), res.Job.Stem()+TextureExt)
	if err := asset.Write(out, b.opts.Compression); err != nil {
		res.Err = err
		return
	}
	res.Outputs = append(res.Outputs, out)
}

func (b *Baker) bakeScene(res *Result, exportRoot string) {
	doc, err := gltf.Open(res.Job.Path)
	if err != nil {
		res.Err = fmt.Errorf("%w: opening %s: %w", mesh.ErrDecode, res.Job.Path, err)
		return
	}
	dir := res.Job.OutputDir(exportRoot)
	stem := res.Job.Stem()

	meshes := mesh.BakeDocument(doc, mesh.Options{Source: res.Job.Rel})
	res.Warnings = append(res.Warnings, meshes.Warnings...)
	for _, f := range meshes.Failures {
		res.Failures = append(res.Failures, f)
	}
	for _, a := range meshes.Assets {
		out := filepath.Join(dir, a.FileName(stem))
		if err := a.Write(out, b.opts.Compression); err != nil {
			res.Err = multierr.Append(res.Err, err)
			continue
		}
		res.Outputs = append(res.Outputs, out)
	}

	if len(doc.Skins) == 0 && len(doc.Animations) == 0 {
		return
	}
	skel, err := skeleton.BakeDocument(doc, skeleton.Options{Source: res.Job.Rel, Name: stem})
	if err != nil {
		res.Failures = append(res.Failures, fmt.Errorf("skeleton: %w", err))
		return
	}
	res.Warnings = append(res.Warnings, skel.Warnings...)
	if !skel.HasRig() {
		return
	}
	out := filepath.Join(dir, stem+SkeletonExt)
	if err := skel.Write(out, b.opts.Compression); err != nil {
		res.Err = multierr.Append(res.Err, err)
		return
	}
	res.Outputs = append(res.Outputs, out)
}
