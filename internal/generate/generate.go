// Package generate runs the configured generator command for stale
// units and refreshes the snapshot baseline afterwards so the next
// check comes back fresh.
package generate

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/koksalmehmet/typesmith/internal/config"
	"github.com/koksalmehmet/typesmith/internal/descriptor"
	"github.com/koksalmehmet/typesmith/internal/gitutil"
	"github.com/koksalmehmet/typesmith/internal/logger"
	"github.com/koksalmehmet/typesmith/internal/model"
	"github.com/koksalmehmet/typesmith/internal/resource"
	"github.com/koksalmehmet/typesmith/internal/snapshot"
	"github.com/koksalmehmet/typesmith/internal/stale"
	"github.com/koksalmehmet/typesmith/internal/validate"
	"github.com/koksalmehmet/typesmith/schemas"
)

// Generator runs one generator invocation.
type Generator interface {
	Generate(ctx context.Context, argv []string, env map[string]string) error
}

// CommandGenerator shells out to the expanded command from the project
// root, passing tool output through to the terminal.
type CommandGenerator struct {
	Dir string
}

func (g CommandGenerator) Generate(ctx context.Context, argv []string, env map[string]string) error {
	if len(argv) == 0 {
		return fmt.Errorf("empty generator command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = g.Dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if len(env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	logger.Debug("running %s", strings.Join(argv, " "))
	return cmd.Run()
}

// expandCommand substitutes the {descriptor}, {outputDir} and
// {searchPath} placeholders in the configured argv template.
func expandCommand(tpl []string, descriptorPath, outputDir string, searchPath []string) []string {
	repl := strings.NewReplacer(
		"{descriptor}", descriptorPath,
		"{outputDir}", outputDir,
		"{searchPath}", strings.Join(searchPath, string(filepath.ListSeparator)),
	)
	argv := make([]string, len(tpl))
	for i, a := range tpl {
		argv[i] = repl.Replace(a)
	}
	return argv
}

// Options configure a generate run.
type Options struct {
	Unit      string        // restrict to one unit; empty runs all
	Mode      snapshot.Mode // staleness mode for the pre-check
	Force     bool          // regenerate even when fresh
	DryRun    bool          // report what would run without running it
	Generator Generator     // nil means CommandGenerator at the project root
}

type runner struct {
	root       string
	cfg        *config.Config
	opts       Options
	oracle     *snapshot.Oracle
	store      *snapshot.Store
	layout     resource.Layout
	mapping    resource.Mapping
	searchPath []string
	resolver   descriptor.PathResolver
	gen        Generator
	runID      string
}

// Run regenerates every stale unit (or the one named in opts) and
// writes the generation-manifest artifact. ParseError and
// ResolutionError abort the run; a generator failure marks its unit
// failed, continues with the rest, and surfaces in the returned error
// alongside the manifest.
func Run(ctx context.Context, root string, opts Options) (*model.GenerationManifest, error) {
	start := time.Now()

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if cfg.Generator == nil || len(cfg.Generator.Command) == 0 {
		return nil, fmt.Errorf("no generator command configured")
	}
	if _, err := config.EnsureLayout(root); err != nil {
		return nil, err
	}

	units := cfg.Units
	if opts.Unit != "" {
		u, ok := cfg.Unit(opts.Unit)
		if !ok {
			return nil, fmt.Errorf("unknown unit %q", opts.Unit)
		}
		units = []config.Unit{u}
	}

	mode := opts.Mode
	if mode == "" {
		mode = snapshot.ModeFast
	}

	store, err := snapshot.Open(snapshot.DBPath(root))
	if err != nil {
		return nil, err
	}
	defer store.Close()

	baseline, err := store.Load()
	if err != nil {
		return nil, err
	}

	layout := resource.LayoutFromConfig(root, cfg)
	mapping, err := resource.BuildMapping(layout)
	if err != nil {
		return nil, err
	}

	gen := opts.Generator
	if gen == nil {
		gen = CommandGenerator{Dir: root}
	}

	r := &runner{
		root:       root,
		cfg:        cfg,
		opts:       opts,
		oracle:     snapshot.NewOracle(root, baseline, mode),
		store:      store,
		layout:     layout,
		mapping:    mapping,
		searchPath: cfg.ResolvedSearchPath(root),
		gen:        gen,
		runID:      uuid.NewString(),
	}

	outcomes := make([]model.UnitOutcome, 0, len(units))
	failed := 0
	for _, u := range units {
		out, err := r.unit(ctx, u)
		if err != nil {
			return nil, err
		}
		if out.Outcome == model.OutcomeFailed {
			failed++
		}
		outcomes = append(outcomes, out)
	}

	manifest := model.GenerationManifest{
		SchemaVersion: model.SchemaVersion,
		Kind:          model.KindGenerationManifest,
		RunID:         r.runID,
		StartedAt:     start.UTC().Format(time.RFC3339),
		CompletedAt:   time.Now().UTC().Format(time.RFC3339),
		CommitHash:    gitutil.CommitHash(root),
		Units:         outcomes,
		Provenance:    model.NewProvenance(),
	}
	out := config.OutputsPath(root, "generation-manifest.json")
	if err := model.WriteGenerationManifest(out, manifest); err != nil {
		return nil, err
	}
	if err := validate.JSON(out, schemas.GenerationManifest); err != nil {
		return nil, err
	}
	if failed > 0 {
		return &manifest, fmt.Errorf("%d of %d units failed", failed, len(units))
	}
	return &manifest, nil
}

func (r *runner) unit(ctx context.Context, u config.Unit) (model.UnitOutcome, error) {
	started := time.Now()
	out := model.UnitOutcome{Name: u.Name, Descriptor: u.Descriptor, OutputDir: u.OutputDir}
	done := func() model.UnitOutcome {
		out.DurationMs = time.Since(started).Milliseconds()
		return out
	}

	desc := u.DescriptorPath(r.root)
	outdated := false
	reason := ""
	if r.oracle.HasChanged(desc) {
		outdated = true
		reason = fmt.Sprintf("changed descriptor %s", u.Descriptor)
	} else {
		var err error
		outdated, reason, err = stale.IsStale(desc, r.searchPath, r.layout, r.resolver, r.oracle)
		if err != nil {
			return done(), fmt.Errorf("check %s: %w", u.Name, err)
		}
	}

	if !outdated && !r.opts.Force {
		logger.Info("unit %s up to date", u.Name)
		out.Outcome = model.OutcomeSkipped
		out.Reason = "up to date"
		return done(), nil
	}
	if !outdated {
		reason = "forced"
	}

	outDir := u.OutputDir
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(r.root, outDir)
	}
	argv := expandCommand(r.cfg.Generator.Command, desc, outDir, r.searchPath)
	out.Command = argv

	if r.opts.DryRun {
		logger.Info("unit %s would run: %s", u.Name, strings.Join(argv, " "))
		out.Outcome = model.OutcomeSkipped
		out.Reason = "dry-run: " + reason
		return done(), nil
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		out.Outcome = model.OutcomeFailed
		out.Reason = err.Error()
		return done(), nil
	}
	logger.Info("unit %s: %s", u.Name, reason)
	if err := r.gen.Generate(ctx, argv, r.cfg.Generator.Env); err != nil {
		logger.Error("unit %s: generator failed: %v", u.Name, err)
		out.Outcome = model.OutcomeFailed
		out.Reason = err.Error()
		return done(), nil
	}

	out.Outcome = model.OutcomeGenerated
	out.Reason = reason
	if err := r.refresh(desc); err != nil {
		// Not fatal: generation succeeded, but the next check will
		// report stale again until a snapshot runs.
		logger.Error("unit %s: baseline refresh failed: %v", u.Name, err)
		out.Reason = fmt.Sprintf("baseline refresh failed: %v", err)
	}
	return done(), nil
}

// refresh re-records the unit's inputs: its descriptor plus the origin
// of every resolved unit the mapping can trace back to a source file.
func (r *runner) refresh(desc string) error {
	keys := []string{snapshot.Key(r.root, desc)}
	seen := map[string]bool{keys[0]: true}

	ts, err := r.resolver.Resolve(desc, r.searchPath)
	if err != nil {
		return err
	}
	for _, t := range ts.Types {
		if t.SourceURL == "" {
			continue
		}
		target, ok := descriptor.URLToPath(t.SourceURL)
		if !ok {
			continue
		}
		origin, ok := r.mapping.Origin(target)
		if !ok {
			continue
		}
		key := snapshot.Key(r.root, origin)
		if seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}

	states, err := snapshot.HashFiles(r.root, keys)
	if err != nil {
		return err
	}
	return r.store.Refresh(r.runID, states)
}
