// Package stale decides whether generated output is out of date with
// respect to a descriptor, its transitive imports, and the origin
// files they were staged from. Ambiguity always resolves to stale.
package stale

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/koksalmehmet/typesmith/internal/config"
	"github.com/koksalmehmet/typesmith/internal/descriptor"
	"github.com/koksalmehmet/typesmith/internal/logger"
	"github.com/koksalmehmet/typesmith/internal/model"
	"github.com/koksalmehmet/typesmith/internal/resource"
	"github.com/koksalmehmet/typesmith/internal/snapshot"
	"github.com/koksalmehmet/typesmith/internal/validate"
	"github.com/koksalmehmet/typesmith/schemas"
)

// Resolver loads a descriptor and the transitive closure of its imports.
type Resolver interface {
	Resolve(descriptorPath string, searchPath []string) (*descriptor.TypeSystem, error)
}

// Oracle answers whether a file changed since the recorded baseline.
type Oracle interface {
	HasChanged(path string) bool
}

// IsStale reports whether generated output for the descriptor at
// descriptorPath needs a rebuild. The string is the first trigger in
// declaration order, empty when fresh. ParseError and ResolutionError
// from the resolver abort the check; everything short of that resolves
// conservatively to stale.
func IsStale(descriptorPath string, searchPath []string, layout resource.Layout, res Resolver, oracle Oracle) (bool, string, error) {
	ts, err := res.Resolve(descriptorPath, searchPath)
	if err != nil {
		return false, "", err
	}
	mapping, err := resource.BuildMapping(layout)
	if err != nil {
		return false, "", err
	}

	// Types declared in the same unit share a provenance URL; check
	// each unit once, in declaration order.
	seen := make(map[string]bool)
	for _, t := range ts.Types {
		if t.SourceURL == "" || seen[t.SourceURL] {
			continue
		}
		seen[t.SourceURL] = true

		target, ok := descriptor.URLToPath(t.SourceURL)
		if !ok {
			return true, fmt.Sprintf("provenance not a file URL: %s", t.SourceURL), nil
		}
		origin, ok := mapping.Origin(target)
		if !ok {
			return true, fmt.Sprintf("unmapped descriptor %s", target), nil
		}
		if oracle.HasChanged(origin) {
			return true, fmt.Sprintf("changed file %s", origin), nil
		}
	}
	return false, "", nil
}

// Options configure a check run.
type Options struct {
	Unit string        // restrict the check to one unit; empty checks all
	Mode snapshot.Mode // fast or strict; empty means fast
}

// Run checks every configured unit (or the one named in opts) against
// the recorded baseline and writes the check-report artifact. A nil
// error means the check ran; staleness is reported per unit, not as an
// error.
func Run(root string, opts Options) (*model.CheckReport, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
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
	oracle := snapshot.NewOracle(root, baseline, mode)

	layout := resource.LayoutFromConfig(root, cfg)
	searchPath := cfg.ResolvedSearchPath(root)
	resolver := descriptor.PathResolver{}

	checks := make([]model.UnitCheck, 0, len(units))
	for _, u := range units {
		started := time.Now()

		// A changed root descriptor is stale before any import analysis.
		stale := false
		reason := ""
		if oracle.HasChanged(u.DescriptorPath(root)) {
			stale = true
			reason = fmt.Sprintf("changed descriptor %s", u.Descriptor)
		} else {
			stale, reason, err = IsStale(u.DescriptorPath(root), searchPath, layout, resolver, oracle)
			if err != nil {
				return nil, fmt.Errorf("check %s: %w", u.Name, err)
			}
		}
		logger.Debug("unit %s stale=%v %s", u.Name, stale, reason)

		checks = append(checks, model.UnitCheck{
			Name:       u.Name,
			Descriptor: u.Descriptor,
			Stale:      stale,
			Reason:     reason,
			DurationMs: time.Since(started).Milliseconds(),
		})
	}

	report := model.CheckReport{
		SchemaVersion: model.SchemaVersion,
		Kind:          model.KindCheckReport,
		RunID:         uuid.NewString(),
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
		Mode:          string(mode),
		Units:         checks,
		Provenance:    model.NewProvenance(),
	}
	out := config.OutputsPath(root, "check-report.json")
	if err := model.WriteCheckReport(out, report); err != nil {
		return nil, err
	}
	if err := validate.JSON(out, schemas.CheckReport); err != nil {
		return nil, err
	}
	return &report, nil
}
