// Package cli implements the typesmith command line interface.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/koksalmehmet/typesmith/internal/config"
	"github.com/koksalmehmet/typesmith/internal/generate"
	"github.com/koksalmehmet/typesmith/internal/logger"
	"github.com/koksalmehmet/typesmith/internal/model"
	"github.com/koksalmehmet/typesmith/internal/snapshot"
	"github.com/koksalmehmet/typesmith/internal/stale"
	"github.com/koksalmehmet/typesmith/internal/watch"
)

func Run(args []string) error {
	if len(args) == 0 {
		return usage()
	}
	switch args[0] {
	case "version", "--version", "-v":
		return cmdVersion()
	case "init":
		return cmdInit(args[1:])
	case "snapshot":
		return cmdSnapshot(args[1:])
	case "check":
		return cmdCheck(args[1:])
	case "generate":
		return cmdGenerate(args[1:])
	case "watch":
		return cmdWatch(args[1:])
	case "help", "-h", "--help":
		return usage()
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func usage() error {
	fmt.Println(`typesmith commands: init | snapshot | check | generate | watch | version

Examples:
  typesmith init
  typesmith snapshot
  typesmith check --ci
  typesmith check --unit core --strict
  typesmith generate --dry-run
  typesmith watch --generate`)
	return nil
}

func setLogLevel(verbose, debug bool) {
	if debug {
		logger.SetLevel(logger.LevelDebug)
	} else if verbose {
		logger.SetLevel(logger.LevelInfo)
	}
}

func addCommonFlags(fs *flag.FlagSet) (root *string, verbose, debug *bool) {
	root = fs.String("root", ".", "project root")
	verbose = fs.Bool("verbose", false, "show progress information")
	debug = fs.Bool("debug", false, "show debug information")
	return root, verbose, debug
}

func modeFlag(strict bool) snapshot.Mode {
	if strict {
		return snapshot.ModeStrict
	}
	return snapshot.ModeFast
}

func cmdInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	root, verbose, debug := addCommonFlags(fs)
	force := fs.Bool("force", false, "overwrite an existing config.jsonc")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setLogLevel(*verbose, *debug)

	rootPath, err := filepath.Abs(*root)
	if err != nil {
		return err
	}
	if _, err := config.EnsureLayout(rootPath); err != nil {
		return err
	}
	if err := config.WriteConfigTemplate(rootPath, filepath.Base(rootPath), *force); err != nil {
		return err
	}
	if err := config.CopySchemas(rootPath); err != nil {
		return err
	}

	fmt.Printf("initialized typesmith workspace in %s\n", filepath.Join(rootPath, ".typesmith"))
	fmt.Printf("declare units in %s\n", filepath.Join(rootPath, ".typesmith", "config.jsonc"))
	return nil
}

func cmdSnapshot(args []string) error {
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	root, verbose, debug := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	setLogLevel(*verbose, *debug)

	rootPath, err := filepath.Abs(*root)
	if err != nil {
		return err
	}
	cfg, err := config.Load(rootPath)
	if err != nil {
		return err
	}
	summary, err := snapshot.Run(rootPath, cfg)
	if err != nil {
		return err
	}

	fmt.Printf("recorded %d files (%d bytes) as snapshot %s\n", summary.FileCount, summary.TotalBytes, summary.SnapshotID)
	fmt.Printf("summary written to %s\n", config.OutputsPath(rootPath, "snapshot.json"))
	return nil
}

func cmdCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	root, verbose, debug := addCommonFlags(fs)
	unit := fs.String("unit", "", "check a single unit by name")
	strict := fs.Bool("strict", false, "hash every candidate instead of trusting size+modtime")
	ci := fs.Bool("ci", false, "exit non-zero when any unit is stale")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setLogLevel(*verbose, *debug)

	rootPath, err := filepath.Abs(*root)
	if err != nil {
		return err
	}
	report, err := stale.Run(rootPath, stale.Options{Unit: *unit, Mode: modeFlag(*strict)})
	if err != nil {
		return err
	}

	staleCount := printChecks(report.Units)
	fmt.Printf("report written to %s\n", config.OutputsPath(rootPath, "check-report.json"))
	if *ci && staleCount > 0 {
		return fmt.Errorf("%d of %d units stale", staleCount, len(report.Units))
	}
	return nil
}

func cmdGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	root, verbose, debug := addCommonFlags(fs)
	unit := fs.String("unit", "", "generate a single unit by name")
	strict := fs.Bool("strict", false, "hash every candidate instead of trusting size+modtime")
	force := fs.Bool("force", false, "regenerate even when fresh")
	dryRun := fs.Bool("dry-run", false, "report what would run without running it")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setLogLevel(*verbose, *debug)

	rootPath, err := filepath.Abs(*root)
	if err != nil {
		return err
	}
	manifest, err := generate.Run(context.Background(), rootPath, generate.Options{
		Unit:   *unit,
		Mode:   modeFlag(*strict),
		Force:  *force,
		DryRun: *dryRun,
	})
	if manifest != nil {
		printOutcomes(manifest.Units)
		fmt.Printf("manifest written to %s\n", config.OutputsPath(rootPath, "generation-manifest.json"))
	}
	return err
}

func cmdWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	root, verbose, debug := addCommonFlags(fs)
	gen := fs.Bool("generate", false, "run the generator on stale units instead of only reporting")
	strict := fs.Bool("strict", false, "hash every candidate instead of trusting size+modtime")
	debounce := fs.Duration("debounce", watch.DefaultDebounce, "quiet period before rechecking")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setLogLevel(*verbose, *debug)

	rootPath, err := filepath.Abs(*root)
	if err != nil {
		return err
	}
	mode := modeFlag(*strict)

	// Initial pass so the terminal shows the current state right away.
	if err := watchPass(rootPath, mode, *gen); err != nil {
		return err
	}

	passCount := 0
	onChange := func(changes []watch.FileChange) error {
		passCount++
		fmt.Printf("\n[%s] pass #%d: %d changes\n", time.Now().Format("15:04:05"), passCount, len(changes))
		for _, c := range changes {
			logger.Debug("%s %s", c.Action, c.Path)
		}
		if err := watchPass(rootPath, mode, *gen); err != nil {
			// Keep watching; a broken descriptor will be fixed by a
			// later edit that triggers the next pass.
			fmt.Fprintf(os.Stderr, "recheck: %v\n", err)
		}
		return nil
	}

	w, err := watch.New(rootPath, onChange, watch.Options{
		Debounce: *debounce,
		Excludes: config.LoadExcludes(rootPath),
	})
	if err != nil {
		return err
	}

	fmt.Printf("\nwatching %s (debounce %v); press Ctrl+C to stop\n", rootPath, *debounce)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nstopping watcher...")
		cancel()
	}()

	if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func watchPass(rootPath string, mode snapshot.Mode, doGenerate bool) error {
	if doGenerate {
		manifest, err := generate.Run(context.Background(), rootPath, generate.Options{Mode: mode})
		if manifest != nil {
			printOutcomes(manifest.Units)
		}
		return err
	}
	report, err := stale.Run(rootPath, stale.Options{Mode: mode})
	if err != nil {
		return err
	}
	printChecks(report.Units)
	return nil
}

func printChecks(units []model.UnitCheck) int {
	staleCount := 0
	for _, u := range units {
		if u.Stale {
			staleCount++
			fmt.Printf("%s: stale (%s)\n", u.Name, u.Reason)
			continue
		}
		fmt.Printf("%s: up to date\n", u.Name)
	}
	return staleCount
}

func printOutcomes(units []model.UnitOutcome) {
	for _, u := range units {
		if u.Reason != "" {
			fmt.Printf("%s: %s (%s)\n", u.Name, u.Outcome, u.Reason)
			continue
		}
		fmt.Printf("%s: %s\n", u.Name, u.Outcome)
	}
}
