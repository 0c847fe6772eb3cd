package model_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/koksalmehmet/typesmith/internal/model"
	"github.com/koksalmehmet/typesmith/internal/validate"
	"github.com/koksalmehmet/typesmith/schemas"
)

func TestCheckReportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "check-report.json")

	report := model.CheckReport{
		SchemaVersion: "1.0.0",
		Kind:          "typesmith/check-report",
		RunID:         "a2c5f1de-0000-4000-8000-000000000001",
		GeneratedAt:   "2025-03-14T09:26:53Z",
		Mode:          "fast",
		Units: []model.UnitCheck{
			{Name: "core", Descriptor: "types/Core.xml", Stale: true, Reason: "changed file types/Core.xml", DurationMs: 12},
		},
		Provenance: model.Provenance{CreatedBy: "typesmith check", CreatedAt: "2025-03-14T09:26:53Z"},
	}
	if err := model.WriteCheckReport(path, report); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := validate.JSON(path, schemas.CheckReport); err != nil {
		t.Fatalf("artifact does not validate: %v", err)
	}

	got, err := model.LoadCheckReport(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.RunID != report.RunID || len(got.Units) != 1 || !got.Units[0].Stale {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("perm = %v, want 0600", info.Mode().Perm())
	}
}

func TestGenerationManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "generation-manifest.json")

	manifest := model.GenerationManifest{
		SchemaVersion: "1.0.0",
		Kind:          "typesmith/generation-manifest",
		RunID:         "a2c5f1de-0000-4000-8000-000000000002",
		StartedAt:     "2025-03-14T09:26:53Z",
		CompletedAt:   "2025-03-14T09:26:54Z",
		CommitHash:    "0123abcd",
		Units: []model.UnitOutcome{
			{
				Name:       "core",
				Descriptor: "types/Core.xml",
				OutputDir:  "gen/types",
				Outcome:    model.OutcomeGenerated,
				Command:    []string{"jcasgen", "types/Core.xml", "gen/types"},
				DurationMs: 840,
			},
			{Name: "aux", Descriptor: "types/Aux.xml", OutputDir: "gen/aux", Outcome: model.OutcomeSkipped, Reason: "up to date"},
		},
		Provenance: model.Provenance{CreatedBy: "typesmith generate", CreatedAt: "2025-03-14T09:26:54Z"},
	}
	if err := model.WriteGenerationManifest(path, manifest); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := validate.JSON(path, schemas.GenerationManifest); err != nil {
		t.Fatalf("artifact does not validate: %v", err)
	}

	got, err := model.LoadGenerationManifest(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Units) != 2 || got.Units[1].Outcome != model.OutcomeSkipped {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestSnapshotSummaryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")

	summary := model.SnapshotSummary{
		SchemaVersion: "1.0.0",
		Kind:          "typesmith/snapshot",
		SnapshotID:    "a2c5f1de-0000-4000-8000-000000000003",
		StartedAt:     "2025-03-14T09:26:53Z",
		CompletedAt:   "2025-03-14T09:26:53Z",
		FileCount:     3,
		TotalBytes:    2048,
		Provenance:    model.Provenance{CreatedBy: "typesmith snapshot", CreatedAt: "2025-03-14T09:26:53Z"},
	}
	if err := model.WriteSnapshotSummary(path, summary); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := validate.JSON(path, schemas.Snapshot); err != nil {
		t.Fatalf("artifact does not validate: %v", err)
	}

	got, err := model.LoadSnapshotSummary(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.FileCount != 3 || got.TotalBytes != 2048 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}
