// Package model defines the JSON artifacts typesmith writes under
// .typesmith/outputs.
package model

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Artifact schema version and kinds.
const (
	SchemaVersion          = "1.0.0"
	KindCheckReport        = "typesmith/check-report"
	KindGenerationManifest = "typesmith/generation-manifest"
	KindSnapshot           = "typesmith/snapshot"
)

// Provenance tracks the origin and creation details of an artifact.
type Provenance struct {
	CreatedBy string `json:"createdBy"`
	CreatedAt string `json:"createdAt"`
}

// NewProvenance stamps an artifact with its creator and creation time.
func NewProvenance() Provenance {
	return Provenance{
		CreatedBy: "typesmith",
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// UnitCheck is the check result for one generation unit.
type UnitCheck struct {
	Name       string `json:"name"`
	Descriptor string `json:"descriptor"`
	Stale      bool   `json:"stale"`
	Reason     string `json:"reason,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// CheckReport is the JSON artifact describing a staleness check run.
type CheckReport struct {
	SchemaVersion string      `json:"schemaVersion"`
	Kind          string      `json:"kind"`
	RunID         string      `json:"runId"`
	GeneratedAt   string      `json:"generatedAt"`
	Mode          string      `json:"mode"`
	Units         []UnitCheck `json:"units"`
	Provenance    Provenance  `json:"provenance"`
}

// Generation outcomes recorded per unit in the manifest.
const (
	OutcomeGenerated = "generated"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// UnitOutcome is the generation result for one unit.
type UnitOutcome struct {
	Name       string   `json:"name"`
	Descriptor string   `json:"descriptor"`
	OutputDir  string   `json:"outputDir"`
	Outcome    string   `json:"outcome"`
	Reason     string   `json:"reason,omitempty"`
	Command    []string `json:"command,omitempty"`
	DurationMs int64    `json:"durationMs"`
}

// GenerationManifest is the JSON artifact describing a generate run.
type GenerationManifest struct {
	SchemaVersion string        `json:"schemaVersion"`
	Kind          string        `json:"kind"`
	RunID         string        `json:"runId"`
	StartedAt     string        `json:"startedAt"`
	CompletedAt   string        `json:"completedAt"`
	CommitHash    string        `json:"commitHash,omitempty"`
	Units         []UnitOutcome `json:"units"`
	Provenance    Provenance    `json:"provenance"`
}

// SnapshotSummary is the JSON artifact describing a recorded baseline.
type SnapshotSummary struct {
	SchemaVersion string     `json:"schemaVersion"`
	Kind          string     `json:"kind"`
	SnapshotID    string     `json:"snapshotId"`
	StartedAt     string     `json:"startedAt"`
	CompletedAt   string     `json:"completedAt"`
	FileCount     int        `json:"fileCount"`
	TotalBytes    int64      `json:"totalBytes"`
	CommitHash    string     `json:"commitHash,omitempty"`
	Provenance    Provenance `json:"provenance"`
}

func writeArtifact(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// WriteCheckReport writes the report to disk.
func WriteCheckReport(path string, r CheckReport) error {
	return writeArtifact(path, r)
}

// LoadCheckReport reads a report from disk.
func LoadCheckReport(path string) (CheckReport, error) {
	var r CheckReport
	data, err := os.ReadFile(path)
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("parse %s: %w", path, err)
	}
	return r, nil
}

// WriteGenerationManifest writes the manifest to disk.
func WriteGenerationManifest(path string, m GenerationManifest) error {
	return writeArtifact(path, m)
}

// LoadGenerationManifest reads a manifest from disk.
func LoadGenerationManifest(path string) (GenerationManifest, error) {
	var m GenerationManifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

// WriteSnapshotSummary writes the summary to disk.
func WriteSnapshotSummary(path string, s SnapshotSummary) error {
	return writeArtifact(path, s)
}

// LoadSnapshotSummary reads the summary from disk.
func LoadSnapshotSummary(path string) (SnapshotSummary, error) {
	var s SnapshotSummary
	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse %s: %w", path, err)
	}
	return s, nil
}
