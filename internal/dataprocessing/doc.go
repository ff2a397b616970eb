// Package dataprocessing turns the raw per-year PEDE survey frames into a
// single typed, analysis-ready dataset and builds the temporal training
// pairs derived from it.
//
// The stages run in a fixed order:
//
//  1. Header normalization and duplicate resolution (headers.go)
//  2. Legacy-label crosswalk onto canonical column names (crosswalk.go)
//  3. Per-year harmonization and cross-year schema alignment (harmonize.go)
//  4. Dtype standardization with per-column coercion reports (dtypes.go)
//  5. Category label normalization (categories.go)
//  6. Cohort overlap statistics over student ids (cohort.go)
//
// Pipeline (pipeline.go) composes stages 1 through 6. On top of the
// prepared frames, the temporal pair builder (pairs.go) joins consecutive
// years on the student id, derives the target from the later year's school
// lag and enforces the leakage guards (leakage.go, features.go).
//
// Data-quality anomalies never abort a run: unparseable cells degrade to
// the missing marker and are tallied in the stage reports. Only
// configuration mistakes and pipeline invariant violations surface as
// errors.
package dataprocessing
