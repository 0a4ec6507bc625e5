// Package stage composes the per-sample pipeline from capability-gated steps.
//
// A phase is a Stage: an ordered list of Defs, each pairing a Predicate with a
// Func. Apply runs every Def whose predicate holds, in declared order, and
// threads the Artifact from one to the next. Mutually exclusive tools are
// grouped with FirstOf, which runs only the first Def whose predicate holds,
// so precedence is visible in the declaration itself.
//
// Phases run strictly in sequence:
//
//	PreProcessing    species deconvolution, then read trimming
//	PrimaryTransform one aligner or quantifier, or a pass-through
//	PostProcessing   duplicate marking, QC, realignment, recalibration
//	Secondary        capability-gated fan-out, one side Artifact per tool
//
// Stage functions only render commands and compute paths. They never touch
// the filesystem, which keeps assembly free of side effects until the script
// assembler writes the result.
package stage
