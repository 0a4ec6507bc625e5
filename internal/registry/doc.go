// Package registry provides the central "glue" between configuration and
// compiled code.
//
// The Registry stores mappings between the string identifiers used in run
// configuration (e.g. "DnaVar_Fastq") and the Go implementations behind them.
// It is populated once at startup by the compiled-in modules and then only
// read, so lookups need no locking.
package registry
