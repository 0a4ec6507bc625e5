// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the run lifecycle that turns a loaded study
// into assembled scripts, decoupled from any specific entrypoint like a CLI.
package app
