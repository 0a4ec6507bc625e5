// Package hcl provides the concrete HCL implementation of the config.Loader
// interface. It is responsible for file discovery and parsing, decoding the
// schema structs, and converting free-form attributes to strings with cty.
package hcl
