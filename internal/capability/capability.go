// Package capability models the set of pipeline features enabled for a run.
//
// A Set is derived once from the declared toolset and the boolean switches in
// the pipeline configuration. It is an immutable value and can be shared
// freely between goroutines processing different samples.
package capability

import (
	"sort"
	"strings"
)

// Known capability names. The list mirrors the toolset vocabulary accepted in
// the pipeline configuration; names outside it are accepted but never match a
// stage.
const (
	Xenome      = "xenome"
	Seqpurge    = "seqpurge"
	Trimmomatic = "trimmomatic"

	Star      = "star"
	Hisat2    = "hisat2"
	Salmon    = "salmon"
	Bwa       = "bwa"
	Novoalign = "novoalign"

	Picard      = "picard"
	Rmdup       = "rmdup"
	QC          = "qc"
	AbraRealign = "abra_realign"
	GatkRealign = "gatk_realign"

	Vardict             = "vardict"
	Mutect1             = "mutect1"
	Mutect2             = "mutect2"
	Strelka2            = "strelka2"
	Lofreq              = "lofreq"
	Scalpel             = "scalpel"
	GatkHaplotypeCaller = "gatkHaplotypeCaller"
	Freebayes           = "freebayes"

	Rsem         = "rsem"
	FeatureCount = "featureCount"
	Cufflinks    = "cufflinks"
	Stringtie    = "stringtie"
)

// Set is an immutable mapping from capability name to enabled state.
type Set struct {
	enabled map[string]bool
}

// FromToolset builds a Set from the declared toolset names and explicit
// switches. Names are trimmed; blank names are ignored. A switch set to true
// enables a capability even when it is absent from the toolset, and a switch
// set to false disables it even when it is present.
func FromToolset(names []string, switches map[string]bool) Set {
	enabled := make(map[string]bool, len(names)+len(switches))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		enabled[name] = true
	}
	for name, on := range switches {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if on {
			enabled[name] = true
		} else {
			delete(enabled, name)
		}
	}
	return Set{enabled: enabled}
}

// Of is a shorthand for FromToolset without switches.
func Of(names ...string) Set {
	return FromToolset(names, nil)
}

// Enabled reports whether name is enabled. Unknown names are simply disabled.
func (s Set) Enabled(name string) bool {
	return s.enabled[name]
}

// Any reports whether at least one of names is enabled.
func (s Set) Any(names ...string) bool {
	for _, name := range names {
		if s.enabled[name] {
			return true
		}
	}
	return false
}

// Names returns the enabled capability names in lexical order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s.enabled))
	for name := range s.enabled {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of enabled capabilities.
func (s Set) Len() int {
	return len(s.enabled)
}
