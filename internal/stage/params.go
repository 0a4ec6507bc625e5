package stage

// toolDefaults are the executables assumed on PATH when a tool block does not
// configure one.
var toolDefaults = map[string]string{
	"xenome":       "xenome",
	"seqpurge":     "SeqPurge",
	"trimmomatic":  "trimmomatic",
	"star":         "STAR",
	"hisat2":       "hisat2",
	"salmon":       "salmon",
	"bwa":          "bwa",
	"novoalign":    "novoalign",
	"samtools":     "samtools",
	"picard":       "picard",
	"abra":         "abra2",
	"gatk":         "gatk",
	"java":         "java",
	"vardict":      "vardict-java",
	"mutect1":      "mutect.jar",
	"strelka2":     "/opt/strelka2",
	"lofreq":       "lofreq",
	"scalpel":      "/opt/scalpel",
	"freebayes":    "freebayes",
	"snpeff":       "snpEff.jar",
	"rsem":         "/opt/rsem",
	"featureCount": "featureCounts",
	"cufflinks":    "cufflinks",
	"stringtie":    "stringtie",
}

// databaseKeys are the reference entries templates may read. Missing ones
// render as empty strings.
var databaseKeys = []string{
	"genome",
	"bed",
	"bwa_index",
	"novoindex",
	"star_index",
	"hisat2_index",
	"salmon_index",
	"xenome_index",
	"rsem_index",
	"adapter_fwd",
	"adapter_rev",
	"adapter_seq",
	"known_indels",
	"known_snp",
	"dbsnp",
	"cosmic",
	"snpeff_db",
	"annotgene",
}

// DefaultParams returns the baseline tool and database parameters.
func DefaultParams() map[string]string {
	out := make(map[string]string, len(toolDefaults)+len(databaseKeys))
	for tool, path := range toolDefaults {
		out[tool+".path"] = path
	}
	for _, key := range databaseKeys {
		out["database."+key] = ""
	}
	return out
}
