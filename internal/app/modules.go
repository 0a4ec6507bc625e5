package app

import (
	"github.com/specialistvlad/genoflow/internal/registry"
	"github.com/specialistvlad/genoflow/internal/workflow"
)

// coreModules is the definitive list of all modules that are compiled into
// the genoflow binary.
var coreModules = []registry.Module[workflow.Workflow]{
	workflow.Module{},
}
