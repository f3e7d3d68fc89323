package query

import (
	"github.com/atomicbase/directory/data"
	"github.com/atomicbase/directory/hooks"
)

// Hooks are the interception points of a list query.
type Hooks struct {
	// Clauses sees the assembled plan before rendering. Skipped when the
	// filter suppresses hooks.
	Clauses    hooks.Chain[*Plan]
	RandomSeed hooks.Chain[int64]
	Results    hooks.Chain[[]data.Row]
}
