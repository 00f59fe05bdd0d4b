// Package vtl models VTL transformation schemes fetched from an SDMX
// registry. Executing the rule language itself is delegated to a Runner
// implementation supplied by the caller; this package only defines the
// contract and the scheme shape.
package vtl

import (
	"context"

	"github.com/leibridge/leibridge/internal/dataset"
)

// Transformation is a single VTL statement within a scheme.
type Transformation struct {
	ID         string
	Expression string
	Result     string
	Persistent bool
}

// Scheme is a versioned set of transformations owned by one agency.
type Scheme struct {
	Agency          string
	ID              string
	Version         string
	Transformations []Transformation
}

// PersistentResults returns the names of results the scheme persists.
func (s *Scheme) PersistentResults() []string {
	var names []string
	for _, tr := range s.Transformations {
		if tr.Persistent {
			names = append(names, tr.Result)
		}
	}
	return names
}

// Result is one named output table produced by a scheme run.
type Result struct {
	Name  string
	Table *dataset.Table
}

// Runner executes a transformation scheme against a validated dataset.
// Implementations live outside this repository; the pipeline only invokes
// whatever Runner it is configured with.
type Runner interface {
	Run(ctx context.Context, scheme *Scheme, data *dataset.Table) ([]Result, error)
}
