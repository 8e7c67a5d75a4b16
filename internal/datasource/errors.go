package datasource

import "fmt"

// Resource names.
const (
	ResourceAreas = "areas"
	ResourcePeaks = "peaks"
)

// LoadError reports a failed fetch or parse of one of the two resources. A load fails as
// a unit, so one LoadError describes the whole failed load.
type LoadError struct {
	Err      error
	Resource string
	URL      string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s from %s: %v", e.Resource, e.URL, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
