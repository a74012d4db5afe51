package reference

import "context"

// Source provides the raw reference dataset. Implementations read a
// backing database; the engine loads the dataset fully into memory at
// process start and never goes back to the source afterwards.
type Source interface {
	Load(ctx context.Context) (*Dataset, error)
}
