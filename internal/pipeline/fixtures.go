package pipeline

import (
	"context"

	"experiment-lab/internal/config"
	"experiment-lab/internal/datagen"
	"experiment-lab/internal/storage"
)

// LoadFixtures populates the unit store with a synthetic dataset generated
// from cfg. A fixed seed makes the fixture data identical across runs, so
// demonstrations work reproducibly without a database.
func LoadFixtures(ctx context.Context, cfg *config.Config, unitStore storage.UnitStore) error {
	units, err := datagen.New(cfg).Generate()
	if err != nil {
		return err
	}
	return unitStore.InsertBulk(ctx, units)
}
