package memory

import (
	"context"
	"errors"
	"testing"

	"experiment-lab/internal/domain"
	"experiment-lab/internal/storage"
)

func TestUnitStore_InsertAndGet(t *testing.T) {
	store := NewUnitStore()
	ctx := context.Background()

	unit := &domain.ExperimentUnit{
		UnitID:         "user_000001",
		ExperimentID:   "homepage_redesign_v1",
		Variant:        domain.VariantControl,
		AssignedAt:     1000,
		FirstExposedAt: 2000,
		Eligible:       true,
		Clicked:        true,
		DeviceCategory: "mobile",
		Country:        "US",
	}

	if err := store.Insert(ctx, unit); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	units, err := store.GetByExperimentID(ctx, "homepage_redesign_v1")
	if err != nil {
		t.Fatalf("GetByExperimentID failed: %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("Expected 1 unit, got %d", len(units))
	}
	if units[0].UnitID != "user_000001" || !units[0].Clicked {
		t.Errorf("Unit mismatch: got %+v", units[0])
	}
}

func TestUnitStore_DuplicateKey(t *testing.T) {
	store := NewUnitStore()
	ctx := context.Background()

	unit := &domain.ExperimentUnit{
		UnitID:       "user_000001",
		ExperimentID: "exp1",
		Variant:      domain.VariantControl,
	}

	if err := store.Insert(ctx, unit); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, unit)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestUnitStore_SameUnitDifferentExperiments(t *testing.T) {
	store := NewUnitStore()
	ctx := context.Background()

	// The key is (experiment_id, unit_id): the same user may appear in
	// two different experiments.
	a := &domain.ExperimentUnit{UnitID: "user_1", ExperimentID: "exp_a", Variant: domain.VariantControl}
	b := &domain.ExperimentUnit{UnitID: "user_1", ExperimentID: "exp_b", Variant: domain.VariantTreatment}

	if err := store.Insert(ctx, a); err != nil {
		t.Fatalf("Insert a failed: %v", err)
	}
	if err := store.Insert(ctx, b); err != nil {
		t.Fatalf("Insert b failed: %v", err)
	}

	countA, _ := store.CountByExperimentID(ctx, "exp_a")
	countB, _ := store.CountByExperimentID(ctx, "exp_b")
	if countA != 1 || countB != 1 {
		t.Errorf("Expected 1 unit per experiment, got %d and %d", countA, countB)
	}
}

func TestUnitStore_InsertBulk(t *testing.T) {
	store := NewUnitStore()
	ctx := context.Background()

	units := []*domain.ExperimentUnit{
		{UnitID: "u1", ExperimentID: "exp1", Variant: domain.VariantControl, AssignedAt: 1000},
		{UnitID: "u2", ExperimentID: "exp1", Variant: domain.VariantTreatment, AssignedAt: 2000},
		{UnitID: "u3", ExperimentID: "exp2", Variant: domain.VariantControl, AssignedAt: 3000},
	}

	if err := store.InsertBulk(ctx, units); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	count, err := store.CountByExperimentID(ctx, "exp1")
	if err != nil {
		t.Fatalf("CountByExperimentID failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 units for exp1, got %d", count)
	}
}

func TestUnitStore_InsertBulkPartialDuplicate(t *testing.T) {
	store := NewUnitStore()
	ctx := context.Background()

	first := &domain.ExperimentUnit{UnitID: "u1", ExperimentID: "exp1", Variant: domain.VariantControl}
	if err := store.Insert(ctx, first); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	units := []*domain.ExperimentUnit{
		{UnitID: "u2", ExperimentID: "exp1", Variant: domain.VariantControl},
		{UnitID: "u1", ExperimentID: "exp1", Variant: domain.VariantTreatment}, // duplicate
	}

	err := store.InsertBulk(ctx, units)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	// Verify all-or-nothing
	count, _ := store.CountByExperimentID(ctx, "exp1")
	if count != 1 {
		t.Errorf("Expected 1 unit (no partial insert), got %d", count)
	}
}

func TestUnitStore_InsertBulkIntraBatchDuplicate(t *testing.T) {
	store := NewUnitStore()
	ctx := context.Background()

	units := []*domain.ExperimentUnit{
		{UnitID: "u1", ExperimentID: "exp1", Variant: domain.VariantControl},
		{UnitID: "u1", ExperimentID: "exp1", Variant: domain.VariantTreatment},
	}

	err := store.InsertBulk(ctx, units)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey for intra-batch duplicate, got %v", err)
	}

	count, _ := store.CountByExperimentID(ctx, "exp1")
	if count != 0 {
		t.Errorf("Expected 0 units after failed batch, got %d", count)
	}
}

func TestUnitStore_GetByExperimentID_Ordering(t *testing.T) {
	store := NewUnitStore()
	ctx := context.Background()

	// Inserted out of order; same AssignedAt for u2/u1 exercises the
	// UnitID tie-break.
	units := []*domain.ExperimentUnit{
		{UnitID: "u3", ExperimentID: "exp1", Variant: domain.VariantControl, AssignedAt: 3000},
		{UnitID: "u2", ExperimentID: "exp1", Variant: domain.VariantControl, AssignedAt: 1000},
		{UnitID: "u1", ExperimentID: "exp1", Variant: domain.VariantTreatment, AssignedAt: 1000},
	}
	if err := store.InsertBulk(ctx, units); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByExperimentID(ctx, "exp1")
	if err != nil {
		t.Fatalf("GetByExperimentID failed: %v", err)
	}

	wantOrder := []string{"u1", "u2", "u3"}
	for i, want := range wantOrder {
		if got[i].UnitID != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, got[i].UnitID)
		}
	}
}

func TestUnitStore_CopyOnWrite(t *testing.T) {
	store := NewUnitStore()
	ctx := context.Background()

	unit := &domain.ExperimentUnit{UnitID: "u1", ExperimentID: "exp1", Variant: domain.VariantControl}
	if err := store.Insert(ctx, unit); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Mutating the caller's struct must not leak into the store.
	unit.Variant = domain.VariantTreatment

	got, _ := store.GetByExperimentID(ctx, "exp1")
	if got[0].Variant != domain.VariantControl {
		t.Error("Store leaked caller mutation")
	}

	// Mutating the returned copy must not leak either.
	got[0].Clicked = true
	again, _ := store.GetByExperimentID(ctx, "exp1")
	if again[0].Clicked {
		t.Error("Store leaked read-side mutation")
	}
}

func TestUnitStore_InvalidInput(t *testing.T) {
	store := NewUnitStore()
	ctx := context.Background()

	err := store.Insert(ctx, nil)
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil, got %v", err)
	}

	err = store.Insert(ctx, &domain.ExperimentUnit{UnitID: "", ExperimentID: "exp1"})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty unit_id, got %v", err)
	}

	err = store.Insert(ctx, &domain.ExperimentUnit{UnitID: "u1", ExperimentID: ""})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty experiment_id, got %v", err)
	}
}
