package categories_test

import (
	"errors"
	"testing"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/categories"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/moodle"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/domain/models"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/testutil"
)

func TestUpsert_CreateThenIdempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fx := testutil.NewFixtures(t, db)
	store := categories.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	spec := categories.Spec{IDNumber: "0290009C", Name: "Lycée Jean Moulin", Description: "0290009C"}
	cat, outcome, err := store.Upsert(ctx, spec, 1000)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if outcome != moodle.Created {
		t.Errorf("outcome = %v, want created", outcome)
	}
	if cat.Path == "" || cat.SortOrder == 0 {
		t.Errorf("expected path and sortorder, got %+v", cat)
	}
	fx.ContextFor(models.ContextCategory, cat.ID)

	again, outcome, err := store.Upsert(ctx, spec, 2000)
	if err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}
	if outcome != moodle.Unchanged || again.ID != cat.ID {
		t.Errorf("second Upsert = %v id %d, want unchanged id %d", outcome, again.ID, cat.ID)
	}
	if again.TimeModified != 1000 {
		t.Errorf("unchanged category must keep timemodified, got %d", again.TimeModified)
	}
	if n := fx.Count(moodle.TableCategories, ""); n != 1 {
		t.Errorf("expected 1 category, got %d", n)
	}
	if n := fx.Count(moodle.TableContext, "contextlevel = ?", models.ContextCategory); n != 1 {
		t.Errorf("expected 1 category context, got %d", n)
	}
}

func TestUpsert_RenamesOnGroupingChange(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := categories.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, _, err := store.Upsert(ctx, categories.Spec{IDNumber: "G1", Name: "Groupe", Description: "A"}, 1); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	cat, outcome, err := store.Upsert(ctx, categories.Spec{IDNumber: "G1", Name: "Groupe", Description: "A, B"}, 2)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if outcome != moodle.Updated || cat.Description != "A, B" || cat.TimeModified != 2 {
		t.Errorf("unexpected update: %v %+v", outcome, cat)
	}

	stored, err := store.GetByIDNumber(ctx, "G1")
	if err != nil || stored.Description != "A, B" {
		t.Errorf("stored = %+v, %v", stored, err)
	}
}

func TestUpsert_Ambiguous(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fx := testutil.NewFixtures(t, db)
	store := categories.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx.CreateCategory("One", "0290009C", 0)
	fx.CreateCategory("Two", "0290009C", 0)

	_, _, err := store.Upsert(ctx, categories.Spec{IDNumber: "0290009C", Name: "X"}, 1)
	if !errors.Is(err, moodle.ErrAmbiguous) {
		t.Errorf("expected ErrAmbiguous, got %v", err)
	}
}
