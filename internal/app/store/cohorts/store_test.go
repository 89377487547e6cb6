package cohorts_test

import (
	"errors"
	"testing"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/cohorts"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/moodle"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/testutil"
)

func TestEnsure_CreateThenUnchanged(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fx := testutil.NewFixtures(t, db)
	store := cohorts.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, catCtx := fx.CreateCategory("Cat", "0290009C", 0)
	spec := cohorts.Spec{ContextID: catCtx.ID, IDNumber: "class:0290009C:ts2", Name: "Élèves de la classe TS2"}

	c, outcome, err := store.Ensure(ctx, spec, 10)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if outcome != moodle.Created || c.Component != cohorts.Component {
		t.Errorf("unexpected create: %v %+v", outcome, c)
	}

	again, outcome, err := store.Ensure(ctx, spec, 20)
	if err != nil || outcome != moodle.Unchanged || again.ID != c.ID {
		t.Errorf("second Ensure = %v %+v %v", outcome, again, err)
	}
}

func TestEnsure_AdoptsByName(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fx := testutil.NewFixtures(t, db)
	store := cohorts.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, catCtx := fx.CreateCategory("Cat", "0290009C", 0)
	legacy := fx.CreateCohort(catCtx.ID, "Élèves de la classe TS2", "")

	c, outcome, err := store.Ensure(ctx, cohorts.Spec{
		ContextID: catCtx.ID, IDNumber: "class:0290009C:ts2", Name: "Élèves de la classe TS2",
	}, 10)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if outcome != moodle.Updated || c.ID != legacy.ID || c.IDNumber != "class:0290009C:ts2" {
		t.Errorf("expected legacy cohort adopted, got %v %+v", outcome, c)
	}
}

func TestEnsure_MovesToSpecContext(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fx := testutil.NewFixtures(t, db)
	store := cohorts.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, oldCtx := fx.CreateCategory("Lycée", "0290009C", 0)
	_, newCtx := fx.CreateCategory("Lycées du Finistère", "LYC29", 0)
	spec := cohorts.Spec{ContextID: oldCtx.ID, IDNumber: "class:0290009C:ts2", Name: "Élèves de la classe TS2"}
	first, _, err := store.Ensure(ctx, spec, 10)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	spec.ContextID = newCtx.ID
	spec.Name = "Élèves de la classe TS2 (0290009C)"
	moved, outcome, err := store.Ensure(ctx, spec, 20)
	if err != nil {
		t.Fatalf("second Ensure failed: %v", err)
	}
	if outcome != moodle.Updated || moved.ID != first.ID {
		t.Errorf("expected the cohort to be updated in place, got %v %+v", outcome, moved)
	}
	reloaded, err := store.GetByIDNumber(ctx, spec.IDNumber)
	if err != nil || reloaded == nil {
		t.Fatalf("GetByIDNumber: %+v %v", reloaded, err)
	}
	if reloaded.ContextID != newCtx.ID {
		t.Errorf("cohort context = %d, want %d", reloaded.ContextID, newCtx.ID)
	}
}

func TestEnsure_MoveRefusedWhenNameTaken(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fx := testutil.NewFixtures(t, db)
	store := cohorts.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, oldCtx := fx.CreateCategory("Lycée", "0290009C", 0)
	_, newCtx := fx.CreateCategory("Lycées du Finistère", "LYC29", 0)
	spec := cohorts.Spec{ContextID: oldCtx.ID, IDNumber: "class:0290009C:ts2", Name: "Élèves TS2"}
	if _, _, err := store.Ensure(ctx, spec, 10); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	fx.CreateCohort(newCtx.ID, "Élèves TS2", "manual")

	spec.ContextID = newCtx.ID
	if _, _, err := store.Ensure(ctx, spec, 20); !errors.Is(err, cohorts.ErrNameTaken) {
		t.Errorf("expected ErrNameTaken, got %v", err)
	}
}

func TestEnsure_NameOwnedElsewhere(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fx := testutil.NewFixtures(t, db)
	store := cohorts.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, catCtx := fx.CreateCategory("Cat", "0290009C", 0)
	fx.CreateCohort(catCtx.ID, "Élèves de la classe TS2", "manual-42")

	_, _, err := store.Ensure(ctx, cohorts.Spec{
		ContextID: catCtx.ID, IDNumber: "class:0290009C:ts2", Name: "Élèves de la classe TS2",
	}, 10)
	if !errors.Is(err, cohorts.ErrNameTaken) {
		t.Errorf("expected ErrNameTaken, got %v", err)
	}
}

func TestMembership(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fx := testutil.NewFixtures(t, db)
	store := cohorts.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	c := fx.CreateCohort(1, "c", "x")
	u := fx.CreateUser("u", "U", "U")

	added, err := store.AddMember(ctx, c.ID, u.ID, 1)
	if err != nil || !added {
		t.Fatalf("AddMember = %v, %v", added, err)
	}
	added, err = store.AddMember(ctx, c.ID, u.ID, 2)
	if err != nil || added {
		t.Errorf("second AddMember = %v, %v; want false", added, err)
	}
	members, err := store.Members(ctx, c.ID)
	if err != nil || len(members) != 1 {
		t.Fatalf("Members = %v, %v", members, err)
	}

	removed, err := store.RemoveMember(ctx, c.ID, u.ID)
	if err != nil || !removed {
		t.Errorf("RemoveMember = %v, %v", removed, err)
	}
	removed, err = store.RemoveMember(ctx, c.ID, u.ID)
	if err != nil || removed {
		t.Errorf("second RemoveMember = %v, %v; want false", removed, err)
	}
}

func TestListByIDNumberPrefix(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fx := testutil.NewFixtures(t, db)
	store := cohorts.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx.CreateCohort(1, "a", "class:0290009C:ts2")
	fx.CreateCohort(1, "b", "class:0290009C:ts3")
	fx.CreateCohort(1, "c", "class:0290010D:ts2")
	fx.CreateCohort(1, "d", "level:0290009C:terminale")

	got, err := store.ListByIDNumberPrefix(ctx, "class:0290009C:")
	if err != nil {
		t.Fatalf("ListByIDNumberPrefix failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 cohorts, got %+v", got)
	}
}

func TestDeleteEmpty(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fx := testutil.NewFixtures(t, db)
	store := cohorts.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	full := fx.CreateCohort(1, "full", "a")
	fx.CreateCohort(1, "empty", "b")
	fx.CreateCohort(1, "manual-empty", "")
	fx.AddCohortMember(full.ID, fx.CreateUser("u", "U", "U").ID)

	deleted, err := store.DeleteEmpty(ctx)
	if err != nil {
		t.Fatalf("DeleteEmpty failed: %v", err)
	}
	if len(deleted) != 2 {
		t.Errorf("expected 2 deleted cohorts, got %d", len(deleted))
	}
	if n := fx.Count(moodle.TableCohort, ""); n != 1 {
		t.Errorf("expected 1 cohort left, got %d", n)
	}
}
