package references_test

import (
	"testing"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/moodle"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/references"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/testutil"
)

func TestFind(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fx := testutil.NewFixtures(t, db)
	checker := references.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	clean := fx.CreateUser("clean", "C", "C")
	active := fx.CreateUser("active", "A", "A")
	fx.AddReference("forum_posts", active.ID)

	if ok, err := checker.HasReferences(ctx, clean.ID); err != nil || ok {
		t.Errorf("HasReferences(clean) = %v, %v; want false", ok, err)
	}
	table, ok, err := checker.Find(ctx, active.ID)
	if err != nil || !ok || table != "forum_posts" {
		t.Errorf("Find(active) = %q, %v, %v", table, ok, err)
	}
}

func TestNew_CustomTables(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fx := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := fx.CreateUser("u", "U", "U")
	fx.AddReference("forum_posts", u.ID)

	checker := references.New(db, "grade_grades")
	if len(checker.Tables()) != 1 {
		t.Fatalf("unexpected tables %v", checker.Tables())
	}
	if ok, err := checker.HasReferences(ctx, u.ID); err != nil || ok {
		t.Errorf("HasReferences = %v, %v; want false when forum_posts is not scanned", ok, err)
	}
	if len(references.New(db).Tables()) != len(moodle.ReferenceTables) {
		t.Error("default checker must scan every reference table")
	}
}
