package hierarchy_test

import (
	"fmt"
	"testing"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/hierarchy"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/moodle"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/domain/models"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/testutil"
)

func TestInsertCategory_TopLevel(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := hierarchy.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	cat := models.CourseCategory{Name: "Lycée Jean Moulin", IDNumber: "0290009C", Visible: 1}
	cctx, err := store.InsertCategory(ctx, &cat)
	if err != nil {
		t.Fatalf("InsertCategory failed: %v", err)
	}
	if cat.ID == 0 {
		t.Fatal("expected ID to be assigned")
	}
	if want := fmt.Sprintf("/%d", cat.ID); cat.Path != want || cat.Depth != 1 {
		t.Errorf("category path = %q depth %d, want %q depth 1", cat.Path, cat.Depth, want)
	}
	if want := fmt.Sprintf("/1/%d", cctx.ID); cctx.Path != want || cctx.Depth != 2 {
		t.Errorf("context path = %q depth %d, want %q depth 2", cctx.Path, cctx.Depth, want)
	}

	stored, err := store.CategoryContext(ctx, cat.ID)
	if err != nil || stored == nil || stored.Path != cctx.Path {
		t.Errorf("stored context = %+v, %v", stored, err)
	}
}

func TestInsertCategory_Nested(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := hierarchy.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	parent := models.CourseCategory{Name: "Parent", IDNumber: "P"}
	pctx, err := store.InsertCategory(ctx, &parent)
	if err != nil {
		t.Fatalf("InsertCategory parent failed: %v", err)
	}
	child := models.CourseCategory{Name: "Child", IDNumber: "C", Parent: parent.ID}
	cctx, err := store.InsertCategory(ctx, &child)
	if err != nil {
		t.Fatalf("InsertCategory child failed: %v", err)
	}

	if want := fmt.Sprintf("%s/%d", parent.Path, child.ID); child.Path != want || child.Depth != 2 {
		t.Errorf("child path = %q depth %d, want %q depth 2", child.Path, child.Depth, want)
	}
	if want := fmt.Sprintf("%s/%d", pctx.Path, cctx.ID); cctx.Path != want || cctx.Depth != 3 {
		t.Errorf("child context path = %q depth %d, want %q", cctx.Path, cctx.Depth, want)
	}

	issues, err := store.CheckPaths(ctx)
	if err != nil {
		t.Fatalf("CheckPaths failed: %v", err)
	}
	if len(issues) != 0 {
		t.Errorf("expected consistent tree, got %v", issues)
	}
}

func TestInsertCategory_MissingParent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := hierarchy.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	cat := models.CourseCategory{Name: "Orphan", Parent: 999}
	if _, err := store.InsertCategory(ctx, &cat); err == nil {
		t.Error("expected error for missing parent")
	}
}

func TestCheckPaths_ReportsStaleDescendants(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fx := testutil.NewFixtures(t, db)
	store := hierarchy.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a, _ := fx.CreateCategory("A", "A", 0)
	b, _ := fx.CreateCategory("B", "B", 0)
	child, _ := fx.CreateCategory("Child", "C", a.ID)
	course, _ := fx.CreateCourse(child.ID, "course", "")

	// Move the child under B without repairing its path.
	err := db.Table(moodle.Table(db, moodle.TableCategories)).
		Where("id = ?", child.ID).Update("parent", b.ID).Error
	if err != nil {
		t.Fatalf("move category: %v", err)
	}

	issues, err := store.CheckPaths(ctx)
	if err != nil {
		t.Fatalf("CheckPaths failed: %v", err)
	}

	var categoryIssue, contextIssue bool
	for _, i := range issues {
		if i.Kind == "category" && i.ID == child.ID {
			categoryIssue = true
			if want := fmt.Sprintf("%s/%d", b.Path, child.ID); i.Expected != want {
				t.Errorf("expected path %q, got %q", want, i.Expected)
			}
		}
		if i.Kind == "context" && i.ID == fx.ContextFor(models.ContextCategory, child.ID).ID {
			contextIssue = true
		}
	}
	if !categoryIssue || !contextIssue {
		t.Errorf("expected category and context drift for %d, got %v", child.ID, issues)
	}

	// The course context still hangs off the (stale) child context, which
	// is consistent with that context's stored path.
	for _, i := range issues {
		if i.Kind == "context" && i.ID == fx.ContextFor(models.ContextCourse, course.ID).ID {
			t.Errorf("course context should be consistent with its parent: %v", i)
		}
	}
}
