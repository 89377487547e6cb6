package enrolments_test

import (
	"testing"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/enrolments"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/moodle"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/domain/models"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/testutil"
)

func TestEnsureManualAndEnrol(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fx := testutil.NewFixtures(t, db)
	store := enrolments.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	cat, _ := fx.CreateCategory("Cat", "C", 0)
	course, _ := fx.CreateCourse(cat.ID, "c", "")
	u := fx.CreateUser("u", "U", "U")
	roleID := fx.RoleID("editingteacher")

	e1, err := store.EnsureManual(ctx, course.ID, roleID, 1)
	if err != nil {
		t.Fatalf("EnsureManual failed: %v", err)
	}
	e2, err := store.EnsureManual(ctx, course.ID, roleID, 2)
	if err != nil || e2.ID != e1.ID {
		t.Fatalf("second EnsureManual = %+v, %v; want same method", e2, err)
	}

	created, err := store.Enrol(ctx, e1.ID, u.ID, 1)
	if err != nil || !created {
		t.Fatalf("Enrol = %v, %v", created, err)
	}
	created, err = store.Enrol(ctx, e1.ID, u.ID, 2)
	if err != nil || created {
		t.Errorf("second Enrol = %v, %v; want false", created, err)
	}

	list, err := store.ForUser(ctx, u.ID)
	if err != nil || len(list) != 1 || list[0].CourseID != course.ID {
		t.Errorf("ForUser = %+v, %v", list, err)
	}
	n, err := store.CountForUser(ctx, u.ID, "")
	if err != nil || n != 1 {
		t.Errorf("CountForUser = %d, %v", n, err)
	}

	removed, err := store.Unenrol(ctx, e1.ID, u.ID)
	if err != nil || !removed {
		t.Errorf("Unenrol = %v, %v", removed, err)
	}
}

func TestPurgeOrphans(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fx := testutil.NewFixtures(t, db)
	store := enrolments.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	cat, _ := fx.CreateCategory("Cat", "C", 0)
	course, _ := fx.CreateCourse(cat.ID, "c", "")
	u := fx.CreateUser("u", "U", "U")
	fx.EnrolManual(course.ID, u.ID, "student")

	// An enrolment pointing at a method that no longer exists.
	orphan := models.UserEnrolment{EnrolID: 9999, UserID: u.ID}
	if err := db.Table(moodle.Table(db, moodle.TableUserEnrolments)).Create(&orphan).Error; err != nil {
		t.Fatalf("create orphan: %v", err)
	}

	n, err := store.CountForUser(ctx, u.ID, "")
	if err != nil || n != 1 {
		t.Errorf("CountForUser must ignore orphans: %d, %v", n, err)
	}

	purged, err := store.PurgeOrphans(ctx)
	if err != nil || purged != 1 {
		t.Fatalf("PurgeOrphans = %d, %v; want 1", purged, err)
	}
	if n := fx.Count(moodle.TableUserEnrolments, ""); n != 1 {
		t.Errorf("expected valid enrolment to survive, got %d rows", n)
	}
}

func TestCountForUser_ExceptPrefix(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fx := testutil.NewFixtures(t, db)
	store := enrolments.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	cat, _ := fx.CreateCategory("Cat", "C", 0)
	space, _ := fx.CreateCourse(cat.ID, "space", "ForumEtab_0290009C")
	lookalike, _ := fx.CreateCourse(cat.ID, "lookalike", "ForumEtabX")
	u := fx.CreateUser("u", "U", "U")
	fx.EnrolManual(space.ID, u.ID, "editingteacher")

	n, err := store.CountForUser(ctx, u.ID, "ForumEtab_")
	if err != nil || n != 0 {
		t.Errorf("CountForUser = %d, %v; want the private space ignored", n, err)
	}

	fx.EnrolManual(lookalike.ID, u.ID, "student")
	n, err = store.CountForUser(ctx, u.ID, "ForumEtab_")
	if err != nil || n != 1 {
		t.Errorf("CountForUser = %d, %v; want 1", n, err)
	}
	n, err = store.CountForUser(ctx, u.ID, "")
	if err != nil || n != 2 {
		t.Errorf("CountForUser = %d, %v; want 2", n, err)
	}
}
