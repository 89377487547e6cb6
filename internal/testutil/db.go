package testutil

import (
	"fmt"
	"os"
	"testing"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/moodle"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/gorm"
)

// SetupTestDB opens a private in-memory SQLite LMS database with the schema
// subset migrated, the system context and the default roles seeded.
// The database is closed when the test ends.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := moodle.Open(moodle.Config{
		Driver:      moodle.DriverSQLite,
		DSN:         dsn,
		TablePrefix: moodle.DefaultTablePrefix,
	}, nil)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() {
		_ = moodle.Close(db)
	})

	if err := moodle.Migrate(db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}

// MongoURIEnv names the variable pointing at a MongoDB for audit tests.
const MongoURIEnv = "ESCOSYNC_TEST_MONGO_URI"

// SetupTestMongo returns a fresh database on the MongoDB named by
// ESCOSYNC_TEST_MONGO_URI and drops it when the test ends. The test is
// skipped when the variable is unset.
func SetupTestMongo(t *testing.T) *mongo.Database {
	t.Helper()

	uri := os.Getenv(MongoURIEnv)
	if uri == "" {
		t.Skipf("%s not set", MongoURIEnv)
	}

	ctx, cancel := TestContext()
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("connect to mongo: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		t.Fatalf("ping mongo: %v", err)
	}

	db := client.Database("escosync_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		ctx, cancel := TestContext()
		defer cancel()
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return db
}
