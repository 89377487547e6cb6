// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/directory"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// DBDeps holds the back-end connections of a run.
type DBDeps struct {
	LMS *gorm.DB
	// Directory is nil in check-paths mode.
	Directory *directory.LDAPReader

	// Audit trail; both nil when mongo_uri is blank.
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database
}
