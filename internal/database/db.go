// Package database is OpenGoat's additive audit store: an activity
// ledger and a gateway-profile table backed by gorm. Neither replaces
// the JSON files under <home>/, which remain the system of record for
// agents, tasks, sessions, and settings — this package exists purely
// so the fleet's history and named gateway connections survive a
// rebuild of those files and can be queried relationally.
package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DB is the process-wide gorm handle, set by Open.
var DB *gorm.DB

// Open connects to the database selected by OPENGOAT_DB_DSN. A DSN
// starting with "postgres://" or "postgresql://" selects the postgres
// driver; anything else (including an unset variable) selects sqlite,
// with the file placed under home/activity.db by default.
func Open(home string) error {
	dsn := strings.TrimSpace(os.Getenv("OPENGOAT_DB_DSN"))

	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		dialector = postgres.Open(dsn)
	case dsn != "":
		dialector = sqlite.Open(dsn)
	default:
		dialector = sqlite.Open(filepath.Join(home, "activity.db"))
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(&Activity{}, &GatewayProfile{}); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	DB = db
	return nil
}
