// Command migrate applies or rolls back the database schema.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/Simplereally/bloomstudio-sub005/internal/infra"
)

func main() {
	var (
		action = flag.String("action", "up", "Migration action: up, down, version")
		path   = flag.String("path", "migrations", "Path to migration files")
	)
	flag.Parse()

	_ = godotenv.Load()

	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		exitWithError(fmt.Errorf("DATABASE_URL is required"))
	}

	switch *action {
	case "up":
		if err := infra.RunMigrations(databaseURL, *path); err != nil {
			exitWithError(fmt.Errorf("migration failed: %w", err))
		}
		fmt.Println("migrations applied")
	case "down":
		if err := infra.RollbackMigration(databaseURL, *path); err != nil {
			exitWithError(fmt.Errorf("rollback failed: %w", err))
		}
		fmt.Println("migration rolled back")
	case "version":
		version, dirty, err := infra.MigrationVersion(databaseURL, *path)
		if err != nil {
			exitWithError(err)
		}
		fmt.Printf("version: %d (dirty: %v)\n", version, dirty)
	default:
		exitWithError(fmt.Errorf("unknown action: %s", *action))
	}
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
