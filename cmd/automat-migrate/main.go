// automat-migrate управляет схемой PostgreSQL-хранилища саг.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/akriventsev/automat/framework/migrations"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	dbURL := flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	migrationsDir := flag.String("migrations-dir", "./migrations", "Path to migrations directory")
	_ = flag.CommandLine.Parse(os.Args[2:])

	if command == "create" {
		if len(flag.Args()) == 0 {
			fatal("migration name is required")
		}
		path, err := migrations.Create(*migrationsDir, flag.Args()[0])
		if err != nil {
			fatal(err.Error())
		}
		fmt.Printf("Created migration: %s\n", path)
		return
	}

	if *dbURL == "" {
		fatal("--database-url (or DATABASE_URL) is required")
	}
	if err := migrations.SetDialect("postgres"); err != nil {
		fatal(err.Error())
	}

	db, err := sql.Open("pgx", *dbURL)
	if err != nil {
		fatal(fmt.Sprintf("failed to open database: %v", err))
	}
	defer db.Close()

	switch command {
	case "up":
		steps := parseSteps(flag.Args(), 0)
		if err := migrations.UpLimited(db, *migrationsDir, steps); err != nil {
			fatal(err.Error())
		}
		fmt.Println("Migrations applied")
	case "down":
		steps := parseSteps(flag.Args(), 1)
		if err := migrations.Down(db, *migrationsDir, steps); err != nil {
			fatal(err.Error())
		}
		fmt.Println("Migrations rolled back")
	case "status":
		statuses, err := migrations.CollectStatus(db, *migrationsDir)
		if err != nil {
			fatal(err.Error())
		}
		for _, status := range statuses {
			applied := "-"
			if status.AppliedAt != nil {
				applied = status.AppliedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%-16d %-8s %-20s %s\n", status.Version, status.State, applied, status.Name)
		}
	case "version":
		version, err := migrations.CurrentVersion(db)
		if err != nil {
			fatal(err.Error())
		}
		fmt.Printf("Current version: %d\n", version)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func parseSteps(args []string, defaultSteps int64) int64 {
	if len(args) == 0 {
		return defaultSteps
	}
	n, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fatal(fmt.Sprintf("invalid step count: %s", args[0]))
	}
	return n
}

func fatal(msg string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	os.Exit(1)
}

func printUsage() {
	fmt.Println("Automat Migration Tool")
	fmt.Println()
	fmt.Println("Usage: automat-migrate <command> [flags] [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up [N]        - Apply all pending migrations (or first N)")
	fmt.Println("  down [N]      - Rollback N migrations (default: 1)")
	fmt.Println("  status        - Show migration status")
	fmt.Println("  version       - Show current schema version")
	fmt.Println("  create <name> - Create a new migration file")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --database-url   PostgreSQL connection string (or DATABASE_URL)")
	fmt.Println("  --migrations-dir Path to migrations directory (default: ./migrations)")
}
