// Command migrate-gen generates SQL migration files for the trigger group layout tables.
//
// Usage:
//
//	go run github.com/scopehal/triggersync/cmd/migrate-gen -output migrations -filename init.sql
//
// Or with go generate:
//
//	//go:generate go run github.com/scopehal/triggersync/cmd/migrate-gen -output migrations
//
// Generate migrations for different database adapters:
//
//	go run github.com/scopehal/triggersync/cmd/migrate-gen -adapter postgres -output migrations
//	go run github.com/scopehal/triggersync/cmd/migrate-gen -adapter mysql -output migrations
//	go run github.com/scopehal/triggersync/cmd/migrate-gen -adapter sqlite -output migrations
//
// Customize table names and write a rollback file:
//
//	go run github.com/scopehal/triggersync/cmd/migrate-gen -groups-table lab_groups -members-table lab_members -down
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/scopehal/triggersync/pkg/migrations"
)

func main() {
	defaults := migrations.DefaultConfig()

	var (
		adapter        = flag.String("adapter", "postgres", "Database adapter: postgres, mysql, or sqlite")
		outputFolder   = flag.String("output", defaults.OutputFolder, "Output folder for migration file")
		outputFilename = flag.String("filename", "", "Output filename (default: timestamp-based)")
		groupsTable    = flag.String("groups-table", defaults.GroupsTable, "Name of the trigger groups table")
		membersTable   = flag.String("members-table", defaults.MembersTable, "Name of the group members table")
		down           = flag.Bool("down", false, "Also write a rollback file")
	)

	flag.Parse()

	config := defaults
	config.OutputFolder = *outputFolder
	config.GroupsTable = *groupsTable
	config.MembersTable = *membersTable
	config.Down = *down

	if *outputFilename != "" {
		config.OutputFilename = *outputFilename
	}

	var err error
	switch *adapter {
	case "postgres":
		err = migrations.GeneratePostgres(&config)
	case "mysql":
		err = migrations.GenerateMySQL(&config)
	case "sqlite":
		err = migrations.GenerateSQLite(&config)
	default:
		fmt.Fprintf(os.Stderr, "Error: unsupported adapter '%s'. Supported adapters are: postgres, mysql, sqlite\n", *adapter)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating migration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %s migration: %s/%s\n", *adapter, config.OutputFolder, config.OutputFilename)
}
