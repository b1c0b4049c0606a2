package main

import (
	"fmt"
	"os"
	"strconv"

	"coin-ledger/config"
	pgStorage "coin-ledger/internal/adapter/storage/postgres"
	"coin-ledger/pkg/logger"
)

const usage = "usage: migrate [up|down [steps]|status]"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load(os.Getenv("CLG_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	m := pgStorage.NewMigrator(cfg.Database.DSN(), log)

	switch os.Args[1] {
	case "up":
		err = m.Up()
	case "down":
		steps := 1
		if len(os.Args) > 2 {
			steps, err = strconv.Atoi(os.Args[2])
			if err != nil {
				log.Fatal().Str("steps", os.Args[2]).Msg("steps must be a number")
			}
		}
		err = m.Down(steps)
	case "status":
		var st *pgStorage.MigrationStatus
		st, err = m.Status()
		if err == nil {
			if !st.Applied {
				fmt.Println("no migrations applied")
			} else {
				fmt.Printf("version %d (dirty: %t)\n", st.Version, st.Dirty)
			}
		}
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		log.Fatal().Err(err).Str("command", os.Args[1]).Msg("migration failed")
	}
}
