package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"veritrail.io/internal/migrate"
	"veritrail.io/internal/store/pg"
)

func main() {
	log.SetFlags(0)
	var (
		dsn            = flag.String("dsn", os.Getenv("DATABASE_URL"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", "migrations", "path to SQL migrations")
		seedsPath      = flag.String("seeds", "seeds", "path to SQL seeds")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or DATABASE_URL")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := pg.Open(*dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	mgr := migrate.NewManager(store.DB(), *migrationsPath, *seedsPath)

	switch flag.Arg(0) {
	case "up":
		applied, err := mgr.Up(ctx)
		if err != nil {
			log.Fatalf("migrate up: %v", err)
		}
		for _, name := range applied {
			fmt.Println("applied", name)
		}
		if len(applied) == 0 {
			fmt.Println("nothing to apply")
		}
	case "down":
		name, err := mgr.Down(ctx)
		if err != nil {
			log.Fatalf("migrate down: %v", err)
		}
		fmt.Println("rolled back", name)
	case "seed":
		applied, err := mgr.Seed(ctx)
		if err != nil {
			log.Fatalf("migrate seed: %v", err)
		}
		for _, name := range applied {
			fmt.Println("seeded", name)
		}
	case "status":
		history, err := mgr.Status(ctx)
		if err != nil {
			log.Fatalf("migrate status: %v", err)
		}
		for _, item := range history {
			fmt.Println(item)
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
}
