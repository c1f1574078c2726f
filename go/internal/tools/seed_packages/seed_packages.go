package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"

	"github.com/mcdev12/quizhall/go/internal/config"
	"github.com/mcdev12/quizhall/go/internal/dbconfig"
	"github.com/mcdev12/quizhall/go/internal/quizpack"
)

func main() {
	dir := "go/internal/assets/packages"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}
	ctx := context.Background()

	// 1) Load the YAML packages
	files := quizpack.NewFiles(dir)
	ids, err := files.IDs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "list packages: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	var cfg dbconfig.Config
	if err := config.ParseEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, quizpack.Schema); err != nil {
		fmt.Fprintf(os.Stderr, "create schema: %v\n", err)
		os.Exit(1)
	}

	// 3) Upsert and count
	store := quizpack.NewPostgres(db)
	var (
		total    = len(ids)
		upserted int
		errs     int
	)
	for _, id := range ids {
		pkg, err := files.Get(ctx, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error reading package %s: %v\n", id, err)
			errs++
			continue
		}
		if err := store.Put(ctx, pkg); err != nil {
			fmt.Fprintf(os.Stderr, "error saving package %s: %v\n", id, err)
			errs++
			continue
		}
		upserted++
	}

	// 4) Print summary
	fmt.Printf("Packages seed complete: %d total, %d upserted, %d errors\n", total, upserted, errs)
}
