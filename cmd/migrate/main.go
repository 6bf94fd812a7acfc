// Command migrate applies, rolls back, or reports the embedded schema
// migrations against the configured database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"pelayanan.org/internal/migrate"
)

func main() {
	dsn := flag.String("dsn", os.Getenv("PELAYANAN_PG_DSN"), "PostgreSQL DSN")
	flag.Parse()

	if *dsn == "" {
		fmt.Fprintln(os.Stderr, "missing DSN: pass -dsn or set PELAYANAN_PG_DSN")
		os.Exit(2)
	}

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "up"
	}

	ctx := context.Background()
	var err error
	switch cmd {
	case "up":
		err = migrate.Up(ctx, *dsn)
	case "down":
		err = migrate.Down(ctx, *dsn)
	case "status":
		err = migrate.Status(ctx, *dsn)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want up, down, or status)\n", cmd)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
