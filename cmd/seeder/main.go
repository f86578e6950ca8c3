// cmd/seeder/main.go
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/unclebandit/outreach-dispatch/internal/config"
	"github.com/unclebandit/outreach-dispatch/internal/db"
)

var (
	dsn        string
	seedDir    string
	withSchema bool
)

var rootCmd = &cobra.Command{
	Use:   "seeder",
	Short: "Create the outreach schema and load demo data",
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Apply seed/schema.sql",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), cmd.OutOrStdout(), "schema.sql")
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the demo tenant (seed/demo.sql)",
	RunE: func(cmd *cobra.Command, args []string) error {
		files := []string{"demo.sql"}
		if withSchema {
			files = append([]string{"schema.sql"}, files...)
		}
		return run(cmd.Context(), cmd.OutOrStdout(), files...)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv("DATABASE_URL"), "postgres DSN (defaults to the configured database)")
	rootCmd.PersistentFlags().StringVar(&seedDir, "dir", "seed", "directory holding the SQL files")
	seedCmd.Flags().BoolVar(&withSchema, "with-schema", false, "apply schema.sql first")

	rootCmd.AddCommand(schemaCmd, seedCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer, names ...string) error {
	conn, err := open(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(seedDir, n)
	}
	return applyFiles(ctx, conn, paths, out)
}

func open(ctx context.Context) (*sql.DB, error) {
	if dsn != "" {
		conn, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		if err := conn.PingContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to ping postgres: %w", err)
		}
		return conn, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return db.Open(ctx, cfg.Database.Postgres)
}

// applyFiles executes each file as one statement batch, stopping at the
// first failure.
func applyFiles(ctx context.Context, conn *sql.DB, files []string, out io.Writer) error {
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}
		if _, err := conn.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("failed to execute %s: %w", file, err)
		}
		fmt.Fprintf(out, "Seeded: %s\n", file)
	}
	fmt.Fprintln(out, "Database seeding completed successfully!")
	return nil
}
