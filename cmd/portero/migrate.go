package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/portero/internal/config"
)

// newMigrateCmd aplica migraciones SQL planas: *_up.sql asciende,
// *_down.sql desciende en reversa. Sin tabla de versiones: los scripts
// son idempotentes (CREATE TABLE IF NOT EXISTS / DROP IF EXISTS).
func newMigrateCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate [up|down] [steps]",
		Short: "Aplica las migraciones SQL",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "up"
			steps := 0
			if len(args) >= 1 && args[0] != "" {
				action = strings.ToLower(args[0])
			}
			if len(args) >= 2 {
				if n, err := strconv.Atoi(args[1]); err == nil && n > 0 {
					steps = n
				}
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := pgxpool.New(ctx, cfg.Storage.DSN)
			if err != nil {
				return fmt.Errorf("pgxpool: %w", err)
			}
			defer pool.Close()

			var suffix string
			switch action {
			case "up":
				suffix = "_up.sql"
			case "down":
				suffix = "_down.sql"
			default:
				return fmt.Errorf("acción desconocida %q (up | down [steps])", action)
			}

			files, err := listSQL(dir, suffix)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Println("no hay migraciones para aplicar")
				return nil
			}
			sort.Strings(files)
			if action == "down" {
				reverseInPlace(files)
			}
			if steps > 0 && steps < len(files) {
				files = files[:steps]
			}

			for _, f := range files {
				b, err := os.ReadFile(f)
				if err != nil {
					return err
				}
				if _, err := pool.Exec(ctx, string(b)); err != nil {
					return fmt.Errorf("exec %s: %w", f, err)
				}
				fmt.Println("ok:", f)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "migrations/postgres", "directorio de migraciones")
	return cmd
}

func listSQL(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(strings.ToLower(e.Name()), suffix) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

func reverseInPlace(ss []string) {
	for i, j := 0, len(ss)-1; i < j; i, j = i+1, j-1 {
		ss[i], ss[j] = ss[j], ss[i]
	}
}
