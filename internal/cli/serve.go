package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/pipeconfig/internal/history"
	"github.com/lucasnoah/pipeconfig/internal/web"
)

var (
	serveFile   string
	servePort   int
	serveDB     string
	serveStrict bool
)

var serveCmd = &cobra.Command{
	Use:   "serve [CONFIG]",
	Short: "Serve a read-only dashboard for the pipeline",
	Long: `Serve starts a local web UI showing the pipeline's build order, the
generated Makefile, the dependency graph in DOT format and recorded history.
Prometheus metrics are exposed on /metrics.`,
	Args: maxArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, path, err := loadConfig(args, serveFile)
		if err != nil {
			return err
		}

		dbPath := serveDB
		if dbPath == "" {
			if dbPath, err = history.DefaultDBPath(); err != nil {
				return err
			}
		}
		db, err := history.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("migrate history: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := web.NewServer(web.Options{
			ConfigPath: path,
			Strict:     serveStrict,
			DB:         db,
			Logger:     logger,
		})
		cmd.Printf("pipeconfig UI: http://localhost:%d\n", servePort)
		return srv.Serve(ctx, fmt.Sprintf(":%d", servePort))
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveFile, "file", "f", "", "path to pipeline config file")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "port to listen on")
	serveCmd.Flags().StringVar(&serveDB, "db", "", "history database path (default ~/.pipeconfig/history.db)")
	serveCmd.Flags().BoolVar(&serveStrict, "strict", false, "require every plain file dependency to exist")
}
