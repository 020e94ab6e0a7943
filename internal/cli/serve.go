package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lifecyclelab/intervene/internal/engine"
	"github.com/lifecyclelab/intervene/internal/server"
	"github.com/lifecyclelab/intervene/internal/store"
)

var port int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the intervene HTTP server.

The server exposes the engine operations (assignment, outcome tracking,
analysis) behind an admin token, plus a public health check.

Example:
  intervene serve --port 8080`,
	RunE: runServe,
}

func init() {
	defaultPort := 8080
	if p := os.Getenv("IV_PORT"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil {
			defaultPort = parsed
		}
	}

	serveCmd.Flags().IntVarP(&port, "port", "p", defaultPort, "port to listen on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	// Token file alongside the database so CLI commands can find it
	tokenFile := filepath.Join(filepath.Dir(dbPath), ".intervene-token")

	srv := server.New(s, engine.New(s, nil), port, tokenFile)
	return srv.Start()
}
