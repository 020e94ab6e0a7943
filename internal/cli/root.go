package cli

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	dbPath string
)

var rootCmd = &cobra.Command{
	Use:   "intervene",
	Short: "Intervene - a self-hosted A/B testing engine for lifecycle interventions",
	Long: `Intervene assigns users to intervention experiments under targeting
criteria, tracks their outcomes, and analyzes results with a two-proportion
significance test. Single Go binary, embedded SQLite.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Optional .env for local setups; missing file is fine
	_ = godotenv.Load()

	// Global flags
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", getEnvOrDefault("IV_DB_PATH", "./intervene.db"), "database path")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
