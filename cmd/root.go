// Package cmd provides the command-line interface for ecmsim.
package cmd

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ecmsim",
	Short: "ecmsim predicts the cache and memory cycle costs of loop kernels.",
	Long: `ecmsim predicts the cache and memory cycle costs of loop kernels. ` +
		`It parses restricted C loop nests, simulates their data traffic ` +
		`through a described cache hierarchy (analyze), and serves recorded ` +
		`predictions as a web page (serve).`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

func init() {
	// A .env file may provide defaults for the ECMSIM_* variables.
	_ = godotenv.Load()
}

func envDefault(name, fallback string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}

	return fallback
}

func envIntDefault(name string, fallback int) int {
	v, ok := os.LookupEnv(name)
	if !ok {
		return fallback
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}

	return n
}
