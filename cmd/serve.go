package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/ecmsim/resultstore"
	"github.com/sarchlab/ecmsim/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve recorded predictions as a web page",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("store",
		envDefault("ECMSIM_STORE", ""),
		"result database to serve")
	serveCmd.Flags().Int("port",
		envIntDefault("ECMSIM_PORT", 0),
		"port to serve on, 0 picks a random port")
	serveCmd.Flags().Bool("open", false,
		"open the served page in the default browser")
}

func runServe(cmd *cobra.Command, _ []string) {
	cmd.SilenceUsage = true

	storePath, _ := cmd.Flags().GetString("store")
	if storePath == "" {
		fmt.Fprintln(os.Stderr,
			"Error: no result database given, use --store or ECMSIM_STORE")
		atexit.Exit(1)
	}

	if _, err := os.Stat(storePath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		atexit.Exit(1)
	}

	reader, err := resultstore.NewReader(storePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		atexit.Exit(1)
	}

	port, _ := cmd.Flags().GetInt("port")
	openBrowser, _ := cmd.Flags().GetBool("open")

	server := web.NewServer().
		WithStore(reader).
		WithPortNumber(port)
	if openBrowser {
		server = server.WithBrowserLaunch()
	}

	server.StartServer()

	select {}
}
