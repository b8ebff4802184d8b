package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath string
	port       int
	mockMode   bool
)

var rootCmd = &cobra.Command{
	Use:     "fc-admin",
	Short:   "Fleet Commander admin server",
	Long:    `fc-admin records desktop setting changes on a live session and turns them into deployable profiles`,
	Version: Version,
	RunE:    runServer,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin HTTP and WebSocket server",
	RunE:  runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fc-admin %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "fc-admin.yaml", "Path to config file")
	for _, c := range []*cobra.Command{rootCmd, serveCmd} {
		c.Flags().IntVar(&port, "port", 0, "Override server port")
		c.Flags().BoolVar(&mockMode, "mock", false, "Capture from a simulated host instead of a live session")
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(directoryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
