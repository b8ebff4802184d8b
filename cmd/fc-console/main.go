package main

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/KasunDA/fc-admin/internal/console/app"
	"github.com/KasunDA/fc-admin/internal/console/client"
)

var (
	wsURL string
	host  string
)

var rootCmd = &cobra.Command{
	Use:   "fc-console",
	Short: "Terminal console for the Fleet Commander admin",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws := client.NewWSClient(wsURL)
		defer ws.Close()
		api := client.NewHTTPClient(deriveHTTPBase(wsURL))

		p := tea.NewProgram(app.New(ws, api, host), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.Flags().StringVar(&wsURL, "url", "ws://127.0.0.1:8181/ws", "WebSocket URL of the fc-admin server")
	rootCmd.Flags().StringVar(&host, "host", "", "Host prefilled in the start prompt")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// deriveHTTPBase converts ws://host:port/ws to http://host:port
func deriveHTTPBase(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil || u.Host == "" {
		return "http://127.0.0.1:8181"
	}
	scheme := "http"
	if strings.HasPrefix(u.Scheme, "wss") {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, u.Host)
}
