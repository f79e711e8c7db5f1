package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╔═╗┬ ┬┌─┐┌─┐┌─┐┬─┐┌─┐┌┐┌┌┬┐
  ╚═╗├─┤│ │├─┘├┤ ├┬┘│ ││││ │
  ╚═╝┴ ┴└─┘┴  └  ┴└─└─┘┘└┘ ┴
`

func main() {
	rootCmd := &cobra.Command{
		Use:   "shopfront",
		Short: "The storefront state server",
		Long: `Shopfront is the state layer behind the storefront.

It keeps each browser's session, cart, and wishlist in durable
per-browser storage, keeps a browser's open tabs converged over
websocket, and fronts the admin collaborator with fallback data.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

// printBanner prints the ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}
