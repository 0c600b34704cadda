package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "nodebird-api",
	Short: "Token gateway for registered NodeBird caller domains",
	Long: `Token gateway for registered NodeBird caller domains.

Registered domains exchange their client secret for short-lived bearer
tokens and use them to read posts through the versioned /v1 and /v2 APIs.
Run "nodebird-api serve" to start the gateway; the other commands manage
users, domains and tokens directly in the database.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, userCmd, domainCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
