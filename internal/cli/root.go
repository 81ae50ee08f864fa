// Package cli implements docgenctl, the operator command line for a docgen
// deployment.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	server string
	token  string
}

// NewRootCmd builds the docgenctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "docgenctl",
		Short:         "Operate a docgen deployment",
		Long:          `Apply migrations, seed document templates and inspect generation jobs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(os.Stdout)
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("DOCGEN_SERVER", "http://localhost:8080"), "docgen API base URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("DOCGEN_TOKEN"), "bearer token for the API")

	root.AddCommand(newMigrateCmd())
	root.AddCommand(newSeedCmd())
	root.AddCommand(newJobsCmd(opts))
	return root
}

func (o *rootOptions) client() *Client {
	return NewClient(o.server, o.token)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
