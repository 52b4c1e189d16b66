package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/rq/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an MCP client browse the review queue and record verdicts
directly against the local database. Configure the client with:

  {
    "mcpServers": {
      "rq": { "command": "rq", "args": ["mcp"] }
    }
  }

Available tools: rq_list_submissions, rq_get_submission, rq_review_submission`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		return mcp.NewServer(s, buildVersion).ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
