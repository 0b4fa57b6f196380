package cmd

import "github.com/spf13/cobra"

// Listing/publish flow, media processing, the analytics dashboard, and
// account lifecycle CRUD are deliberately out of scope: they are external
// collaborators whose CLI contract is named here but whose behavior is
// owned by the marketplace's own tooling. Each of these subcommands exists
// so the documented command surface is complete, and reports itself as a
// delegated no-op rather than silently accepting flags it cannot act on.

func delegatedCmd(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return emitJSON(map[string]any{
				"command":   name,
				"status":    "delegated",
				"message":   "handled by external listing tooling, not this automation layer",
			})
		},
	}
}

var publishCmd = delegatedCmd("publish", "Publish a new listing (delegated to external tooling)")
var polishCmd = delegatedCmd("polish", "Refresh/reword an existing listing (delegated to external tooling)")
var priceCmd = delegatedCmd("price", "Reprice a listing (delegated to external tooling)")
var delistCmd = delegatedCmd("delist", "Take a listing down (delegated to external tooling)")
var relistCmd = delegatedCmd("relist", "Republish a delisted item (delegated to external tooling)")
var analyticsCmd = delegatedCmd("analytics", "Listing analytics dashboard (delegated to external tooling)")
var accountsCmd = delegatedCmd("accounts", "Account lifecycle CRUD (delegated to external tooling)")
