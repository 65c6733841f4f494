package client

import (
	"github.com/spf13/cobra"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// NewRoot constructs a root Cobra command for the coedit client.
// It registers the doc, shard and health command groups.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "coedit",
		Short: "coedit client commands",
	}
	root.AddCommand(NewDocCommand(baseURL))
	root.AddCommand(NewShardCommand(baseURL))
	root.AddCommand(NewHealthCommand(baseURL))
	return root
}
