package client

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

type shardStatus struct {
	Shard      int    `json:"shard"`
	Checkpoint string `json:"checkpoint"`
}

// NewShardCommand constructs the `shard` command group.
func NewShardCommand(baseURL BaseURLFunc) *cobra.Command {
	shardCmd := &cobra.Command{Use: "shard", Short: "Shard stream operations"}
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the committed checkpoint of every shard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			var out struct {
				Shards []shardStatus `json:"shards"`
			}
			if err := getJSON(cmd.Context(), baseURL()+"/v1/shards", &out); err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), out)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SHARD\tCHECKPOINT")
			for _, s := range out.Shards {
				fmt.Fprintf(tw, "%d\t%s\n", s.Shard, s.Checkpoint)
			}
			return tw.Flush()
		},
	}
	statusCmd.Flags().Bool("json", false, "Print JSON instead of a table")
	shardCmd.AddCommand(statusCmd)
	return shardCmd
}
