package client

import (
	"fmt"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewHealthCommand constructs `health`. It checks the HTTP endpoint, or the
// gRPC health service when --grpc is set.
func NewHealthCommand(baseURL BaseURLFunc) *cobra.Command {
	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			useGRPC, _ := cmd.Flags().GetBool("grpc")
			service, _ := cmd.Flags().GetString("service")
			if !useGRPC {
				var out struct {
					Status string `json:"status"`
				}
				if err := getJSON(cmd.Context(), baseURL()+"/v1/healthz", &out); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "http:", out.Status)
				return err
			}
			conn, err := dialGRPC(grpcAddrFromEnv())
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()
			resp, err := healthpb.NewHealthClient(conn).Check(cmd.Context(), &healthpb.HealthCheckRequest{Service: service})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "grpc:", resp.GetStatus())
			return err
		},
	}
	healthCmd.Flags().Bool("grpc", false, "Check the gRPC health service (address from COEDIT_GRPC)")
	healthCmd.Flags().String("service", "", "gRPC health service name")
	return healthCmd
}
