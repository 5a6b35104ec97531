package main

import (
	"crypto/x509"
	"fmt"
	"net"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"buildClient/internal/trust"
)

func newTrustCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trust",
		Short: "Inspect permanently trusted server certificates",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List trusted certificates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := a.store.List()
			if err != nil {
				return err
			}
			if len(records) == 0 {
				cmd.Println("No trusted certificates")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "HOST\tSUBJECT\tEXPIRES\tSHA-256")
			for _, record := range records {
				cert, err := x509.ParseCertificate(record.DER)
				if err != nil {
					fmt.Fprintf(w, "%s\t<unreadable>\t\t\n", record.Key())
					continue
				}
				info := trust.Describe(record.Host, record.Port, cert, nil)
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", record.Key(), info.Subject, info.NotAfter.Format("2006-01-02"), info.SHA256Fingerprint)
			}
			return w.Flush()
		},
	}

	forgetCmd := &cobra.Command{
		Use:   "forget <host[:port]>",
		Short: "Remove the trusted certificate of a host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, port, err := net.SplitHostPort(args[0])
			if err != nil {
				host, port = args[0], "443"
			}
			if err := a.store.Forget(host, port); err != nil {
				return err
			}
			cmd.Printf("Forgot certificate of %s\n", net.JoinHostPort(host, port))
			return nil
		},
	}

	cmd.AddCommand(listCmd, forgetCmd)
	return cmd
}
