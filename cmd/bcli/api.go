package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	apperror "buildClient/internal/error"
)

type apiFlags struct {
	method  string
	data    string
	headers []string
}

func newAPICmd(a *app) *cobra.Command {
	flags := &apiFlags{}
	cmd := &cobra.Command{
		Use:   "api [flags] <path|url>",
		Short: "Send a request to the service and print the response body",
		Example: `  bcli api /about
  bcli api -X PUT -d meta.xml /source/home:alice/pkg/_meta`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAPI(cmd, flags, args[0])
		},
	}
	cmd.Flags().StringVarP(&flags.method, "method", "X", http.MethodGet, "HTTP method")
	cmd.Flags().StringVarP(&flags.data, "data", "d", "", "file sent as request body, - reads stdin")
	cmd.Flags().StringArrayVarP(&flags.headers, "header", "H", nil, `extra header "Name: value", may be repeated`)
	return cmd
}

func (a *app) runAPI(cmd *cobra.Command, flags *apiFlags, target string) error {
	rawURL := target
	if !strings.Contains(target, "://") {
		apiurl, err := a.resolveAPIURL()
		if err != nil {
			return err
		}
		rawURL = apiurl + "/" + strings.TrimPrefix(target, "/")
	}

	header := http.Header{}
	for _, h := range flags.headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("invalid header %q, expected \"Name: value\"", h)
		}
		header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	var body io.Reader
	switch flags.data {
	case "":
	case "-":
		body = cmd.InOrStdin()
	default:
		f, err := os.Open(flags.data)
		if err != nil {
			return fmt.Errorf("open request body: %w", err)
		}
		defer f.Close()
		body = f
	}

	resp, err := a.executor.Execute(cmd.Context(), nil, strings.ToUpper(flags.method), rawURL, header, body)
	if err != nil {
		var status *apperror.HTTPStatusError
		if errors.As(err, &status) && len(status.Body) > 0 {
			cmd.PrintErrln(strings.TrimSpace(string(status.Body)))
		}
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(cmd.OutOrStdout(), resp.Body); err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	return nil
}
