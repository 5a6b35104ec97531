package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"buildClient/internal/credentials"
	"buildClient/internal/models"
)

func newPasswordCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Manage the stored password of the selected host",
	}

	var fromStdin bool
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Store a password with the host's credentials manager",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, manager, err := a.hostManager()
			if err != nil {
				return err
			}

			var password string
			if fromStdin {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			} else if password, err = a.prompter.PromptPassword(opts.APIURL, opts.Username); err != nil {
				return err
			}

			if err := manager.Set(opts.APIURL, opts.Username, password); err != nil {
				return err
			}
			cmd.Printf("Password for %s at %s stored in the %s store\n", opts.Username, opts.APIURL, manager.Name())
			return nil
		},
	}
	setCmd.Flags().BoolVar(&fromStdin, "stdin", false, "read the password from the first line of stdin")

	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove the stored password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, manager, err := a.hostManager()
			if err != nil {
				return err
			}
			if err := manager.Delete(opts.APIURL, opts.Username); err != nil {
				return err
			}
			cmd.Printf("Password for %s at %s removed\n", opts.Username, opts.APIURL)
			return nil
		},
	}

	cmd.AddCommand(setCmd, deleteCmd)
	return cmd
}

func (a *app) hostManager() (*models.HostOptions, credentials.Manager, error) {
	apiurl, err := a.resolveAPIURL()
	if err != nil {
		return nil, nil, err
	}
	opts, err := a.manager.HostOptions(apiurl)
	if err != nil {
		return nil, nil, err
	}
	if opts.Username == "" {
		return nil, nil, fmt.Errorf("host %s has no user configured", apiurl)
	}
	manager, err := a.credentials.Manager(opts.CredentialsManagerClass)
	if err != nil {
		return nil, nil, err
	}
	return opts, manager, nil
}
