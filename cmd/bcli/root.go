package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"buildClient/internal/config"
	"buildClient/internal/cookies"
	"buildClient/internal/credentials"
	"buildClient/internal/models"
	"buildClient/internal/prompt"
	"buildClient/internal/transport"
	"buildClient/internal/trust"
	"buildClient/internal/utils"
	"buildClient/internal/version"
)

// app carries the flags and the collaborators built from them.
type app struct {
	configPath string
	logLevel   string
	logFile    string
	apiURL     string

	prompter prompt.Provider
	settings transport.PoolSettings

	manager     *config.Manager
	store       *trust.Store
	credentials *credentials.Registry
	executor    *transport.Executor
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               version.ClientName,
		Short:             "Command line client for the package build service",
		SilenceUsage:      true,
		SilenceErrors:     true,
		Version:           version.Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return a.setup() },
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "configuration file (default $XDG_CONFIG_HOME/buildclient/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&a.logLevel, "log-level", "l", "warn", "log level: panic, fatal, error, warn, info, debug, trace")
	rootCmd.PersistentFlags().StringVar(&a.logFile, "log-file", "console", "log file path, console logs to stderr")
	rootCmd.PersistentFlags().StringVarP(&a.apiURL, "apiurl", "A", "", "service URL (default general.apiurl from the configuration)")

	rootCmd.AddCommand(newAPICmd(a), newPasswordCmd(a), newTrustCmd(a))
	return rootCmd
}

func (a *app) setup() error {
	if err := utils.InitLog(a.logLevel, a.logFile); err != nil {
		return err
	}
	if a.prompter == nil {
		a.prompter = prompt.NonInteractive{}
	}

	a.manager = config.NewManager(a.configPath)
	if err := a.manager.Load(); err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	trustDir, err := a.manager.TrustDir()
	if err != nil {
		return err
	}
	jarPath, err := a.manager.CookieJarPath()
	if err != nil {
		return err
	}

	a.store = trust.NewStore(trustDir, a.prompter)
	a.credentials = credentials.NewRegistry(credentials.Deps{Config: a.manager, Prompter: a.prompter})

	opts := []transport.Option{
		transport.WithResolver(a.manager),
		transport.WithCookieJar(jarPath),
	}
	if a.manager.General().HTTPDebug || log.IsLevelEnabled(log.DebugLevel) {
		if !log.IsLevelEnabled(log.DebugLevel) {
			log.SetLevel(log.DebugLevel)
		}
		opts = append(opts, transport.WithHook(transport.LogHook{}))
	}
	a.executor = transport.NewExecutor(transport.NewRegistry(a.store, a.settings), cookies.NewRegistry(), a.credentials, opts...)
	return nil
}

// resolveAPIURL returns the --apiurl flag or the configured default, normalized.
func (a *app) resolveAPIURL() (string, error) {
	if a.apiURL != "" {
		return models.NormalizeAPIURL(a.apiURL)
	}
	return a.manager.DefaultAPIURL()
}
