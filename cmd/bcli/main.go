package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	apperror "buildClient/internal/error"
	"buildClient/internal/ui/views"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := &app{prompter: views.NewTerminalPrompter(os.Stdin, os.Stderr)}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode distinguishes failures scripts commonly branch on.
func exitCode(err error) int {
	var changed *apperror.CertificateIdentityChangedError
	var untrusted *apperror.CertificateUntrustedError
	var authErr *apperror.AuthenticationFailedError
	var status *apperror.HTTPStatusError
	switch {
	case errors.As(err, &changed), errors.As(err, &untrusted):
		return 3
	case errors.As(err, &authErr):
		return 4
	case errors.As(err, &status):
		return 5
	default:
		return 1
	}
}
