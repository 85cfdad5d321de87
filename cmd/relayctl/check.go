package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/contactrelay/contactrelay/internal/email"
	"github.com/contactrelay/contactrelay/internal/logger"
)

var checkTimeout time.Duration

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the configured mail transport can be reached",
	Long: `Builds the configured transport. For SMTP it also connects, negotiates
STARTTLS and authenticates without sending a message.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().DurationVar(&checkTimeout, "timeout", 15*time.Second, "connection timeout")
}

// checker is implemented by transports that can verify connectivity.
type checker interface {
	Check(ctx context.Context) error
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
	defer cancel()

	transport, err := email.NewTransport(ctx, cfg, logger.Nop())
	if err != nil {
		return err
	}

	if c, ok := transport.(checker); ok {
		if err := c.Check(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s transport: connection OK\n", transport.Name())
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s transport: configured (no connectivity check available)\n", transport.Name())
	return nil
}
