package cmd

import (
	"github.com/spf13/cobra"
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "speaktoheaven",
		Short:         "Persona chat backend with entitlement-gated conversations",
		Long:          "speaktoheaven serves the persona chat API: conversations with biblical personas gated by a free quota, credits, subscriptions and lifetime access, with operator takeover.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	serve := newServeCmd()
	rootCmd.RunE = serve.RunE

	rootCmd.AddCommand(
		serve,
		newMigrateCmd(),
		newPersonasCmd(),
	)
	return rootCmd
}
