package main

import (
	"github.com/spf13/cobra"
)

func newNotifyCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Trigger notification passes",
		Long: `Trigger the cron-driven notification passes by hand. The server's cron
secret is sent from --cron-secret or GOALTRACK_CRON_SECRET.`,
	}
	passes := []struct{ use, short, path string }{
		{"plan", "Queue today's reminders", "/functions/v1/generate-notifications"},
		{"dispatch", "Send due reminders", "/functions/v1/send-notifications"},
		{"daily", "Plan, then send what is due", "/functions/v1/daily-notifications"},
	}
	for _, p := range passes {
		path := p.path
		cmd.AddCommand(&cobra.Command{
			Use:   p.use,
			Short: p.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				var resp map[string]any
				if err := opts.client().post(cmd.Context(), path, nil, &resp); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp)
			},
		})
	}
	return cmd
}
