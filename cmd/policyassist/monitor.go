package main

import (
	"context"
	"fmt"
	"time"

	"github.com/policyassist/policyassist/pkg/observability"
	"github.com/policyassist/policyassist/pkg/portal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMonitorCmd(opts *rootOptions) *cobra.Command {
	var schedule, metricsAddr string

	cmd := &cobra.Command{
		Use:   "monitor [POLICY_NUMBER...]",
		Short: "Re-check policy availability on a schedule (staff)",
		Long: "Probes availability of the given policies, or of the configured ones, on a cron schedule and\n" +
			"prints every change. With --metrics-addr it also serves /metrics and /health.",
		RunE: opts.run(func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if schedule == "" {
				schedule = a.cfg.Monitor.Schedule
			}
			numbers := args
			if len(numbers) == 0 {
				numbers = a.cfg.Monitor.Policies
			}
			mopts := []portal.MonitorOption{
				portal.WithMonitorLogger(a.logger),
				portal.WithAvailabilityChange(func(infos []portal.PolicyInfo) {
					printHeader(out, "%s", time.Now().Format(time.RFC3339))
					printPolicyTable(out, infos)
				}),
			}
			if len(numbers) > 0 {
				mopts = append(mopts, portal.WithPolicyNumbers(numbers...))
			}
			m, err := portal.NewMonitor(portal.NewPolicies(a.storeClient(), a.session, a.logger), schedule, mopts...)
			if err != nil {
				return err
			}

			if _, err := m.Check(ctx); err != nil {
				return err
			}

			if metricsAddr == "" {
				metricsAddr = a.cfg.Metrics.Addr
			}
			var srv *observability.Server
			if metricsAddr != "" {
				hc := m.HealthCheck()
				observability.GetHealthChecker().RegisterCheck(&hc)
				srv = observability.NewServer(metricsAddr)
				go func() {
					if err := srv.Start(); err != nil {
						a.logger.Error("metrics server failed", zap.Error(err))
					}
				}()
				printFaint(out, "Serving /metrics and /health on %s", metricsAddr)
			}

			m.Start(ctx)
			printFaint(out, "Monitoring %s; press Ctrl+C to stop", schedule)
			<-ctx.Done()
			m.Stop()

			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("metrics server shutdown: %w", err)
				}
			}
			return nil
		}),
	}

	cmd.Flags().StringVar(&schedule, "schedule", "", "cron expression or descriptor, e.g. \"@every 1m\"")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address for /metrics and /health, e.g. :9090")
	return cmd
}
