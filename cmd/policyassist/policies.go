package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/policyassist/policyassist/pkg/batch"
	"github.com/policyassist/policyassist/pkg/debounce"
	"github.com/policyassist/policyassist/pkg/portal"
	"github.com/spf13/cobra"
)

func newPoliciesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "Manage indexed policies (staff)",
	}
	cmd.AddCommand(newPoliciesStatusCmd(opts))
	cmd.AddCommand(newPoliciesUploadCmd(opts))
	cmd.AddCommand(newPoliciesBatchCmd(opts))
	cmd.AddCommand(newPoliciesDeleteCmd(opts))
	cmd.AddCommand(newPoliciesJobCmd(opts))
	cmd.AddCommand(newPoliciesSearchCmd(opts))
	return cmd
}

func (a *app) policies() *portal.Policies {
	return portal.NewPolicies(a.client, a.session, a.logger, a.batchOptions()...)
}

func newPoliciesStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status [POLICY_NUMBER...]",
		Short: "Check whether policies are indexed",
		Long:  "Checks availability of the given policies, or of the sample policies when none are given.",
		RunE: opts.run(func(cmd *cobra.Command, a *app, args []string) error {
			infos, err := a.policies().Probe(cmd.Context(), args...)
			if err != nil {
				return err
			}
			printPolicyTable(cmd.OutOrStdout(), infos)
			return nil
		}),
	}
}

func printPolicyTable(out io.Writer, infos []portal.PolicyInfo) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "POLICY\tSTATUS\tCHUNKS\tINDEXED AT")
	for _, info := range infos {
		status := "unavailable"
		if info.Available {
			status = "available"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", info.Number, status, optional(info.ChunkCount), optionalString(info.IndexedAt))
	}
	_ = w.Flush()
}

func newPoliciesUploadCmd(opts *rootOptions) *cobra.Command {
	var number string

	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload and index one policy document",
		Args:  cobra.ExactArgs(1),
		RunE: opts.run(func(cmd *cobra.Command, a *app, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			msg, err := a.policies().Upload(cmd.Context(), doc, number)
			if err != nil {
				return err
			}
			printOK(cmd.OutOrStdout(), "%s", msg)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&number, "number", "n", "", "policy number")
	return cmd
}

func newPoliciesJobCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "job JOB_ID",
		Short: "Show the status of an upload job",
		Args:  cobra.ExactArgs(1),
		RunE: opts.run(func(cmd *cobra.Command, a *app, args []string) error {
			st, err := a.policies().JobStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printHeader(out, "Job %s", st.JobID)
			fmt.Fprintf(out, "Policy:  %s\n", st.PolicyNumber)
			fmt.Fprintf(out, "Status:  %s\n", st.Status)
			fmt.Fprintf(out, "Pages:   %s\n", optional(st.PageCount))
			fmt.Fprintf(out, "Chunks:  %s\n", optional(st.ChunkCount))
			if st.Error != nil && *st.Error != "" {
				printErr(out, "%s", *st.Error)
			}
			return nil
		}),
	}
}

func newPoliciesBatchCmd(opts *rootOptions) *cobra.Command {
	var numbers string

	cmd := &cobra.Command{
		Use:   "batch FILE...",
		Short: "Upload several policy documents in one request",
		Long:  "Uploads FILE... with the comma-separated --numbers in the same order. Every file needs a policy number.",
		Args:  cobra.MinimumNArgs(1),
		RunE: opts.run(func(cmd *cobra.Command, a *app, args []string) error {
			docs, err := readDocuments(args)
			if err != nil {
				return err
			}
			p := a.policies()
			if err := p.Batch().Add(docs...); err != nil {
				return err
			}
			for i, n := range splitList(numbers) {
				if i >= len(docs) {
					return fmt.Errorf("%d policy numbers given for %d files", len(splitList(numbers)), len(docs))
				}
				if err := p.Batch().SetMetadata(i, batch.KeyPolicyNumber, n); err != nil {
					return err
				}
			}

			outcome, err := p.SubmitBatch(cmd.Context())
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), outcome)
			if info := p.List(); len(info) > 0 {
				printPolicyTable(cmd.OutOrStdout(), info)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&numbers, "numbers", "", "comma-separated policy numbers, one per file")
	return cmd
}

func newPoliciesDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete POLICY_NUMBER",
		Short: "Delete a policy and its index",
		Args:  cobra.ExactArgs(1),
		RunE: opts.run(func(cmd *cobra.Command, a *app, args []string) error {
			msg, err := a.policies().Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printOK(cmd.OutOrStdout(), "%s", msg)
			return nil
		}),
	}
}

func newPoliciesSearchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search [QUERY]",
		Short: "Search policy numbers",
		Args:  cobra.MaximumNArgs(1),
		RunE: opts.run(func(cmd *cobra.Command, a *app, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			settled, onSettle := settleSignal()
			picker := portal.NewPolicySelector(a.client, a.session, a.logger,
				debounce.WithDelay[[]portal.SelectableOption](a.cfg.Search.Delay), onSettle)
			defer picker.Close()

			return printOptions(cmd.Context(), cmd.OutOrStdout(), picker, query, settled)
		}),
	}
}

// settleSignal returns a picker option that signals the channel each time
// a search settles.
func settleSignal() (<-chan struct{}, debounce.Option[[]portal.SelectableOption]) {
	ch := make(chan struct{}, 1)
	return ch, debounce.WithOnChange(func(r debounce.Result[[]portal.SelectableOption]) {
		if r.Pending {
			return
		}
		select {
		case ch <- struct{}{}:
		default:
		}
	})
}

// printOptions runs query on picker and prints the settled options.
func printOptions(ctx context.Context, out io.Writer, picker *portal.Picker, query string, settled <-chan struct{}) error {
	picker.Load(query)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-settled:
	}
	if err := picker.Result().Err; err != nil {
		return err
	}
	opts := picker.Options()
	if len(opts) == 0 {
		printFaint(out, "No matches")
		return nil
	}
	for _, o := range opts {
		fmt.Fprintf(out, "%s\t%s\n", o.Key, o.Label)
	}
	return nil
}
