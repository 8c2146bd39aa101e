package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/policyassist/policyassist/pkg/api"
	"github.com/policyassist/policyassist/pkg/batch"
	"github.com/policyassist/policyassist/pkg/debounce"
	"github.com/policyassist/policyassist/pkg/paging"
	"github.com/policyassist/policyassist/pkg/portal"
	"github.com/spf13/cobra"
)

func newCommsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "comms",
		Aliases: []string{"communications"},
		Short:   "Manage indexed communications (staff)",
	}
	cmd.AddCommand(newCommsListCmd(opts))
	cmd.AddCommand(newCommsUploadCmd(opts))
	cmd.AddCommand(newCommsBatchCmd(opts))
	cmd.AddCommand(newCommsDeleteCmd(opts))
	cmd.AddCommand(newCommsSearchCmd(opts))
	return cmd
}

func (a *app) communications() *portal.Communications {
	return portal.NewCommunications(a.client, a.session, a.logger, a.batchOptions()...)
}

func parseType(s string, allowEmpty bool) (api.CommunicationType, error) {
	if s == "" && allowEmpty {
		return "", nil
	}
	return api.ParseCommunicationType(s)
}

func newCommsListCmd(opts *rootOptions) *cobra.Command {
	var (
		typ  string
		page int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List communications",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, a *app, args []string) error {
			t, err := parseType(typ, true)
			if err != nil {
				return err
			}
			c := a.communications()
			if err := c.Load(cmd.Context(), t); err != nil {
				return err
			}
			if page > 1 {
				if err := c.SetPage(cmd.Context(), page); err != nil {
					return err
				}
			}
			printCommTable(cmd.OutOrStdout(), c.List())
			return nil
		}),
	}
	cmd.Flags().StringVarP(&typ, "type", "t", "", "filter by communication type")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	return cmd
}

func printCommTable(out io.Writer, cur paging.Cursor[api.Communication, api.CommunicationType]) {
	if len(cur.Items) == 0 {
		printFaint(out, "No communications")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tTYPE\tSTATUS\tCHUNKS\tCREATED")
	for _, c := range cur.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", c.ID, c.Title, c.CommunicationType.Label(), c.Status, optional(c.ChunkCount), c.CreatedAt)
	}
	_ = w.Flush()
	printFaint(out, "Page %d of %d (%d total)", cur.Page, cur.TotalPages(), cur.Total)
}

func newCommsUploadCmd(opts *rootOptions) *cobra.Command {
	var typ, title string

	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload and index one communication",
		Args:  cobra.ExactArgs(1),
		RunE: opts.run(func(cmd *cobra.Command, a *app, args []string) error {
			t, err := parseType(typ, false)
			if err != nil {
				return err
			}
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			msg, err := a.communications().Upload(cmd.Context(), doc, t, title)
			if err != nil {
				return err
			}
			printOK(cmd.OutOrStdout(), "%s", msg)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&typ, "type", "t", string(api.CommLetter), "communication type")
	cmd.Flags().StringVar(&title, "title", "", "title (defaults to the file name)")
	return cmd
}

func newCommsBatchCmd(opts *rootOptions) *cobra.Command {
	var typ, titles string

	cmd := &cobra.Command{
		Use:   "batch FILE...",
		Short: "Upload several communications of one type",
		Args:  cobra.MinimumNArgs(1),
		RunE: opts.run(func(cmd *cobra.Command, a *app, args []string) error {
			t, err := parseType(typ, false)
			if err != nil {
				return err
			}
			docs, err := readDocuments(args)
			if err != nil {
				return err
			}
			c := a.communications()
			if err := c.SetBatchType(t); err != nil {
				return err
			}
			if err := c.Batch().Add(docs...); err != nil {
				return err
			}
			for i, title := range splitList(titles) {
				if i >= len(docs) {
					break
				}
				if err := c.Batch().SetMetadata(i, batch.KeyTitle, title); err != nil {
					return err
				}
			}

			outcome, err := c.SubmitBatch(cmd.Context())
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), outcome)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&typ, "type", "t", string(api.CommLetter), "communication type for every file")
	cmd.Flags().StringVar(&titles, "titles", "", "comma-separated titles, one per file")
	return cmd
}

func newCommsDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete DOC_ID",
		Short: "Delete a communication",
		Args:  cobra.ExactArgs(1),
		RunE: opts.run(func(cmd *cobra.Command, a *app, args []string) error {
			msg, err := a.communications().Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printOK(cmd.OutOrStdout(), "%s", msg)
			return nil
		}),
	}
}

func newCommsSearchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search [QUERY]",
		Short: "Search communications by title",
		Args:  cobra.MaximumNArgs(1),
		RunE: opts.run(func(cmd *cobra.Command, a *app, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			settled, onSettle := settleSignal()
			picker := portal.NewDocumentSearch(a.client, a.session, a.logger,
				debounce.WithDelay[[]portal.SelectableOption](a.cfg.Search.Delay), onSettle)
			defer picker.Close()

			return printOptions(cmd.Context(), cmd.OutOrStdout(), picker, query, settled)
		}),
	}
}
