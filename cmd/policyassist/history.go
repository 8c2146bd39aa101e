package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/policyassist/policyassist/pkg/api"
	"github.com/spf13/cobra"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		page     int
		userType string
		docType  string
		policy   string
		search   string
		stats    bool
		show     string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show query history",
		Long:  "Staff see the tenant-wide query log with optional filters; policyholders see their own questions.",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, a *app, args []string) error {
			out := cmd.OutOrStdout()
			sess := a.session.Current()

			if sess.IsPolicyholder() {
				h := a.portal.PolicyholderHistory()
				h.SetPage(cmd.Context(), page)
				cur := h.List()
				if cur.Err != nil {
					printFaint(out, "History is unavailable right now")
				}
				printHistory(out, cur.Items, false)
				printFaint(out, "Page %d of %d", cur.Page, cur.TotalPages())
				return nil
			}
			if !sess.IsStaff() {
				return errors.New("not signed in")
			}

			f := api.HistoryFilter{PolicyNumber: policy, Search: search}
			if userType != "" {
				ut, err := api.ParseUserType(userType)
				if err != nil {
					return err
				}
				f.UserType = ut
			}
			if docType != "" {
				dt, err := api.ParseDocumentType(docType)
				if err != nil {
					return err
				}
				f.DocumentType = dt
			}

			h := a.portal.StaffHistory()
			if show != "" {
				d := h.Toggle(cmd.Context(), show)
				if d == nil {
					return fmt.Errorf("query %s is unavailable", show)
				}
				printDetail(out, d)
				return nil
			}

			h.Filter(cmd.Context(), f)
			if page > 1 {
				h.SetPage(cmd.Context(), page)
			}
			if stats {
				h.LoadStats(cmd.Context())
				if st := h.Stats(); st != nil {
					printStats(out, st)
				}
			}
			cur := h.List()
			printHistory(out, cur.Items, true)
			printFaint(out, "Page %d of %d (%d total)", cur.Page, cur.TotalPages(), cur.Total)
			return nil
		}),
	}

	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().StringVar(&userType, "user-type", "", "staff or policyholder (staff only)")
	cmd.Flags().StringVar(&docType, "doc-type", "", "policy or communication (staff only)")
	cmd.Flags().StringVar(&policy, "policy", "", "filter by policy number (staff only)")
	cmd.Flags().StringVar(&search, "search", "", "search questions (staff only)")
	cmd.Flags().BoolVar(&stats, "stats", false, "show summary statistics (staff only)")
	cmd.Flags().StringVar(&show, "show", "", "show the full answer of one query (staff only)")
	return cmd
}

func printHistory(out io.Writer, items []api.HistoryItem, staff bool) {
	if len(items) == 0 {
		printFaint(out, "No queries yet")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if staff {
		fmt.Fprintln(w, "ID\tWHEN\tUSER\tDOC\tPOLICY\tQUESTION")
	} else {
		fmt.Fprintln(w, "ID\tWHEN\tQUESTION\tANSWER")
	}
	for _, it := range items {
		if staff {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", it.ID, it.QueriedAt, it.UserType.Label(), it.DocumentType.Label(),
				optionalString(it.PolicyNumber), truncate(it.Question, 60))
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", it.ID, it.QueriedAt, truncate(it.Question, 50), truncate(it.AnswerPreview, 60))
	}
	_ = w.Flush()
}

func printDetail(out io.Writer, d *api.HistoryDetail) {
	printHeader(out, "%s", d.Question)
	fmt.Fprintln(out, d.Answer)
	printFaint(out, "%s %s, confidence %.0f%%, %d ms, %s", d.UserType.Label(), d.UserIdentifier, d.Confidence*100, d.LatencyMs, d.QueriedAt)
	printCitations(out, d.Citations)
}

func printStats(out io.Writer, st *api.HistoryStats) {
	printHeader(out, "%d queries", st.TotalQueries)
	printFaint(out, "staff %d, policyholder %d", st.ByUserType.Staff, st.ByUserType.Policyholder)
	printFaint(out, "policy %d, communication %d", st.ByDocumentType.Policy, st.ByDocumentType.Communication)
	printFaint(out, "avg confidence %.0f%%, avg latency %.0f ms", st.AvgConfidence*100, st.AvgLatencyMs)
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
