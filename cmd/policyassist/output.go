package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/policyassist/policyassist/pkg/api"
	"github.com/policyassist/policyassist/pkg/batch"
)

var (
	okColor    = color.New(color.FgGreen)
	errColor   = color.New(color.FgRed)
	warnColor  = color.New(color.FgYellow)
	headColor  = color.New(color.Bold)
	faintColor = color.New(color.Faint)
)

func printOK(w io.Writer, format string, args ...any) {
	_, _ = okColor.Fprintf(w, format+"\n", args...)
}

func printErr(w io.Writer, format string, args ...any) {
	_, _ = errColor.Fprintf(w, format+"\n", args...)
}

func printHeader(w io.Writer, format string, args ...any) {
	_, _ = headColor.Fprintf(w, format+"\n", args...)
}

func printFaint(w io.Writer, format string, args ...any) {
	_, _ = faintColor.Fprintf(w, format+"\n", args...)
}

func printCitations(w io.Writer, cites []api.Citation) {
	for _, c := range cites {
		ref := c.Section
		if p := c.PageLabel(); p != "" {
			ref += ", " + p
		}
		printFaint(w, "  [%s] %.0f%% match", ref, c.SimilarityScore*100)
	}
}

func printOutcome(w io.Writer, out *batch.Outcome) {
	if out.Failed == 0 {
		printOK(w, "%s", out.Message())
	} else {
		_, _ = warnColor.Fprintln(w, out.Message())
	}
	for _, it := range out.Items {
		id := it.Result.Identifier
		if id == "" {
			id = it.Entry.File.Name
		}
		if it.Result.Status.Indexed() {
			chunks := ""
			if it.Result.ChunkCount != nil {
				chunks = fmt.Sprintf(" (%d chunks)", *it.Result.ChunkCount)
			}
			printOK(w, "  ✓ %s %s%s", it.Entry.File.Name, id, chunks)
			continue
		}
		printErr(w, "  ✗ %s %s: %s", it.Entry.File.Name, id, it.Result.ErrorText())
	}
}

func optional(p *int) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprint(*p)
}

func optionalString(p *string) string {
	if p == nil || *p == "" {
		return "-"
	}
	return *p
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
