package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/neboloop/chplg-devtools/internal/store"
)

func newTailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow logs (or errors) as they reach the shared store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			return runTail(cmd.Context(), st, cmd.OutOrStdout(), tailErrors, tailLines)
		},
	}
	cmd.Flags().BoolVar(&tailErrors, "errors", false, "follow errors instead of logs")
	cmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "number of existing entries to print first")
	return cmd
}

// tailer prints entries it has not printed before. Entries are matched by
// id against the previous snapshot, which is bounded by the store caps.
type tailer struct {
	st     *store.FileStore
	out    io.Writer
	errors bool
	seen   map[string]struct{}
}

func (t *tailer) snapshot() []store.ErrorEntry {
	if t.errors {
		return t.st.GetErrors(store.Filter{})
	}
	logs := t.st.GetLogs(store.Filter{})
	entries := make([]store.ErrorEntry, len(logs))
	for i, l := range logs {
		entries[i] = store.ErrorEntry{LogEntry: l}
	}
	return entries
}

// print writes unseen entries, at most the last limit when limit > 0.
func (t *tailer) print(limit int) {
	entries := t.snapshot()
	seen := make(map[string]struct{}, len(entries))
	var fresh []store.ErrorEntry
	for _, e := range entries {
		seen[e.ID] = struct{}{}
		if _, ok := t.seen[e.ID]; !ok {
			fresh = append(fresh, e)
		}
	}
	t.seen = seen

	if limit > 0 && len(fresh) > limit {
		fresh = fresh[len(fresh)-limit:]
	}
	for _, e := range fresh {
		fmt.Fprintln(t.out, formatEntry(e))
	}
}

func runTail(ctx context.Context, st *store.FileStore, out io.Writer, errors bool, lines int) error {
	t := &tailer{st: st, out: out, errors: errors}
	if lines > 0 {
		t.print(lines)
	} else {
		t.seen = make(map[string]struct{})
		for _, e := range t.snapshot() {
			t.seen[e.ID] = struct{}{}
		}
	}
	return st.Watch(ctx, func() { t.print(0) })
}

func formatEntry(e store.ErrorEntry) string {
	var b strings.Builder
	b.WriteString(time.UnixMilli(e.Timestamp).Format("15:04:05.000"))
	fmt.Fprintf(&b, " %-5s", strings.ToUpper(string(e.Level)))
	if name := e.ExtensionName; name != "" {
		fmt.Fprintf(&b, " [%s]", name)
	} else if e.ExtensionID != "" {
		fmt.Fprintf(&b, " [%s]", e.ExtensionID)
	}
	if e.Type != "" {
		fmt.Fprintf(&b, " %s:", e.Type)
	}
	b.WriteString(" ")
	b.WriteString(e.Message)
	if e.Source != "" {
		b.WriteString(" (")
		b.WriteString(e.Source)
		if e.Line != nil {
			fmt.Fprintf(&b, ":%d", *e.Line)
		}
		b.WriteString(")")
	}
	if e.Stack != "" {
		b.WriteString("\n")
		b.WriteString(e.Stack)
	}
	return b.String()
}
