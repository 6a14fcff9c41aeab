package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/devfolio-sync/internal/store"
)

func newPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List queued changes in replay order",
		Args:  cobra.NoArgs,
		RunE:  runPending,
	}
}

// pendingJSON is one queued operation in --json output.
type pendingJSON struct {
	ID         string         `json:"id"`
	Kind       store.OpKind   `json:"kind"`
	Collection string         `json:"collection"`
	DocumentID string         `json:"document_id"`
	QueuedAt   time.Time      `json:"queued_at"`
	Data       store.Document `json:"data,omitempty"`
}

func runPending(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	sess, err := openSession(ctx, cc.Cfg, sessionOptions{}, cc.Logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	ops, err := sess.Queue.ListPending(ctx)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		out := make([]pendingJSON, 0, len(ops))
		for _, op := range ops {
			out = append(out, pendingJSON{
				ID:         op.ID,
				Kind:       op.Kind(),
				Collection: op.Collection(),
				DocumentID: op.DocumentID(),
				QueuedAt:   time.UnixMilli(op.Timestamp).UTC(),
				Data:       op.Data(),
			})
		}

		return printJSON(os.Stdout, out)
	}

	if len(ops) == 0 {
		cc.Statusf("No changes pending.\n")
		return nil
	}

	rows := make([][]string, 0, len(ops))
	for _, op := range ops {
		rows = append(rows, []string{
			op.ID,
			string(op.Kind()),
			docRef(op),
			formatTime(time.UnixMilli(op.Timestamp)),
		})
	}

	printTable(os.Stdout, []string{"ID", "KIND", "DOCUMENT", "QUEUED"}, rows)
	cc.Statusf("%s\n", formatPending(len(ops)))

	return nil
}
