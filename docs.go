package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/devfolio-sync/internal/store"
)

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <collection> <id>",
		Short: "Write a document locally and queue it for sync",
		Long: `Write a document to the offline store and queue the change. The change is
never sent directly: run "sync" or keep "watch" running to replay the queue.

--op set (default) replaces the document, create queues a create, and update
merges the given fields into the local copy and queues only those fields.`,
		Args: cobra.ExactArgs(2),
		RunE: runPut,
	}

	cmd.Flags().String("data", "", "document JSON object, or @file to read it from a file")
	cmd.Flags().String("op", string(store.OpSet), "operation kind: set, create or update")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <collection> <id>",
		Short: "Delete a document locally and queue the delete",
		Args:  cobra.ExactArgs(2),
		RunE:  runDelete,
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <collection> <id>",
		Short: "Print a document from the offline store",
		Args:  cobra.ExactArgs(2),
		RunE:  runGet,
	}
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <collection>",
		Short: "List documents in the offline store",
		Args:  cobra.ExactArgs(1),
		RunE:  runList,
	}

	cmd.Flags().StringArray("where", nil, "only documents whose field equals value (field=value, repeatable)")

	return cmd
}

// mutationResult is the --json output of put and delete.
type mutationResult struct {
	OperationID string         `json:"operation_id"`
	Kind        store.OpKind   `json:"kind"`
	Collection  string         `json:"collection"`
	DocumentID  string         `json:"document_id"`
	Document    store.Document `json:"document,omitempty"`
}

func runPut(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()
	collection, id := args[0], args[1]

	rawOp, _ := cmd.Flags().GetString("op")

	kind, err := store.ParseOpKind(rawOp)
	if err != nil {
		return err
	}

	if kind == store.OpDelete {
		return fmt.Errorf("use the delete command to delete documents")
	}

	rawData, _ := cmd.Flags().GetString("data")

	data, err := parseDocument(rawData)
	if err != nil {
		return err
	}

	sess, err := openSession(ctx, cc.Cfg, sessionOptions{}, cc.Logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	var (
		doc  store.Document
		opID string
	)

	switch kind {
	case store.OpCreate:
		doc, opID, err = sess.Engine.Create(ctx, collection, id, data)
	case store.OpUpdate:
		doc, opID, err = sess.Engine.Update(ctx, collection, id, data)
	default:
		doc, opID, err = sess.Engine.Set(ctx, collection, id, data)
	}

	if err != nil {
		return err
	}

	return printMutation(cc, sess, mutationResult{
		OperationID: opID,
		Kind:        kind,
		Collection:  collection,
		DocumentID:  id,
		Document:    doc,
	})
}

func runDelete(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	sess, err := openSession(ctx, cc.Cfg, sessionOptions{}, cc.Logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	opID, err := sess.Engine.Delete(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	return printMutation(cc, sess, mutationResult{
		OperationID: opID,
		Kind:        store.OpDelete,
		Collection:  args[0],
		DocumentID:  args[1],
	})
}

func printMutation(cc *CLIContext, sess *Session, res mutationResult) error {
	if cc.Flags.JSON {
		return printJSON(os.Stdout, res)
	}

	cc.Statusf("Queued %s of %s/%s (operation %s)\n", res.Kind, res.Collection, res.DocumentID, res.OperationID)

	if st := sess.Sync.Status(); st.Pending > 0 {
		cc.Statusf("%s\n", formatPending(st.Pending))
	}

	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	sess, err := openSession(ctx, cc.Cfg, sessionOptions{}, cc.Logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	doc, err := sess.Store.Get(ctx, args[0], args[1])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("document %s/%s not found in the offline store", args[0], args[1])
		}

		return err
	}

	return printJSON(os.Stdout, doc)
}

func runList(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()
	collection := args[0]

	where, _ := cmd.Flags().GetStringArray("where")

	filter, err := parseWhere(where)
	if err != nil {
		return err
	}

	sess, err := openSession(ctx, cc.Cfg, sessionOptions{}, cc.Logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	docs, err := sess.Store.GetAll(ctx, collection, filter)
	if err != nil {
		return err
	}

	keyField := store.KeyField(collection)
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].StringField(keyField) < docs[j].StringField(keyField)
	})

	if cc.Flags.JSON {
		return printJSON(os.Stdout, docs)
	}

	if len(docs) == 0 {
		cc.Statusf("No documents in %s.\n", collection)
		return nil
	}

	rows := make([][]string, 0, len(docs))
	for _, doc := range docs {
		rows = append(rows, []string{doc.StringField(keyField), compactJSON(doc, maxCellWidth)})
	}

	printTable(os.Stdout, []string{strings.ToUpper(keyField), "DOCUMENT"}, rows)

	return nil
}

// parseDocument decodes a JSON object given inline or as @path.
func parseDocument(raw string) (store.Document, error) {
	data := []byte(raw)

	if path, ok := strings.CutPrefix(raw, "@"); ok {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading document file: %w", err)
		}

		data = b
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc store.Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("--data must be a JSON object: %w", err)
	}

	if doc == nil {
		return nil, fmt.Errorf("--data must be a JSON object, got null")
	}

	return doc, nil
}

// parseWhere turns field=value pairs into a document predicate. A document
// matches when every field renders to the given value.
func parseWhere(pairs []string) (func(store.Document) bool, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	type cond struct{ field, value string }

	conds := make([]cond, 0, len(pairs))

	for _, p := range pairs {
		field, value, ok := strings.Cut(p, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid --where %q: want field=value", p)
		}

		conds = append(conds, cond{field, value})
	}

	return func(doc store.Document) bool {
		for _, c := range conds {
			v, ok := doc[c.field]
			if !ok || fmt.Sprint(v) != c.value {
				return false
			}
		}

		return true
	}, nil
}
