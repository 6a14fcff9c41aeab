package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/devfolio-sync/internal/cache"
	"github.com/tonimelisma/devfolio-sync/internal/store"
)

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <collection>",
		Short: "Read a collection from the remote through the offline cache",
		Long: `Read every document of a collection from the remote store. A cached copy
younger than --ttl is served without contacting the remote; an older copy is
discarded and refetched. While offline only a fresh cached copy can be served;
with --wait the command keeps checking connectivity and retries once the remote
is reachable again.`,
		Args: cobra.ExactArgs(1),
		RunE: runFetch,
	}

	cmd.Flags().Duration("ttl", 0, "maximum age of a cached copy (default: [cache] ttl)")
	cmd.Flags().Bool("refresh", false, "ignore any cached copy and fetch now")
	cmd.Flags().Duration("wait", 0, "when offline, wait up to this long for the remote and retry")

	return cmd
}

// fetchResult is the --json output of fetch.
type fetchResult struct {
	Collection string           `json:"collection"`
	FromCache  bool             `json:"from_cache"`
	FetchedAt  time.Time        `json:"fetched_at"`
	Offline    bool             `json:"offline"`
	Documents  []store.Document `json:"documents"`
}

// collectionCacheKey names the cache entry holding a whole collection.
func collectionCacheKey(collection string) string {
	return "collection_" + collection
}

func runFetch(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()
	collection := args[0]

	ttl, _ := cmd.Flags().GetDuration("ttl")
	refresh, _ := cmd.Flags().GetBool("refresh")
	wait, _ := cmd.Flags().GetDuration("wait")

	sess, err := openSession(ctx, cc.Cfg, sessionOptions{Probe: true}, cc.Logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	rc, err := sess.requireRemote()
	if err != nil {
		return err
	}

	var fetch cache.FetchFunc[[]store.Document] = func(ctx context.Context) ([]store.Document, error) {
		return rc.ListDocuments(ctx, collection)
	}

	loaded := make(chan struct{}, 1)

	res := cache.NewResource(sess.Cache, collectionCacheKey(collection), fetch, cache.ResourceOptions[[]store.Document]{
		TTL:           ttl,
		RetryOnOnline: cc.Cfg.Cache.RetryOnOnline,
		OnChange: func(st cache.State[[]store.Document]) {
			if !st.Loading && st.Err == nil && st.HasData {
				select {
				case loaded <- struct{}{}:
				default:
				}
			}
		},
	})
	defer res.Close()

	var st cache.State[[]store.Document]
	if refresh {
		st = res.Refresh(ctx)
	} else {
		st = res.Start(ctx)
	}

	if wait > 0 && errors.Is(st.Err, cache.ErrOffline) {
		st = waitForReconnect(ctx, cc, sess, res, loaded, wait)
	}

	if st.Err != nil {
		if errors.Is(st.Err, cache.ErrOffline) {
			return fmt.Errorf("you are offline and no fresh cached copy of %s exists", collection)
		}

		return st.Err
	}

	if cc.Flags.JSON {
		return printJSON(os.Stdout, fetchResult{
			Collection: collection,
			FromCache:  st.FromCache,
			FetchedAt:  st.FetchedAt,
			Offline:    st.IsOffline,
			Documents:  st.Data,
		})
	}

	if st.FromCache {
		cc.Statusf("Served from cache (fetched %s)\n", formatTime(st.FetchedAt))
	}

	if st.IsOffline {
		cc.Statusf("You are offline. Using cached data.\n")
	}

	return printJSON(os.Stdout, st.Data)
}

// waitForReconnect tracks connectivity for up to timeout and returns once
// the resource reloads after the remote comes back.
func waitForReconnect(ctx context.Context, cc *CLIContext, sess *Session, res *cache.Resource[[]store.Document],
	loaded <-chan struct{}, timeout time.Duration,
) cache.State[[]store.Document] {
	if !cc.Cfg.Cache.RetryOnOnline {
		cc.Logger.Warn("--wait has no effect with [cache] retry_on_online = false")
		return res.Snapshot()
	}

	source := connectivitySource(sess, cc.Cfg, cc.Logger)
	if source == nil {
		return res.Snapshot()
	}

	cc.Statusf("Offline, waiting up to %s for the remote...\n", timeout)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan struct{})

	go func() {
		defer close(done)

		if err := source(ctx); err != nil {
			cc.Logger.Warn("connectivity tracking stopped", slog.String("error", err.Error()))
		}
	}()

	// Subscribes to reconnects; the load it makes is still offline.
	res.Start(ctx)

	select {
	case <-loaded:
	case <-ctx.Done():
	}

	cancel()
	<-done
	res.Close()

	return res.Snapshot()
}
