package remote

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/devfolio-sync/internal/tokenfile"
)

// TokenSourceFromFile loads the token saved at path. When the file names a
// token endpoint and the token has a refresh token, the returned source
// refreshes silently and persists each new token back to path; otherwise the
// token is used as is. Returns ErrNotLoggedIn if no token file exists.
//
// ctx must outlive the TokenSource: refreshes use it.
func TokenSourceFromFile(ctx context.Context, path string, logger *slog.Logger) (oauth2.TokenSource, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tf, err := tokenfile.Load(path)
	if err != nil {
		return nil, err
	}

	if tf == nil {
		return nil, ErrNotLoggedIn
	}

	tok := tf.Token
	expired := !tok.Expiry.IsZero() && tok.Expiry.Before(time.Now())

	logger.Info("loaded saved token",
		slog.String("path", path),
		slog.Time("expiry", tok.Expiry),
		slog.Bool("expired", expired),
	)

	if !tf.Refreshable() {
		return oauth2.StaticTokenSource(tok), nil
	}

	cfg := &oauth2.Config{
		ClientID: tf.ClientID,
		Endpoint: oauth2.Endpoint{TokenURL: tf.TokenURL},
	}

	persist := &persistingSource{
		src:    cfg.TokenSource(ctx, tok),
		file:   *tf,
		path:   path,
		logger: logger,
		last:   tok.AccessToken,
	}

	return oauth2.ReuseTokenSource(tok, persist), nil
}

// persistingSource saves the token to disk whenever the wrapped source
// returns a different access token.
type persistingSource struct {
	src    oauth2.TokenSource
	file   tokenfile.File
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if tok.AccessToken == p.last {
		return tok, nil
	}

	p.last = tok.AccessToken
	p.file.Token = tok

	if err := tokenfile.Save(p.path, &p.file); err != nil {
		p.logger.Warn("failed to persist refreshed token",
			slog.String("path", p.path),
			slog.String("error", err.Error()),
		)

		return tok, nil
	}

	p.logger.Info("persisted refreshed token to disk",
		slog.String("path", p.path),
		slog.Time("new_expiry", tok.Expiry),
	)

	return tok, nil
}
