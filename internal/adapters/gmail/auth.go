package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// NewService builds a Gmail API client from an OAuth client secret file and a
// previously authorised token file. Refreshed tokens are written back.
func NewService(ctx context.Context, credentialsFile, tokenFile string, logger *zap.Logger) (*gmailapi.Service, error) {
	secret, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read Gmail credentials: %w", err)
	}
	oauthCfg, err := google.ConfigFromJSON(secret, gmailapi.GmailModifyScope, gmailapi.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Gmail credentials: %w", err)
	}

	tok, err := loadToken(tokenFile)
	if err != nil {
		return nil, err
	}
	ts := &savingTokenSource{
		base:   oauthCfg.TokenSource(ctx, tok),
		path:   tokenFile,
		last:   tok.AccessToken,
		logger: logger,
	}

	svc, err := gmailapi.NewService(ctx, option.WithTokenSource(oauth2.ReuseTokenSource(tok, ts)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return svc, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read Gmail token (authorise the account first): %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to parse Gmail token: %w", err)
	}
	return &tok, nil
}

// savingTokenSource persists refreshed tokens so restarts reuse them.
type savingTokenSource struct {
	base   oauth2.TokenSource
	path   string
	last   string
	logger *zap.Logger
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := s.save(tok); err != nil {
			s.logger.Warn("Failed to persist refreshed Gmail token", zap.String("path", s.path), zap.Error(err))
		}
	}
	return tok, nil
}

func (s *savingTokenSource) save(tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to encode Gmail token: %w", err)
	}
	return os.WriteFile(s.path, data, 0o600)
}
