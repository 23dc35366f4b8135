// Package gmail implements the mail gateway over the Gmail REST API.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/mikey/llm-email-responder/internal/adapters/mailmsg"
	"github.com/mikey/llm-email-responder/internal/core"
)

const (
	userID      = "me"
	unreadLabel = "UNREAD"
)

// Options configures a Gateway.
type Options struct {
	// Query selects candidate messages, e.g. "is:unread in:inbox".
	Query string
	// ProcessedLabel, when set, is added to answered messages and excluded
	// from Query.
	ProcessedLabel string
	// From overrides the sender address; the mailbox address is used otherwise.
	From string
}

// Gateway implements core.MailGateway.
type Gateway struct {
	svc    *gmailapi.Service
	opts   Options
	logger *zap.Logger

	mu      sync.Mutex
	labelID string
	from    string
}

// New creates a Gateway backed by svc.
func New(svc *gmailapi.Service, opts Options, logger *zap.Logger) *Gateway {
	if opts.Query == "" {
		opts.Query = "is:unread in:inbox"
	}
	return &Gateway{svc: svc, opts: opts, logger: logger, from: opts.From}
}

func (g *Gateway) query() string {
	if g.opts.ProcessedLabel == "" {
		return g.opts.Query
	}
	return fmt.Sprintf("%s -label:%s", g.opts.Query, g.opts.ProcessedLabel)
}

// FetchUnread lists matching messages and downloads each in raw form.
// Messages that cannot be downloaded or parsed are logged and left out.
func (g *Gateway) FetchUnread(ctx context.Context, maxCount int) ([]core.Email, error) {
	list, err := g.svc.Users.Messages.List(userID).
		Q(g.query()).
		MaxResults(int64(maxCount)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	emails := make([]core.Email, 0, len(list.Messages))
	for _, ref := range list.Messages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		email, err := g.fetch(ctx, ref.Id)
		if err != nil {
			g.logger.Warn("Skipping unreadable message", zap.String("message_id", ref.Id), zap.Error(err))
			continue
		}
		emails = append(emails, email)
	}
	g.logger.Debug("Fetched Gmail messages", zap.Int("listed", len(list.Messages)), zap.Int("parsed", len(emails)))
	return emails, nil
}

func (g *Gateway) fetch(ctx context.Context, id string) (core.Email, error) {
	msg, err := g.svc.Users.Messages.Get(userID, id).Format("raw").Context(ctx).Do()
	if err != nil {
		return core.Email{}, fmt.Errorf("failed to get message: %w", err)
	}
	raw, err := decodeRaw(msg.Raw)
	if err != nil {
		return core.Email{}, err
	}
	email, err := mailmsg.Parse(raw)
	if err != nil {
		return core.Email{}, err
	}
	email.ID = msg.Id
	email.ThreadID = msg.ThreadId
	if email.ReceivedAt.IsZero() && msg.InternalDate > 0 {
		email.ReceivedAt = time.UnixMilli(msg.InternalDate)
	}
	return email, nil
}

// SendReply sends reply in original's thread.
func (g *Gateway) SendReply(ctx context.Context, original core.Email, reply string) error {
	from, err := g.sender(ctx)
	if err != nil {
		return err
	}
	raw, err := mailmsg.BuildReply(from, original, reply, time.Now())
	if err != nil {
		return err
	}
	_, err = g.svc.Users.Messages.Send(userID, &gmailapi.Message{
		Raw:      base64.URLEncoding.EncodeToString(raw),
		ThreadId: original.ThreadID,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}

// MarkProcessed clears UNREAD and adds the processed label when configured.
func (g *Gateway) MarkProcessed(ctx context.Context, messageID string) error {
	req := &gmailapi.ModifyMessageRequest{RemoveLabelIds: []string{unreadLabel}}
	if g.opts.ProcessedLabel != "" {
		labelID, err := g.ensureLabel(ctx)
		if err != nil {
			return err
		}
		req.AddLabelIds = []string{labelID}
	}
	if _, err := g.svc.Users.Messages.Modify(userID, messageID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to modify labels: %w", err)
	}
	return nil
}

// Ping checks that the mailbox is reachable with the current credentials.
func (g *Gateway) Ping(ctx context.Context) error {
	_, err := g.sender(ctx)
	return err
}

func (g *Gateway) sender(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.from != "" {
		return g.from, nil
	}
	profile, err := g.svc.Users.GetProfile(userID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to read mailbox profile: %w", err)
	}
	g.from = profile.EmailAddress
	return g.from, nil
}

func (g *Gateway) ensureLabel(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.labelID != "" {
		return g.labelID, nil
	}

	labels, err := g.svc.Users.Labels.List(userID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to list labels: %w", err)
	}
	for _, l := range labels.Labels {
		if strings.EqualFold(l.Name, g.opts.ProcessedLabel) {
			g.labelID = l.Id
			return g.labelID, nil
		}
	}

	created, err := g.svc.Users.Labels.Create(userID, &gmailapi.Label{
		Name:                  g.opts.ProcessedLabel,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create label %q: %w", g.opts.ProcessedLabel, err)
	}
	g.logger.Info("Created processed label", zap.String("label", created.Name), zap.String("id", created.Id))
	g.labelID = created.Id
	return g.labelID, nil
}

func decodeRaw(raw string) ([]byte, error) {
	if data, err := base64.URLEncoding.DecodeString(raw); err == nil {
		return data, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode raw message: %w", err)
	}
	return data, nil
}
