// Package smtp implements the mail gateway as an inbound SMTP listener paired
// with an outbound relay. Messages delivered to the listener are queued in
// memory until the pipeline marks them processed.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-responder/internal/adapters/mailmsg"
	"github.com/mikey/llm-email-responder/internal/core"
)

// Options configures a Gateway.
type Options struct {
	ListenAddress   string
	Domain          string
	QueueSize       int
	MaxMessageBytes int64
	RelayAddress    string
	Username        string
	Password        string
	// From is the address replies are sent from.
	From        string
	DialTimeout time.Duration
	// TLSConfig is used for STARTTLS on the relay connection.
	TLSConfig *tls.Config
}

// Gateway implements core.MailGateway.
type Gateway struct {
	opts   Options
	queue  *queue
	server *smtp.Server
	logger *zap.Logger
}

// New creates a Gateway. The listener is not started until Start or Serve.
func New(opts Options, logger *zap.Logger) *Gateway {
	if opts.Domain == "" {
		opts.Domain = "localhost"
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	g := &Gateway{
		opts:   opts,
		queue:  newQueue(opts.QueueSize),
		logger: logger,
	}

	g.server = smtp.NewServer(&backend{gateway: g})
	g.server.Addr = opts.ListenAddress
	g.server.Domain = opts.Domain
	g.server.ReadTimeout = 30 * time.Second
	g.server.WriteTimeout = 30 * time.Second
	g.server.MaxMessageBytes = opts.MaxMessageBytes
	g.server.MaxRecipients = 50
	g.server.AllowInsecureAuth = true
	return g
}

// Start listens on the configured address in the background.
func (g *Gateway) Start() error {
	l, err := net.Listen("tcp", g.opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", g.opts.ListenAddress, err)
	}
	go func() {
		if err := g.Serve(l); err != nil {
			g.logger.Error("SMTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Serve accepts connections on l until Stop is called.
func (g *Gateway) Serve(l net.Listener) error {
	g.logger.Info("SMTP listener starting", zap.String("address", l.Addr().String()))
	if err := g.server.Serve(l); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop closes the listener and all open sessions.
func (g *Gateway) Stop() error {
	return g.server.Close()
}

// FetchUnread returns queued messages, oldest first.
func (g *Gateway) FetchUnread(ctx context.Context, maxCount int) ([]core.Email, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.queue.pending(maxCount), nil
}

// MarkProcessed drops the message from the queue.
func (g *Gateway) MarkProcessed(_ context.Context, messageID string) error {
	if !g.queue.remove(messageID) {
		g.logger.Debug("Processed message was not queued", zap.String("message_id", messageID))
	}
	return nil
}

// Pending reports the number of queued messages.
func (g *Gateway) Pending() int {
	return g.queue.len()
}

// SendReply relays reply to the original sender.
func (g *Gateway) SendReply(ctx context.Context, original core.Email, reply string) error {
	data, err := mailmsg.BuildReply(g.opts.From, original, reply, time.Now())
	if err != nil {
		return err
	}
	return g.relay(ctx, g.opts.From, []string{original.From}, data)
}

// Ping opens and closes a session with the relay.
func (g *Gateway) Ping(ctx context.Context) error {
	c, err := g.dial(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Quit()
}

func (g *Gateway) connect(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: g.opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", g.opts.RelayAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}
	deadline := time.Now().Add(30 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set connection deadline: %w", err)
	}
	return conn, nil
}

func (g *Gateway) tlsConfig() *tls.Config {
	cfg := &tls.Config{}
	if g.opts.TLSConfig != nil {
		cfg = g.opts.TLSConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName, _, _ = net.SplitHostPort(g.opts.RelayAddress)
	}
	return cfg
}

// dial returns a client ready for MAIL FROM. go-smtp negotiates STARTTLS
// only while creating a client, so a relay advertising it gets a second
// connection.
func (g *Gateway) dial(ctx context.Context) (*smtp.Client, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := g.connect(ctx)
	if err != nil {
		return nil, err
	}
	c := smtp.NewClient(conn)
	if err := c.Hello(hostname); err != nil {
		c.Close()
		return nil, fmt.Errorf("EHLO failed: %w", err)
	}

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.Quit(); err != nil {
			c.Close()
		}
		conn, err = g.connect(ctx)
		if err != nil {
			return nil, err
		}
		c, err = smtp.NewClientStartTLS(conn, g.tlsConfig())
		if err != nil {
			return nil, fmt.Errorf("STARTTLS failed: %w", err)
		}
		// The handshake runs with the second EHLO.
		if err := c.Hello(hostname); err != nil {
			c.Close()
			return nil, fmt.Errorf("STARTTLS failed: %w", err)
		}
	}

	if g.opts.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", g.opts.Username, g.opts.Password)); err != nil {
			c.Close()
			return nil, fmt.Errorf("AUTH failed: %w", err)
		}
	}
	return c, nil
}

func (g *Gateway) relay(ctx context.Context, sender string, recipients []string, data []byte) error {
	c, err := g.dial(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	for _, rcpt := range recipients {
		if err := c.Rcpt(rcpt, nil); err != nil {
			return fmt.Errorf("RCPT TO %s failed: %w", rcpt, err)
		}
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send message data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("relay rejected message: %w", err)
	}

	if err := c.Quit(); err != nil {
		g.logger.Warn("QUIT command failed", zap.Error(err))
	}
	return nil
}

type backend struct {
	gateway *Gateway
}

func (b *backend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &session{gateway: b.gateway}, nil
}

type session struct {
	gateway    *Gateway
	sender     string
	recipients []string
}

func (s *session) Reset() {
	s.sender = ""
	s.recipients = nil
}

func (s *session) Logout() error {
	return nil
}

func (s *session) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

func (s *session) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

func (s *session) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		s.gateway.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	email, err := mailmsg.Parse(raw)
	if err != nil {
		s.gateway.logger.Warn("Rejecting unparsable message", zap.String("sender", s.sender), zap.Error(err))
		return &smtp.SMTPError{
			Code:         554,
			EnhancedCode: smtp.EnhancedCode{5, 6, 0},
			Message:      "Malformed message",
		}
	}

	email.ID = uuid.NewString()
	if id := email.Header("Message-Id"); id != "" {
		email.ThreadID = id
	}
	if email.From == "" {
		email.From = s.sender
	}
	if len(email.To) == 0 {
		email.To = append([]string(nil), s.recipients...)
	}
	if email.ReceivedAt.IsZero() {
		email.ReceivedAt = time.Now()
	}

	if err := s.gateway.queue.push(email); err != nil {
		s.gateway.logger.Warn("Queue full, deferring message", zap.String("sender", s.sender))
		return err
	}
	s.gateway.logger.Debug("Queued inbound message",
		zap.String("message_id", email.ID),
		zap.String("from", email.From),
		zap.Int("size", len(raw)))
	return nil
}
