// Package testutil holds deterministic stand-ins for external providers.
package testutil

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mikey/llm-email-responder/internal/core"
)

// ScriptedLLM answers completions with a caller-supplied function and records
// every prompt it receives.
type ScriptedLLM struct {
	mu      sync.Mutex
	prompts []string
	Respond func(ctx context.Context, prompt string) (string, error)
}

// NewScriptedLLM returns an LLM that always answers with reply.
func NewScriptedLLM(reply string) *ScriptedLLM {
	return &ScriptedLLM{Respond: func(context.Context, string) (string, error) { return reply, nil }}
}

// Complete records prompt and delegates to Respond.
func (s *ScriptedLLM) Complete(ctx context.Context, prompt string, _ int) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.Respond(ctx, prompt)
}

// Calls returns how many completions were requested.
func (s *ScriptedLLM) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// Prompts returns a copy of the recorded prompts.
func (s *ScriptedLLM) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.prompts))
	copy(out, s.prompts)
	return out
}

// IsClassifyPrompt reports whether prompt came from the intent classifier.
func IsClassifyPrompt(prompt string) bool {
	return strings.Contains(prompt, "Classify the email below")
}

// SentReply is one reply recorded by FakeGateway.
type SentReply struct {
	Original core.Email
	Text     string
}

// FakeGateway is an in-memory MailGateway. Unread mail stays unread until it
// is marked processed, unless KeepUnread is set.
type FakeGateway struct {
	mu         sync.Mutex
	inbox      []core.Email
	processed  map[string]bool
	sent       []SentReply
	KeepUnread bool
	FetchErr   error
	// SendErr, when set, decides the outcome of each send attempt.
	SendErr  func(original core.Email, attempt int) error
	attempts map[string]int
	// OnSend runs before each send attempt.
	OnSend func(original core.Email)
}

// NewFakeGateway seeds the inbox with emails.
func NewFakeGateway(emails ...core.Email) *FakeGateway {
	return &FakeGateway{
		inbox:     emails,
		processed: make(map[string]bool),
		attempts:  make(map[string]int),
	}
}

// FetchUnread returns up to maxCount unread messages in inbox order.
func (g *FakeGateway) FetchUnread(ctx context.Context, maxCount int) ([]core.Email, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FetchErr != nil {
		return nil, g.FetchErr
	}
	var out []core.Email
	for _, e := range g.inbox {
		if len(out) >= maxCount {
			break
		}
		if g.processed[e.ID] && !g.KeepUnread {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// SendReply records the reply unless SendErr rejects it.
func (g *FakeGateway) SendReply(ctx context.Context, original core.Email, reply string) error {
	if g.OnSend != nil {
		g.OnSend(original)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.attempts[original.ID]++
	if g.SendErr != nil {
		if err := g.SendErr(original, g.attempts[original.ID]); err != nil {
			return err
		}
	}
	g.sent = append(g.sent, SentReply{Original: original, Text: reply})
	return nil
}

// MarkProcessed flags id as read.
func (g *FakeGateway) MarkProcessed(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.processed[id] = true
	return nil
}

// Sent returns the recorded replies.
func (g *FakeGateway) Sent() []SentReply {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]SentReply, len(g.sent))
	copy(out, g.sent)
	return out
}

// SentTo returns how many replies went out for message id.
func (g *FakeGateway) SentTo(id string) int {
	n := 0
	for _, s := range g.Sent() {
		if s.Original.ID == id {
			n++
		}
	}
	return n
}

// Attempts returns the number of send attempts for id.
func (g *FakeGateway) Attempts(id string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempts[id]
}

// IsProcessed reports whether id was marked processed.
func (g *FakeGateway) IsProcessed(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.processed[id]
}

// ErrSMTPUnavailable is a canned transient send failure.
var ErrSMTPUnavailable = errors.New("421 service not available")

// WritePolicies lays out a policy corpus under a temporary directory.
func WritePolicies(t testing.TB, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", path, err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	return dir
}
