// Package suppress decides which senders must never receive an automatic
// reply.
package suppress

import (
	"net/mail"
	"strings"

	"go.uber.org/zap"
)

var automatedLocalParts = []string{"no-reply", "noreply", "do-not-reply", "donotreply", "mailer-daemon", "postmaster", "bounce"}

// Checker matches senders against suppressed domains, addresses and
// automated mailbox names.
type Checker struct {
	domains   map[string]bool
	addresses map[string]bool
	logger    *zap.Logger
}

// NewChecker builds a checker from entries that are either full addresses
// (user@example.com) or bare domains (example.com).
func NewChecker(entries []string, logger *zap.Logger) *Checker {
	c := &Checker{
		domains:   make(map[string]bool),
		addresses: make(map[string]bool),
		logger:    logger,
	}
	for _, e := range entries {
		e = strings.ToLower(strings.TrimSpace(e))
		switch {
		case e == "":
		case strings.Contains(e, "@"):
			c.addresses[e] = true
		default:
			c.domains[strings.TrimPrefix(e, "@")] = true
		}
	}

	if len(entries) > 0 && logger != nil {
		logger.Info("Initialized suppression list",
			zap.Int("domains", len(c.domains)),
			zap.Int("addresses", len(c.addresses)))
	}
	return c
}

// AddAddress suppresses a single address, typically the responder's own.
func (c *Checker) AddAddress(address string) {
	if address = normalize(address); address != "" {
		c.addresses[address] = true
	}
}

// IsSuppressed reports whether from must not be answered and why.
func (c *Checker) IsSuppressed(from string) (bool, string) {
	address := normalize(from)
	at := strings.LastIndex(address, "@")
	if at <= 0 {
		return true, "sender address is not valid"
	}
	local, domain := address[:at], address[at+1:]

	if c.addresses[address] {
		return true, "sender address is suppressed"
	}
	if c.domains[domain] {
		return true, "sender domain is suppressed"
	}
	for _, p := range automatedLocalParts {
		if local == p || strings.HasPrefix(local, p+"+") || strings.HasPrefix(local, p+".") {
			return true, "sender is an automated mailbox"
		}
	}
	return false, ""
}

func normalize(from string) string {
	from = strings.TrimSpace(from)
	if addr, err := mail.ParseAddress(from); err == nil {
		from = addr.Address
	}
	return strings.ToLower(from)
}
