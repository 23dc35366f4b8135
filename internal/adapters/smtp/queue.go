package smtp

import (
	"sync"

	"github.com/emersion/go-smtp"

	"github.com/mikey/llm-email-responder/internal/core"
)

var errQueueFull = &smtp.SMTPError{
	Code:         452,
	EnhancedCode: smtp.EnhancedCode{4, 3, 1},
	Message:      "Mail queue full, try again later",
}

// queue holds accepted messages until they are marked processed.
type queue struct {
	mu    sync.Mutex
	limit int
	items []core.Email
}

func newQueue(limit int) *queue {
	return &queue{limit: limit}
}

func (q *queue) push(email core.Email) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.limit > 0 && len(q.items) >= q.limit {
		return errQueueFull
	}
	q.items = append(q.items, email)
	return nil
}

// pending returns up to max messages, oldest first, without removing them.
func (q *queue) pending(max int) []core.Email {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	if max > 0 && max < n {
		n = max
	}
	out := make([]core.Email, n)
	copy(out, q.items[:n])
	return out
}

func (q *queue) remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.items {
		if e.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
