// Package store provides MessageStore implementations: PostgreSQL for
// production and an in-memory twin for development and tests.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/luciancaetano/kephaschat"
)

type conversation [2]string

func conversationOf(a, b string) conversation {
	if a > b {
		a, b = b, a
	}
	return conversation{a, b}
}

// Memory is a MessageStore held in process memory.
type Memory struct {
	mu       sync.RWMutex
	messages map[string]*kephaschat.Message
	order    []string
	receipts map[string]time.Time // message id -> read at
	pins     map[conversation]kephaschat.Pin
	now      func() time.Time
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		messages: make(map[string]*kephaschat.Message),
		receipts: make(map[string]time.Time),
		pins:     make(map[conversation]kephaschat.Pin),
		now:      time.Now,
	}
}

func cloneMessage(m *kephaschat.Message) *kephaschat.Message {
	c := *m
	if m.Media != nil {
		media := *m.Media
		media.Waveform = append([]float64(nil), m.Media.Waveform...)
		c.Media = &media
	}
	if m.ReplyTo != nil {
		reply := *m.ReplyTo
		c.ReplyTo = &reply
	}
	if m.EditedAt != nil {
		edited := *m.EditedAt
		c.EditedAt = &edited
	}
	return &c
}

func (s *Memory) SaveMessage(_ context.Context, msg *kephaschat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.messages[msg.ID]; exists {
		return fmt.Errorf("save message %s: duplicate id", msg.ID)
	}
	s.messages[msg.ID] = cloneMessage(msg)
	s.order = append(s.order, msg.ID)
	return nil
}

func (s *Memory) EditMessage(_ context.Context, id, by, text string) (*kephaschat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok || msg.From != by {
		return nil, fmt.Errorf("edit message %s: %w", id, kephaschat.ErrMessageNotFound)
	}
	now := s.now()
	msg.Text = text
	msg.EditedAt = &now
	return s.withRead(msg), nil
}

func (s *Memory) DeleteMessage(_ context.Context, id, by string) (*kephaschat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok || msg.From != by {
		return nil, fmt.Errorf("delete message %s: %w", id, kephaschat.ErrMessageNotFound)
	}
	out := s.withRead(msg)
	delete(s.messages, id)
	delete(s.receipts, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return out, nil
}

func (s *Memory) MarkRead(_ context.Context, from, to string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	ids := []string{}
	for _, id := range s.order {
		msg := s.messages[id]
		if msg.From != from || msg.To != to {
			continue
		}
		if _, read := s.receipts[id]; read {
			continue
		}
		s.receipts[id] = now
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Memory) PinMessage(_ context.Context, pin kephaschat.Pin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pin.PinnedAt.IsZero() {
		pin.PinnedAt = s.now()
	}
	s.pins[conversationOf(pin.PinnedBy, pin.Peer)] = pin
	return nil
}

func (s *Memory) UnpinMessage(_ context.Context, by, peer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pins, conversationOf(by, peer))
	return nil
}

func (s *Memory) PinnedMessages(_ context.Context, identity string) (map[string]kephaschat.Pin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]kephaschat.Pin)
	for conv, pin := range s.pins {
		switch identity {
		case conv[0]:
			out[conv[1]] = pin
		case conv[1]:
			out[conv[0]] = pin
		}
	}
	return out, nil
}

// Message returns a stored message by id.
func (s *Memory) Message(id string) (*kephaschat.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, false
	}
	return s.withRead(msg), true
}

// Conversation returns the messages exchanged between a and b, oldest first.
func (s *Memory) Conversation(a, b string) []*kephaschat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*kephaschat.Message
	for _, id := range s.order {
		msg := s.messages[id]
		if (msg.From == a && msg.To == b) || (msg.From == b && msg.To == a) {
			out = append(out, s.withRead(msg))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// withRead returns a copy of msg with Read derived from receipts. Caller holds the lock.
func (s *Memory) withRead(msg *kephaschat.Message) *kephaschat.Message {
	c := cloneMessage(msg)
	_, c.Read = s.receipts[msg.ID]
	return c
}
