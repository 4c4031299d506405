// bus/bus.go
package bus

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// -----------------------------------------------------------------------------
// Tokens + Topics
// -----------------------------------------------------------------------------

// Wildcard tokens, valid in subscription patterns only.
// "+" matches exactly one level; "#" matches zero or more trailing levels
// and must be the last token of its pattern.
const (
	TokPlus = "+"
	TokHash = "#"

	tokReply = "$reply"
)

// Topic is a sequence of tokens. A token is a string or an int.
type Topic []any

// T builds a Topic, validating every token.
func T(tokens ...any) Topic {
	for _, tok := range tokens {
		validateToken(tok)
	}
	return Topic(tokens)
}

func validateToken(tok any) {
	switch tok.(type) {
	case string, int:
	default:
		panic("bus: topic token must be string or int")
	}
}

func (t Topic) Len() int { return len(t) }

// At returns the i-th token, or nil when out of range.
func (t Topic) At(i int) any {
	if i < 0 || i >= len(t) {
		return nil
	}
	return t[i]
}

// Append returns a new Topic with extra tokens; t is left unchanged.
func (t Topic) Append(tokens ...any) Topic {
	out := make(Topic, 0, len(t)+len(tokens))
	out = append(out, t...)
	for _, tok := range tokens {
		validateToken(tok)
		out = append(out, tok)
	}
	return out
}

// String renders the topic as "a/b/0" for logs.
func (t Topic) String() string {
	var sb strings.Builder
	for i, tok := range t {
		if i > 0 {
			sb.WriteByte('/')
		}
		switch v := tok.(type) {
		case string:
			sb.WriteString(v)
		case int:
			sb.WriteString(strconv.Itoa(v))
		default:
			sb.WriteByte('?')
		}
	}
	return sb.String()
}

// -----------------------------------------------------------------------------
// Message
// -----------------------------------------------------------------------------

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
	ReplyTo  Topic
}

// CanReply reports whether the publisher asked for a reply.
func (m *Message) CanReply() bool { return len(m.ReplyTo) > 0 }

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

type Subscription struct {
	topic Topic
	ch    chan *Message
	bus   *Bus
	conn  *Connection // owning connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// -----------------------------------------------------------------------------
// Trie node
// -----------------------------------------------------------------------------

type node struct {
	children map[any]*node
	subs     []*Subscription
	retained *Message
}

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

type Bus struct {
	mu   sync.Mutex
	root *node
	qLen int
	seq  atomic.Int64 // reply-inbox uniqueness
}

// NewBus creates a new bus with the given subscription queue length.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8 // safe default
	}
	return &Bus{
		root: &node{},
		qLen: queueLen,
	}
}

// NewMessage builds a message for Publish.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

// addSubscription inserts a subscription into the trie and delivers every
// retained message its pattern matches.
func (b *Bus) addSubscription(pattern Topic, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, tok := range pattern {
		if n.children == nil {
			n.children = make(map[any]*node)
		}
		child, ok := n.children[tok]
		if !ok {
			child = &node{}
			n.children[tok] = child
		}
		n = child
	}
	n.subs = append(n.subs, sub)

	b.matchRetained(b.root, pattern, sub)
}

// Publish delivers a message to all subscribers whose pattern matches its
// topic, then stores or clears the retained copy.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.match(b.root, msg.Topic, msg)

	if msg.Retained {
		n := b.ensure(msg.Topic)
		if msg.Payload == nil {
			n.retained = nil
		} else {
			n.retained = msg
		}
	}
}

// match walks the subscription trie against a concrete topic.
func (b *Bus) match(n *node, rest Topic, msg *Message) {
	if n == nil {
		return
	}
	if h := n.children[TokHash]; h != nil {
		// "#" matches the remainder, including zero levels.
		for _, sub := range h.subs {
			deliver(sub, msg)
		}
	}
	if len(rest) == 0 {
		for _, sub := range n.subs {
			deliver(sub, msg)
		}
		return
	}
	b.match(n.children[rest[0]], rest[1:], msg)
	b.match(n.children[TokPlus], rest[1:], msg)
}

// matchRetained delivers retained messages whose concrete topic the pattern
// accepts. Wildcard trie branches hold no retained state and are skipped.
func (b *Bus) matchRetained(n *node, pattern Topic, sub *Subscription) {
	if n == nil {
		return
	}
	if len(pattern) == 0 {
		if n.retained != nil {
			deliver(sub, n.retained)
		}
		return
	}
	switch pattern[0] {
	case TokHash:
		b.allRetained(n, sub)
	case TokPlus:
		for key, child := range n.children {
			if key == TokPlus || key == TokHash {
				continue
			}
			b.matchRetained(child, pattern[1:], sub)
		}
	default:
		b.matchRetained(n.children[pattern[0]], pattern[1:], sub)
	}
}

// allRetained delivers every retained message at or below n.
func (b *Bus) allRetained(n *node, sub *Subscription) {
	if n.retained != nil {
		deliver(sub, n.retained)
	}
	for key, child := range n.children {
		if key == TokPlus || key == TokHash {
			continue
		}
		b.allRetained(child, sub)
	}
}

// ensure creates the concrete path for retained storage.
func (b *Bus) ensure(topic Topic) *node {
	n := b.root
	for _, tok := range topic {
		if n.children == nil {
			n.children = make(map[any]*node)
		}
		child, ok := n.children[tok]
		if !ok {
			child = &node{}
			n.children[tok] = child
		}
		n = child
	}
	return n
}

// deliver never blocks: a full queue drops its oldest entry first.
func deliver(sub *Subscription, msg *Message) {
	select {
	case sub.ch <- msg:
	default:
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- msg:
		default:
		}
	}
}

// unsubscribe removes a subscription from the trie.
func (b *Bus) unsubscribe(pattern Topic, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	var stack []*node
	for _, tok := range pattern {
		if n.children == nil {
			return
		}
		child, ok := n.children[tok]
		if !ok {
			return
		}
		stack = append(stack, n)
		n = child
	}

	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}

	// Prune empty nodes.
	for i := len(pattern) - 1; i >= 0; i-- {
		parent := stack[i]
		key := pattern[i]
		child := parent.children[key]
		if len(child.subs) == 0 && len(child.children) == 0 && child.retained == nil {
			delete(parent.children, key)
		} else {
			break
		}
	}
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

type Connection struct {
	bus  *Bus
	subs []*Subscription
	mu   sync.Mutex
	id   string
}

// NewConnection creates a new connection bound to this bus.
func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{
		bus: b,
		id:  id,
	}
}

// NewMessage builds a message for Publish.
func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(topic, payload, retained)
}

// Publish sends a message via the bus.
func (c *Connection) Publish(msg *Message) {
	c.bus.Publish(msg)
}

// Subscribe registers a subscription owned by this connection.
func (c *Connection) Subscribe(pattern Topic) *Subscription {
	sub := &Subscription{
		topic: pattern,
		ch:    make(chan *Message, c.bus.qLen),
		bus:   c.bus,
		conn:  c,
	}
	c.bus.addSubscription(pattern, sub)
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscription owned by this connection. Calling it
// again, or after Disconnect, is a no-op.
func (c *Connection) Unsubscribe(sub *Subscription) {
	c.bus.unsubscribe(sub.topic, sub)
	c.mu.Lock()
	removed := false
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			removed = true
			break
		}
	}
	c.mu.Unlock()
	if removed {
		close(sub.ch)
	}
}

// Disconnect closes all subscriptions and clears them.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		c.bus.unsubscribe(sub.topic, sub)
		close(sub.ch)
	}
}

// -----------------------------------------------------------------------------
// Request / Reply
// -----------------------------------------------------------------------------

// Request stamps msg with a fresh reply inbox, subscribes to it, and
// publishes. The caller owns the returned subscription.
func (c *Connection) Request(msg *Message) *Subscription {
	seq := int(c.bus.seq.Add(1))
	msg.ReplyTo = Topic{tokReply, c.id, seq}
	sub := c.Subscribe(msg.ReplyTo)
	c.Publish(msg)
	return sub
}

// RequestWait performs Request and blocks for the first reply or ctx expiry.
func (c *Connection) RequestWait(ctx context.Context, msg *Message) (*Message, error) {
	sub := c.Request(msg)
	defer c.Unsubscribe(sub)
	select {
	case m := <-sub.Channel():
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reply publishes a response to the message's reply inbox, if it has one.
func (c *Connection) Reply(orig *Message, payload any, retained bool) {
	if !orig.CanReply() {
		return
	}
	c.Publish(&Message{Topic: orig.ReplyTo, Payload: payload, Retained: retained})
}
