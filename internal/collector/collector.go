// Package collector routes message component clicks to the live session that
// owns the clicked message.
package collector

import (
	"sync"

	"github.com/bwmarrin/discordgo"
)

const clickBuffer = 16

// Click is a single component interaction delivered to a Collector.
type Click struct {
	UserID      string
	CustomID    string
	Interaction *discordgo.Interaction
}

// Router dispatches component interactions by message ID.
// The zero value is not usable; use NewRouter.
type Router struct {
	mu         sync.RWMutex
	collectors map[string]*Collector
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{collectors: make(map[string]*Collector)}
}

// Subscribe registers a Collector for clicks on messageID. A previous
// collector for the same message is stopped.
func (r *Router) Subscribe(messageID string) *Collector {
	c := &Collector{
		router:    r,
		messageID: messageID,
		clicks:    make(chan Click, clickBuffer),
		done:      make(chan struct{}),
	}
	r.mu.Lock()
	prev := r.collectors[messageID]
	r.collectors[messageID] = c
	r.mu.Unlock()
	if prev != nil {
		prev.stop(false)
	}
	return c
}

// Len returns the number of live collectors.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.collectors)
}

// Dispatch hands a component interaction to the collector subscribed to its
// message. It returns false if the interaction is not a component click or
// no live collector wants it.
func (r *Router) Dispatch(i *discordgo.Interaction) bool {
	if i == nil || i.Type != discordgo.InteractionMessageComponent || i.Message == nil {
		return false
	}
	r.mu.RLock()
	c := r.collectors[i.Message.ID]
	r.mu.RUnlock()
	if c == nil {
		return false
	}
	return c.deliver(Click{
		UserID:      InteractionUserID(i),
		CustomID:    i.MessageComponentData().CustomID,
		Interaction: i,
	})
}

func (r *Router) remove(c *Collector) {
	r.mu.Lock()
	if r.collectors[c.messageID] == c {
		delete(r.collectors, c.messageID)
	}
	r.mu.Unlock()
}

// Collector is a stream of clicks on one message.
type Collector struct {
	router    *Router
	messageID string
	clicks    chan Click
	done      chan struct{}
	once      sync.Once
}

// C returns the click stream. It is never closed; select on Done as well.
func (c *Collector) C() <-chan Click { return c.clicks }

// Done is closed once the collector is stopped.
func (c *Collector) Done() <-chan struct{} { return c.done }

// MessageID returns the message this collector is scoped to.
func (c *Collector) MessageID() string { return c.messageID }

// Stop unregisters the collector. After Stop returns no further click is
// delivered. Safe to call more than once.
func (c *Collector) Stop() { c.stop(true) }

func (c *Collector) stop(unregister bool) {
	c.once.Do(func() {
		if unregister {
			c.router.remove(c)
		}
		close(c.done)
	})
}

func (c *Collector) deliver(click Click) bool {
	// checked first so a stopped collector never takes a click even when
	// the buffer has room
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.clicks <- click:
		return true
	case <-c.done:
		return false
	}
}

// InteractionUserID returns the invoking user for guild and DM interactions.
func InteractionUserID(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
