// Package paginator presents a fixed set of pages on one interaction
// response and lets the invoking user flip through them with buttons until
// the session expires.
package paginator

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jonboulle/clockwork"

	"github.com/keshon/pagebot/internal/collector"
)

const (
	// DefaultTimeout is how long a session accepts clicks.
	DefaultTimeout = 2 * time.Minute
	// MaxTimeout is the interaction token lifetime. The expiry edit goes
	// through the token, so no session may outlive it.
	MaxTimeout = 15 * time.Minute

	noResultsText = "No results found."
	notOwnerText  = "This menu isn't yours."
)

// Logger provides leveled logging. If nil, log calls are no-ops.
type Logger interface {
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
}

// Responder abstracts the Discord interaction endpoints for testing.
type Responder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse) error
	InteractionResponse(interaction *discordgo.Interaction) (*discordgo.Message, error)
	InteractionResponseEdit(interaction *discordgo.Interaction, edit *discordgo.WebhookEdit) (*discordgo.Message, error)
}

// Page is one pre-rendered page. The controller never inspects it.
type Page struct {
	Content string
	Embeds  []*discordgo.MessageEmbed
}

// Attachment is a file shown alongside a page. Data is re-read on every
// render, so the same page can be shown any number of times.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Options tune a single Present call.
type Options struct {
	// Timeout overrides the controller's session timeout when positive.
	// It is capped at MaxTimeout.
	Timeout time.Duration
	// Deferred means the source interaction was already answered with a
	// deferred response, so the first page is delivered as an edit.
	Deferred bool
}

// Controller presents page sets. It is safe for concurrent use; every
// Present call gets its own independent session.
type Controller struct {
	api     Responder
	router  *collector.Router
	clock   clockwork.Clock
	timeout time.Duration
	log     Logger
	wg      sync.WaitGroup
}

// New creates a Controller that answers through api and receives clicks
// from router.
func New(api Responder, router *collector.Router) *Controller {
	return &Controller{
		api:     api,
		router:  router,
		clock:   clockwork.NewRealClock(),
		timeout: DefaultTimeout,
	}
}

// SetLogger sets the logger. If nil, logging is a no-op.
func (c *Controller) SetLogger(l Logger) { c.log = l }

// SetClock replaces the clock used for session expiry.
func (c *Controller) SetClock(clk clockwork.Clock) { c.clock = clk }

// SetTimeout sets the default session timeout, capped at MaxTimeout.
// Non-positive values are ignored.
func (c *Controller) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = min(d, MaxTimeout)
	}
}

// Wait blocks until every session started by this controller has expired.
func (c *Controller) Wait() { c.wg.Wait() }

// Present renders pages[0] in reply to source and, when there is more than
// one page, keeps a session alive that lets the invoking user navigate.
// attachments, if non-nil, is indexed like pages. ctx bounds the session:
// cancelling it expires the session early. Failures are logged, never
// returned.
func (c *Controller) Present(ctx context.Context, pages []Page, attachments [][]Attachment, source *discordgo.Interaction, opts Options) {
	if len(pages) == 0 {
		if _, err := c.deliver(source, Page{Content: noResultsText}, nil, nil, opts.Deferred); err != nil {
			c.logWarn("delivering empty page set failed", "interaction_id", source.ID, "error", err)
		}
		return
	}

	var rows []discordgo.MessageComponent
	if len(pages) > 1 {
		rows = controls(0, len(pages), false)
	}
	msg, err := c.deliver(source, pages[0], filesFor(attachments, 0), rows, opts.Deferred)
	if err != nil {
		c.logWarn("delivering first page failed", "interaction_id", source.ID, "pages", len(pages), "error", err)
		return
	}
	if len(pages) == 1 {
		return
	}

	if msg == nil || msg.ID == "" {
		if msg, err = c.api.InteractionResponse(source); err != nil {
			c.logWarn("fetching paginated message failed", "interaction_id", source.ID, "error", err)
			return
		}
	}
	// clicks that land before run starts wait in the collector's buffer
	col := c.router.Subscribe(msg.ID)

	timeout := c.timeout
	if opts.Timeout > 0 {
		timeout = min(opts.Timeout, MaxTimeout)
	}
	s := &session{
		ctrl:        c,
		pages:       pages,
		attachments: attachments,
		source:      source,
		owner:       collector.InteractionUserID(source),
		expiresAt:   c.clock.Now().Add(timeout),
		collector:   col,
	}
	// created here, not in run, so the expiry clock starts with the session
	timer := c.clock.NewTimer(timeout)
	c.logDebug("pagination session started", "message_id", msg.ID, "owner_id", s.owner, "pages", len(pages), "timeout", timeout)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		s.run(ctx, timer)
	}()
}

// deliver sends the initial render as a fresh reply or as an edit of a
// deferred one. The message is only known for the edit; a fresh reply
// returns nil.
func (c *Controller) deliver(source *discordgo.Interaction, p Page, files []*discordgo.File, rows []discordgo.MessageComponent, deferred bool) (*discordgo.Message, error) {
	if deferred {
		embeds := p.Embeds
		if embeds == nil {
			embeds = []*discordgo.MessageEmbed{}
		}
		edit := &discordgo.WebhookEdit{
			Content: &p.Content,
			Embeds:  &embeds,
			Files:   files,
		}
		if rows != nil {
			edit.Components = &rows
		}
		return c.api.InteractionResponseEdit(source, edit)
	}
	return nil, c.api.InteractionRespond(source, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    p.Content,
			Embeds:     p.Embeds,
			Files:      files,
			Components: rows,
		},
	})
}

func filesFor(attachments [][]Attachment, index int) []*discordgo.File {
	if index >= len(attachments) || len(attachments[index]) == 0 {
		return nil
	}
	files := make([]*discordgo.File, 0, len(attachments[index]))
	for _, a := range attachments[index] {
		files = append(files, &discordgo.File{
			Name:        a.Name,
			ContentType: a.ContentType,
			Reader:      bytes.NewReader(a.Data),
		})
	}
	return files
}

func (c *Controller) logDebug(msg string, keyvals ...interface{}) {
	if c.log != nil {
		c.log.Debug(msg, keyvals...)
	}
}

func (c *Controller) logInfo(msg string, keyvals ...interface{}) {
	if c.log != nil {
		c.log.Info(msg, keyvals...)
	}
}

func (c *Controller) logWarn(msg string, keyvals ...interface{}) {
	if c.log != nil {
		c.log.Warn(msg, keyvals...)
	}
}
