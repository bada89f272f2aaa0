package paginator

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jonboulle/clockwork"

	"github.com/keshon/pagebot/internal/collector"
)

// session is one live paginated message. Only its run goroutine touches
// index, so clicks are handled strictly one at a time.
type session struct {
	ctrl        *Controller
	pages       []Page
	attachments [][]Attachment
	source      *discordgo.Interaction
	owner       string
	expiresAt   time.Time
	collector   *collector.Collector
	index       int
}

func (s *session) run(ctx context.Context, timer clockwork.Timer) {
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.expire("cancelled")
			return
		case <-timer.Chan():
			s.expire("timeout")
			return
		case <-s.collector.Done():
			// replaced by a newer session on the same message
			return
		case click := <-s.collector.C():
			if !s.ctrl.clock.Now().Before(s.expiresAt) {
				s.expire("timeout", click)
				return
			}
			if err := s.handle(click); err != nil {
				s.ctrl.logWarn("navigation edit failed", "message_id", s.collector.MessageID(), "custom_id", click.CustomID, "error", err)
				s.expire("edit failed")
				return
			}
		}
	}
}

// handle applies one click. A non-nil error means the message could not be
// updated and the session must end.
func (s *session) handle(click collector.Click) error {
	if click.UserID != s.owner {
		err := s.ctrl.api.InteractionRespond(click.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: notOwnerText,
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		})
		if err != nil {
			s.ctrl.logDebug("unauthorized notice failed", "user_id", click.UserID, "error", err)
		}
		return nil
	}

	action, ok := ParseAction(click.CustomID)
	if !ok {
		return s.ctrl.api.InteractionRespond(click.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredMessageUpdate,
		})
	}

	next := Navigate(action, s.index, len(s.pages))
	page := s.pages[next]
	err := s.ctrl.api.InteractionRespond(click.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:     page.Content,
			Embeds:      page.Embeds,
			Components:  controls(next, len(s.pages), false),
			Files:       filesFor(s.attachments, next),
			Attachments: &[]*discordgo.MessageAttachment{},
		},
	})
	if err != nil {
		return err
	}
	s.index = next
	return nil
}

// expire stops click collection, then makes one best-effort edit that
// disables every button. Clicks taken but never handled are acknowledged
// without changing the message.
func (s *session) expire(reason string, pending ...collector.Click) {
	s.collector.Stop()
	s.ctrl.logInfo("pagination session expired", "message_id", s.collector.MessageID(), "reason", reason, "index", s.index)

	rows := controls(s.index, len(s.pages), true)
	if _, err := s.ctrl.api.InteractionResponseEdit(s.source, &discordgo.WebhookEdit{Components: &rows}); err != nil {
		s.ctrl.logDebug("disabling buttons failed", "message_id", s.collector.MessageID(), "error", err)
	}

	for _, click := range pending {
		s.acknowledge(click)
	}
	for {
		select {
		case click := <-s.collector.C():
			s.acknowledge(click)
		default:
			return
		}
	}
}

func (s *session) acknowledge(click collector.Click) {
	err := s.ctrl.api.InteractionRespond(click.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
	if err != nil {
		s.ctrl.logDebug("acknowledging late click failed", "message_id", s.collector.MessageID(), "user_id", click.UserID, "error", err)
	}
}
