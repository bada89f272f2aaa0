package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"gorm.io/gorm"

	"github.com/keshon/pagebot/internal/collector"
	"github.com/keshon/pagebot/internal/config"
	"github.com/keshon/pagebot/internal/paginator"
)

const cooldownPruneInterval = 10 * time.Minute

// Logger provides leveled logging. If nil, log calls are no-ops.
type Logger interface {
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
}

// DiscordAPI abstracts the Discord REST operations the bot uses, for testing.
type DiscordAPI interface {
	paginator.Responder
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend) (*discordgo.Message, error)
	ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand) ([]*discordgo.ApplicationCommand, error)
}

// Bot represents the leaderboard bot instance.
type Bot struct {
	ctx               context.Context
	cancel            context.CancelFunc
	cancelOnce        sync.Once
	db                *gorm.DB
	api               DiscordAPI
	router            *collector.Router
	pager             *paginator.Controller
	commands          map[string]Command
	commandCooldown   *Cooldown
	pointsCooldown    *Cooldown
	guildID           string
	pageSize          int
	paginationTimeout time.Duration
	now               func() time.Time
	log               Logger
}

// NewBot creates a new Bot instance with the provided database and Discord API.
func NewBot(db *gorm.DB, api DiscordAPI) *Bot {
	ctx, cancel := context.WithCancel(context.Background())
	router := collector.NewRouter()
	b := &Bot{
		ctx:               ctx,
		cancel:            cancel,
		db:                db,
		api:               api,
		router:            router,
		pager:             paginator.New(api, router),
		commands:          make(map[string]Command),
		commandCooldown:   NewCooldown(5 * time.Second),
		pointsCooldown:    NewCooldown(time.Minute),
		pageSize:          10,
		paginationTimeout: paginator.DefaultTimeout,
		now:               time.Now,
	}
	for _, c := range registry() {
		b.commands[c.Definition.Name] = c
	}
	go b.pruneLoop(ctx, cooldownPruneInterval, b.commandCooldown, b.pointsCooldown)
	return b
}

// Configure applies runtime settings from cfg.
func (b *Bot) Configure(cfg *config.Config) {
	b.guildID = cfg.GuildID
	if cfg.PageSize > 0 {
		b.pageSize = cfg.PageSize
	}
	if cfg.PaginationTimeout > 0 {
		b.paginationTimeout = min(cfg.PaginationTimeout, paginator.MaxTimeout)
		b.pager.SetTimeout(cfg.PaginationTimeout)
	}
	if cfg.CommandCooldown > 0 {
		b.commandCooldown.SetInterval(cfg.CommandCooldown)
	}
	if cfg.PointsCooldown > 0 {
		b.pointsCooldown.SetInterval(cfg.PointsCooldown)
	}
}

// SetLogger sets the logger. If nil, logging is a no-op.
func (b *Bot) SetLogger(l Logger) {
	b.log = l
	b.pager.SetLogger(l)
}

// Stop expires every live pagination session and stops background work.
// It is safe to call multiple times. Use for graceful shutdown.
func (b *Bot) Stop() {
	b.cancelOnce.Do(b.cancel)
}

// Wait blocks until every pagination session has finished its expiry edit.
func (b *Bot) Wait() {
	b.pager.Wait()
}

func (b *Bot) logDebug(msg string, keyvals ...interface{}) {
	if b.log != nil {
		b.log.Debug(msg, keyvals...)
	}
}
func (b *Bot) logInfo(msg string, keyvals ...interface{}) {
	if b.log != nil {
		b.log.Info(msg, keyvals...)
	}
}
func (b *Bot) logWarn(msg string, keyvals ...interface{}) {
	if b.log != nil {
		b.log.Warn(msg, keyvals...)
	}
}
func (b *Bot) logError(msg string, keyvals ...interface{}) {
	if b.log != nil {
		b.log.Error(msg, keyvals...)
	}
}

// noMentions stops user-supplied text from pinging @everyone, roles or users.
func noMentions() *discordgo.MessageAllowedMentions {
	return &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}}
}

// sendChannelMessage sends a message to a channel and logs a warning on failure.
func (b *Bot) sendChannelMessage(channelID, content string) {
	msg := &discordgo.MessageSend{
		Content:         content,
		AllowedMentions: noMentions(),
	}
	if _, err := b.api.ChannelMessageSendComplex(channelID, msg); err != nil {
		b.logWarn("failed to send message", "channel_id", channelID, "error", err)
	}
}

// reply answers an interaction with a plain message.
func (b *Bot) reply(i *discordgo.Interaction, content string, ephemeral bool) {
	data := &discordgo.InteractionResponseData{
		Content:         content,
		AllowedMentions: noMentions(),
	}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := b.api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		b.logWarn("failed to reply to interaction", "interaction_id", i.ID, "error", err)
	}
}

// editReply replaces the content of a deferred response.
func (b *Bot) editReply(i *discordgo.Interaction, content string) {
	if _, err := b.api.InteractionResponseEdit(i, &discordgo.WebhookEdit{
		Content:         &content,
		AllowedMentions: noMentions(),
	}); err != nil {
		b.logWarn("failed to edit interaction reply", "interaction_id", i.ID, "error", err)
	}
}

// Ready handles the Discord ready event by registering the slash commands.
func (b *Bot) Ready(_ *discordgo.Session, event *discordgo.Ready) {
	b.registerCommands(event.User.ID)
}

func (b *Bot) registerCommands(appID string) {
	defs := make([]*discordgo.ApplicationCommand, 0, len(b.commands))
	for _, c := range registry() {
		defs = append(defs, c.Definition)
	}
	created, err := b.api.ApplicationCommandBulkOverwrite(appID, b.guildID, defs)
	if err != nil {
		b.logError("registering commands failed", "guild_id", b.guildID, "error", err)
		return
	}
	b.logInfo("bot ready: registered commands", "count", len(created), "guild_id", b.guildID)
}

// InteractionCreate routes slash commands to the registry and button clicks
// to the paginator sessions.
func (b *Bot) InteractionCreate(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	b.handleInteraction(i.Interaction)
}

func (b *Bot) handleInteraction(i *discordgo.Interaction) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.runCommand(i)
	case discordgo.InteractionMessageComponent:
		if !b.router.Dispatch(i) {
			b.logDebug("click on message without live session", "custom_id", i.MessageComponentData().CustomID, "user_id", collector.InteractionUserID(i))
		}
	}
}

// isBotMentionPrefix returns true if content (after trimming leading/trailing space)
// starts with the bot's mention. Discord format is <@USER_ID> or <@!USER_ID>.
func isBotMentionPrefix(content, botID string) bool {
	trimmed := strings.TrimSpace(content)
	return strings.HasPrefix(trimmed, "<@"+botID+">") || strings.HasPrefix(trimmed, "<@!"+botID+">")
}

// stripBotMentionPrefix removes the bot mention prefix from content and returns the rest.
func stripBotMentionPrefix(content, botID string) string {
	trimmed := strings.TrimSpace(content)
	for _, prefix := range []string{"<@!" + botID + ">", "<@" + botID + ">"} {
		if strings.HasPrefix(trimmed, prefix) {
			return strings.TrimSpace(trimmed[len(prefix):])
		}
	}
	return trimmed
}

// MessageCreate awards activity points and answers "@bot help".
func (b *Bot) MessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	b.handleMessage(s.State.User.ID, m.Message)
}

func (b *Bot) handleMessage(botID string, m *discordgo.Message) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}

	if isBotMentionPrefix(m.Content, botID) {
		rest := strings.ToLower(stripBotMentionPrefix(m.Content, botID))
		if rest == "" || rest == "help" {
			b.sendChannelMessage(m.ChannelID, helpText(b.pointsCooldown.Interval()))
		}
		return
	}

	key := m.GuildID + ":" + m.Author.ID
	if wait := b.pointsCooldown.Check(key, b.now()); wait > 0 {
		return
	}
	total, err := b.addPoints(m.GuildID, m.Author.ID, m.Author.Username, 1, b.now())
	if err != nil {
		b.logError("awarding activity point failed", "guild_id", m.GuildID, "user_id", m.Author.ID, "error", err)
		return
	}
	b.logDebug("awarded activity point", "guild_id", m.GuildID, "user_id", m.Author.ID, "total", total)
}

func helpText(pointsCooldown time.Duration) string {
	return fmt.Sprintf(`**LEADERBOARD**
You earn 1 point for chatting, at most once every %s.

/leaderboard [export] - show the server leaderboard (optionally with CSV files)
/rank [user] - show your rank or someone else's

**MANAGEMENT**
/points give <user> <amount> - award or deduct points (admins and managers)
/points reset - wipe the server leaderboard (admins)
/manager grant|revoke [user] [role] - allow a user or role to award points (admins)`,
		config.FormatDuration(pointsCooldown))
}
