package bot

import (
	"fmt"
	"math"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/pagebot/internal/collector"
	"github.com/keshon/pagebot/internal/config"
	"github.com/keshon/pagebot/internal/paginator"
)

// Command is a slash command definition with its handler.
type Command struct {
	Definition *discordgo.ApplicationCommand
	Handler    func(b *Bot, i *discordgo.Interaction)
	// Cooldown rate limits the command per user.
	Cooldown bool
}

var (
	dmAllowed       = false
	adminPermission = int64(discordgo.PermissionAdministrator)
	minAmount       = float64(-1000000)
)

// registry lists every command the bot serves. It is built at start from
// compiled-in definitions.
func registry() []Command {
	return []Command{
		{
			Definition: &discordgo.ApplicationCommand{
				Name:         "leaderboard",
				Description:  "Show the server points leaderboard",
				DMPermission: &dmAllowed,
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "export",
					Description: "Attach each page as a CSV file",
				}},
			},
			Handler:  (*Bot).handleLeaderboard,
			Cooldown: true,
		},
		{
			Definition: &discordgo.ApplicationCommand{
				Name:         "rank",
				Description:  "Show a member's leaderboard rank",
				DMPermission: &dmAllowed,
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "Member to look up (defaults to you)",
				}},
			},
			Handler:  (*Bot).handleRank,
			Cooldown: true,
		},
		{
			Definition: &discordgo.ApplicationCommand{
				Name:         "points",
				Description:  "Manage leaderboard points",
				DMPermission: &dmAllowed,
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "give",
						Description: "Award (or deduct, with a negative amount) points",
						Options: []*discordgo.ApplicationCommandOption{
							{
								Type:        discordgo.ApplicationCommandOptionUser,
								Name:        "user",
								Description: "Member receiving the points",
								Required:    true,
							},
							{
								Type:        discordgo.ApplicationCommandOptionInteger,
								Name:        "amount",
								Description: "Points to add",
								Required:    true,
								MinValue:    &minAmount,
								MaxValue:    1000000,
							},
						},
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "reset",
						Description: "Wipe the server leaderboard",
					},
				},
			},
			Handler: (*Bot).handlePoints,
		},
		{
			Definition: &discordgo.ApplicationCommand{
				Name:                     "manager",
				Description:              "Choose who may award points",
				DMPermission:             &dmAllowed,
				DefaultMemberPermissions: &adminPermission,
				Options: []*discordgo.ApplicationCommandOption{
					managerSubcommand("grant", "Allow a user or role to award points"),
					managerSubcommand("revoke", "Stop a user or role from awarding points"),
				},
			},
			Handler: (*Bot).handleManager,
		},
	}
}

func managerSubcommand(name, description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommand,
		Name:        name,
		Description: description,
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member"},
			{Type: discordgo.ApplicationCommandOptionRole, Name: "role", Description: "Role"},
		},
	}
}

type optionMap map[string]*discordgo.ApplicationCommandInteractionDataOption

func options(opts []*discordgo.ApplicationCommandInteractionDataOption) optionMap {
	m := make(optionMap, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

func (b *Bot) runCommand(i *discordgo.Interaction) {
	data := i.ApplicationCommandData()
	cmd, ok := b.commands[data.Name]
	if !ok {
		b.reply(i, "Unknown command.", true)
		return
	}
	if i.GuildID == "" {
		b.reply(i, "This command only works in servers.", true)
		return
	}
	userID := collector.InteractionUserID(i)
	if cmd.Cooldown {
		if wait := b.commandCooldown.Check(data.Name+":"+userID, b.now()); wait > 0 {
			b.reply(i, fmt.Sprintf("Slow down! Try again in %d seconds.", int(math.Ceil(wait.Seconds()))), true)
			return
		}
	}
	b.logDebug("running command", "command", data.Name, "guild_id", i.GuildID, "user_id", userID)
	cmd.Handler(b, i)
}

func (b *Bot) handleLeaderboard(i *discordgo.Interaction) {
	export := false
	if o, ok := options(i.ApplicationCommandData().Options)["export"]; ok {
		export = o.BoolValue()
	}

	err := b.api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		b.logWarn("deferring leaderboard reply failed", "interaction_id", i.ID, "error", err)
		return
	}

	scores, err := b.guildScores(i.GuildID)
	if err != nil {
		b.logError("loading leaderboard failed", "guild_id", i.GuildID, "error", err)
		b.editReply(i, "Could not load the leaderboard. Please try again.")
		return
	}

	standings := RankScores(scores)
	note := ""
	if len(standings) > b.pageSize {
		note = "buttons expire after " + config.FormatDuration(b.paginationTimeout)
	}
	pages := LeaderboardPages("Leaderboard", standings, b.pageSize, note)

	var attachments [][]paginator.Attachment
	if export {
		if attachments, err = LeaderboardCSV(standings, b.pageSize); err != nil {
			b.logWarn("building leaderboard export failed", "guild_id", i.GuildID, "error", err)
			attachments = nil
		}
	}
	b.pager.Present(b.ctx, pages, attachments, i, paginator.Options{Deferred: true})
}

func (b *Bot) handleRank(i *discordgo.Interaction) {
	userID := collector.InteractionUserID(i)
	if o, ok := options(i.ApplicationCommandData().Options)["user"]; ok {
		userID = o.UserValue(nil).ID
	}

	scores, err := b.guildScores(i.GuildID)
	if err != nil {
		b.logError("loading scores for rank failed", "guild_id", i.GuildID, "error", err)
		b.reply(i, "Could not load the leaderboard. Please try again.", true)
		return
	}
	standings := RankScores(scores)
	s, ok := FindStanding(standings, userID)
	if !ok {
		b.reply(i, fmt.Sprintf("<@%s> has no points yet.", userID), false)
		return
	}
	msg := fmt.Sprintf("<@%s> is ranked **#%d** of %d with %s.", userID, s.Rank, len(standings), pointsLabel(s.Score.Points))
	if s.Tied {
		msg += " (tied)"
	}
	b.reply(i, msg, false)
}

func (b *Bot) handlePoints(i *discordgo.Interaction) {
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		b.reply(i, "Unknown command.", true)
		return
	}
	sub := data.Options[0]
	switch sub.Name {
	case "give":
		b.givePoints(i, options(sub.Options), data.Resolved)
	case "reset":
		if !isAdmin(i.Member) {
			b.reply(i, "Only administrators can reset the leaderboard.", true)
			return
		}
		n, err := b.resetScores(i.GuildID)
		if err != nil {
			b.logError("resetting leaderboard failed", "guild_id", i.GuildID, "error", err)
			b.reply(i, "Could not reset the leaderboard. Please try again.", true)
			return
		}
		b.logInfo("leaderboard reset", "guild_id", i.GuildID, "removed", n, "by", collector.InteractionUserID(i))
		b.reply(i, fmt.Sprintf("Leaderboard reset. Removed %d entries.", n), false)
	default:
		b.reply(i, "Unknown command.", true)
	}
}

func (b *Bot) givePoints(i *discordgo.Interaction, opts optionMap, resolved *discordgo.ApplicationCommandInteractionDataResolved) {
	if !b.canManage(i) {
		b.reply(i, "You need to be an administrator or a leaderboard manager to award points.", true)
		return
	}
	userOpt, amountOpt := opts["user"], opts["amount"]
	if userOpt == nil || amountOpt == nil {
		b.reply(i, "Please provide a user and an amount.", true)
		return
	}
	amount := amountOpt.IntValue()
	if amount == 0 {
		b.reply(i, "Amount must not be zero.", true)
		return
	}
	target := userOpt.UserValue(nil)
	username := ""
	if resolved != nil {
		if u, ok := resolved.Users[target.ID]; ok {
			username = u.Username
		}
	}

	total, err := b.addPoints(i.GuildID, target.ID, username, amount, b.now())
	if err != nil {
		b.logError("giving points failed", "guild_id", i.GuildID, "user_id", target.ID, "error", err)
		b.reply(i, "Could not update points. Please try again.", true)
		return
	}
	verb, prep := "Gave", "to"
	if amount < 0 {
		verb, prep, amount = "Took", "from", -amount
	}
	b.reply(i, fmt.Sprintf("%s %s %s <@%s>. They now have %s.", verb, pointsLabel(amount), prep, target.ID, pointsLabel(total)), false)
}

func (b *Bot) handleManager(i *discordgo.Interaction) {
	if !isAdmin(i.Member) {
		b.reply(i, "Only administrators can manage leaderboard managers.", true)
		return
	}
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		b.reply(i, "Unknown command.", true)
		return
	}
	sub := data.Options[0]
	opts := options(sub.Options)
	userOpt, roleOpt := opts["user"], opts["role"]
	if (userOpt == nil) == (roleOpt == nil) {
		b.reply(i, "Pick exactly one user or one role.", true)
		return
	}

	var subjectID, mention string
	isRole := roleOpt != nil
	if isRole {
		subjectID = roleOpt.RoleValue(nil, "").ID
		mention = "<@&" + subjectID + ">"
	} else {
		subjectID = userOpt.UserValue(nil).ID
		mention = "<@" + subjectID + ">"
	}

	switch sub.Name {
	case "grant":
		if err := b.grantManager(i.GuildID, subjectID, isRole); err != nil {
			b.logError("granting manager failed", "guild_id", i.GuildID, "subject_id", subjectID, "error", err)
			b.reply(i, "Could not save the grant. Please try again.", true)
			return
		}
		b.reply(i, mention+" can now award points.", false)
	case "revoke":
		removed, err := b.revokeManager(i.GuildID, subjectID)
		if err != nil {
			b.logError("revoking manager failed", "guild_id", i.GuildID, "subject_id", subjectID, "error", err)
			b.reply(i, "Could not remove the grant. Please try again.", true)
			return
		}
		if !removed {
			b.reply(i, mention+" was not a manager.", true)
			return
		}
		b.reply(i, mention+" can no longer award points.", false)
	default:
		b.reply(i, "Unknown command.", true)
	}
}

func isAdmin(m *discordgo.Member) bool {
	return m != nil && m.Permissions&discordgo.PermissionAdministrator != 0
}

func (b *Bot) canManage(i *discordgo.Interaction) bool {
	if isAdmin(i.Member) {
		return true
	}
	if i.Member == nil || i.Member.User == nil {
		return false
	}
	return b.hasManagerGrant(i.GuildID, i.Member.User.ID, i.Member.Roles)
}
