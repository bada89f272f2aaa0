package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/pagebot/internal/bot"
	"github.com/keshon/pagebot/internal/config"
	"github.com/keshon/pagebot/internal/logger"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// discordgoAdapter adapts discordgo.Session to the bot.DiscordAPI interface.
type discordgoAdapter struct {
	session *discordgo.Session
}

func (a *discordgoAdapter) InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	return a.session.InteractionRespond(i, resp)
}

func (a *discordgoAdapter) InteractionResponse(i *discordgo.Interaction) (*discordgo.Message, error) {
	return a.session.InteractionResponse(i)
}

func (a *discordgoAdapter) InteractionResponseEdit(i *discordgo.Interaction, edit *discordgo.WebhookEdit) (*discordgo.Message, error) {
	return a.session.InteractionResponseEdit(i, edit)
}

func (a *discordgoAdapter) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend) (*discordgo.Message, error) {
	return a.session.ChannelMessageSendComplex(channelID, data)
}

func (a *discordgoAdapter) ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand) ([]*discordgo.ApplicationCommand, error) {
	return a.session.ApplicationCommandBulkOverwrite(appID, guildID, commands)
}

func main() {
	envPath := flag.String("env", "", "Path to .env file (empty = load from current working directory)")
	dbPath := flag.String("db", "", "Path to database file (overrides DB_PATH)")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	logColor := flag.Bool("log-color", false, "Color level tags in text logs")
	logFile := flag.String("log-file", "", "Optional path to log file (stderr if empty); rotated by size with lumberjack")
	flag.Parse()

	// Build logger output (stderr or file with size-based rotation)
	var logOutput io.Writer = os.Stderr
	if *logFile != "" {
		logOutput = &lumberjack.Logger{
			Filename:   *logFile,
			MaxSize:    100, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
	}

	l := logger.New(logger.Config{
		Level:  logger.ParseLevel(*logLevel),
		Format: *logFormat,
		Output: logOutput,
		Color:  *logColor && *logFile == "",
	})

	cfg, err := config.Load(*envPath)
	if err != nil {
		log.Fatal("Error loading config: ", err)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	l.Info("starting", "db_path", cfg.DBPath, "guild_id", cfg.GuildID, "log_level", *logLevel, "log_format", *logFormat)

	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	if err != nil {
		log.Fatal("Error opening database: ", err)
	}
	if err := db.AutoMigrate(bot.Models()...); err != nil {
		log.Fatal("Error migrating database: ", err)
	}

	dg, err := discordgo.New("Bot " + cfg.DiscordKey)
	if err != nil {
		log.Fatal("Error creating Discord session: ", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	b := bot.NewBot(db, &discordgoAdapter{session: dg})
	b.Configure(cfg)
	b.SetLogger(l.With("component", "bot"))

	dg.AddHandler(b.Ready)
	dg.AddHandler(b.InteractionCreate)
	dg.AddHandler(b.MessageCreate)

	if err := dg.Open(); err != nil {
		log.Fatal("Error opening Discord session: ", err)
	}

	l.Info("bot running",
		"page_size", cfg.PageSize,
		"pagination_timeout", config.FormatDuration(cfg.PaginationTimeout),
		"points_cooldown", config.FormatDuration(cfg.PointsCooldown))
	fmt.Println("Bot is now running. Press CTRL+C to exit.")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	l.Info("shutting down")
	b.Stop()
	b.Wait()
	if err := dg.Close(); err != nil {
		l.Warn("closing Discord session failed", "error", err)
	}
}
