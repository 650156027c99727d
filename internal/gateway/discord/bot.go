// Package discord serves roulette draws as Discord slash commands.
//
// Command handling is split from the gateway session: handle turns a command
// name and its options into reply text and never touches the network, so it
// is tested without Discord.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/roach88/roulette/internal/model"
)

// Service is the part of session.Coordinator the bot needs.
type Service interface {
	Draw(ctx context.Context, poolID, userID string) (model.DrawResult, error)
	DrawMany(ctx context.Context, poolID string, userIDs []string) ([]model.DrawRecord, error)
	History(ctx context.Context, poolID, userID string, limit int) ([]model.DrawRecord, error)
	Stats(ctx context.Context, poolID, userID string, since, until time.Time) (model.Stats, error)
}

// DefaultCommandTimeout bounds one interaction. Discord drops replies sent
// later than three seconds after the interaction.
const DefaultCommandTimeout = 2500 * time.Millisecond

// Bot is a Discord gateway connection serving roulette commands.
type Bot struct {
	session *discordgo.Session
	svc     Service
	appID   string
	guildID string
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Bot.
type Option func(*Bot)

// WithGuild registers commands in one guild instead of globally. Guild
// commands update instantly, which suits development servers.
func WithGuild(guildID string) Option {
	return func(b *Bot) {
		b.guildID = guildID
	}
}

// WithCommandTimeout overrides DefaultCommandTimeout.
func WithCommandTimeout(d time.Duration) Option {
	return func(b *Bot) {
		b.timeout = d
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Bot) {
		b.logger = l
	}
}

// New creates a bot for the given token and application id. It does not
// connect; call Run.
func New(token, appID string, svc Service, opts ...Option) (*Bot, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds

	b := &Bot{
		session: s,
		svc:     svc,
		appID:   appID,
		timeout: DefaultCommandTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	s.AddHandler(b.onInteraction)
	return b, nil
}

// Run connects, registers the slash commands and serves interactions until
// ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	defer b.session.Close()

	registered, err := b.session.ApplicationCommandBulkOverwrite(b.appID, b.guildID, Commands())
	if err != nil {
		return fmt.Errorf("register discord commands: %w", err)
	}
	b.logger.Info("discord gateway ready", "commands", len(registered), "guild", b.guildID)

	<-ctx.Done()
	return nil
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()

	userID := ""
	switch {
	case i.Member != nil && i.Member.User != nil:
		userID = i.Member.User.ID
	case i.User != nil:
		userID = i.User.ID
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	reply := b.handle(ctx, data.Name, data.Options, userID)

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:         reply,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		},
	})
	if err != nil {
		b.logger.Warn("discord reply failed", "command", data.Name, "user", userID, "error", err)
	}
}
