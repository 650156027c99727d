package discord

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/roach88/roulette/internal/model"
)

const maxHistoryOption = 25

// partyOptions are the optional members of /party besides the invoker.
var partyOptions = []string{"member1", "member2", "member3"}

// Commands returns the slash command definitions.
func Commands() []*discordgo.ApplicationCommand {
	one := 1.0
	poolOption := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "pool",
		Description: "Pool to draw from",
		Required:    true,
	}
	return []*discordgo.ApplicationCommand{
		{
			Name:        "draw",
			Description: "Draw one entry from a pool",
			Options:     []*discordgo.ApplicationCommandOption{poolOption},
		},
		partyCommand(poolOption),
		{
			Name:        "history",
			Description: "Show your recent draws from a pool",
			Options: []*discordgo.ApplicationCommandOption{
				poolOption,
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "limit",
					Description: "How many draws to show",
					MinValue:    &one,
					MaxValue:    maxHistoryOption,
				},
			},
		},
		{
			Name:        "stats",
			Description: "Count your draws per entry",
			Options: []*discordgo.ApplicationCommandOption{
				poolOption,
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "since",
					Description: "Start date (YYYY-MM-DD or RFC 3339)",
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "until",
					Description: "End date, exclusive (YYYY-MM-DD or RFC 3339)",
				},
			},
		},
	}
}

func partyCommand(poolOption *discordgo.ApplicationCommandOption) *discordgo.ApplicationCommand {
	opts := []*discordgo.ApplicationCommandOption{poolOption}
	for _, name := range partyOptions {
		opts = append(opts, &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        name,
			Description: "Another party member",
		})
	}
	return &discordgo.ApplicationCommand{
		Name:        "party",
		Description: "Draw one entry for you and each party member",
		Options:     opts,
	}
}

// handle runs one command and returns the reply text.
func (b *Bot) handle(ctx context.Context, name string, options []*discordgo.ApplicationCommandInteractionDataOption, userID string) string {
	opts := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, o := range options {
		opts[o.Name] = o
	}
	str := func(key string) string {
		if o, ok := opts[key]; ok {
			return o.StringValue()
		}
		return ""
	}

	if userID == "" {
		return "Could not tell who you are; try again from a server or DM."
	}
	poolID := str("pool")

	switch name {
	case "draw":
		res, err := b.svc.Draw(ctx, poolID, userID)
		return renderDraw(poolID, userID, res, err)

	case "party":
		members := []string{userID}
		for _, name := range partyOptions {
			if o, ok := opts[name]; ok {
				if u := o.UserValue(nil); u != nil && u.ID != "" && !slices.Contains(members, u.ID) {
					members = append(members, u.ID)
				}
			}
		}
		records, err := b.svc.DrawMany(ctx, poolID, members)
		var e *model.Error
		if errors.As(err, &e) && e.Kind == model.KindPoolExhausted && e.UserID != userID {
			return fmt.Sprintf("No eligible entries remain in `%s` for <@%s>, so nobody drew.", poolID, e.UserID)
		}
		if err != nil {
			return renderError(poolID, err)
		}
		return renderParty(poolID, records)

	case "history":
		limit := 5
		if o, ok := opts["limit"]; ok {
			limit = int(o.IntValue())
		}
		records, err := b.svc.History(ctx, poolID, userID, limit)
		if err != nil {
			return renderError(poolID, err)
		}
		return renderHistory(poolID, records)

	case "stats":
		since, err := model.ParseInstant(str("since"))
		if err != nil {
			return renderError(poolID, err)
		}
		until, err := model.ParseInstant(str("until"))
		if err != nil {
			return renderError(poolID, err)
		}
		stats, err := b.svc.Stats(ctx, poolID, userID, since, until)
		if err != nil {
			return renderError(poolID, err)
		}
		return renderStats(stats)

	default:
		b.logger.Warn("unknown discord command", "command", name)
		return fmt.Sprintf("Unknown command `%s`.", name)
	}
}

func renderDraw(poolID, userID string, res model.DrawResult, err error) string {
	if res.Success && res.Record != nil {
		return fmt.Sprintf("<@%s> drew **%s** from `%s` (draw #%d)", userID, res.Record.EntryID, poolID, res.Record.Seq)
	}
	return renderError(poolID, err)
}

func renderError(poolID string, err error) string {
	switch model.KindOf(err) {
	case model.KindPoolExhausted:
		return fmt.Sprintf("No eligible entries remain in `%s` for you right now.", poolID)
	case model.KindPoolNotFound:
		return fmt.Sprintf("Unknown pool `%s`.", poolID)
	case model.KindContention:
		return fmt.Sprintf("Another draw of yours on `%s` is still running; try again.", poolID)
	case model.KindTimeout:
		return "The draw timed out and may have been recorded. Check `/history` before trying again."
	case model.KindPersistence:
		return "The draw could not be recorded, so nothing was drawn. Try again."
	case model.KindValidation:
		var e *model.Error
		if errors.As(err, &e) && e.Message != "" {
			return "Invalid request: " + e.Message
		}
	}
	return "Something went wrong; try again later."
}

func renderParty(poolID string, records []model.DrawRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Party draw from `%s`:", poolID)
	for _, r := range records {
		fmt.Fprintf(&b, "\n<@%s> **%s**", r.UserID, r.EntryID)
	}
	return b.String()
}

func renderHistory(poolID string, records []model.DrawRecord) string {
	if len(records) == 0 {
		return fmt.Sprintf("No draws on `%s` yet.", poolID)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Your last %d draw(s) on `%s`:", len(records), poolID)
	for _, r := range records {
		fmt.Fprintf(&b, "\n#%d **%s** (%s)", r.Seq, r.EntryID, r.Timestamp.UTC().Format("2006-01-02 15:04 UTC"))
	}
	return b.String()
}

func renderStats(s model.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "`%s`: %d draw(s)", s.PoolID, s.Total)
	switch {
	case !s.Since.IsZero() && !s.Until.IsZero():
		fmt.Fprintf(&b, " from %s until %s", s.Since.Format("2006-01-02"), s.Until.Format("2006-01-02"))
	case !s.Since.IsZero():
		fmt.Fprintf(&b, " since %s", s.Since.Format("2006-01-02"))
	case !s.Until.IsZero():
		fmt.Fprintf(&b, " until %s", s.Until.Format("2006-01-02"))
	}
	for _, e := range s.Entries {
		fmt.Fprintf(&b, "\n**%s** × %d", e.EntryID, e.Count)
	}
	return b.String()
}
