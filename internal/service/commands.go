package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"nepse_watch/internal/domain"
	"nepse_watch/internal/infra"

	"github.com/shopspring/decimal"
)

// Commands turns chat messages into GoalService calls and renders replies.
type Commands struct {
	svc     *GoalService
	prefix  string
	metrics *infra.Metrics
	logger  *slog.Logger
}

// NewCommands creates the command surface for messages starting with prefix
func NewCommands(svc *GoalService, prefix string, metrics *infra.Metrics) *Commands {
	if prefix == "" {
		prefix = "!"
	}
	if metrics == nil {
		metrics = &infra.Metrics{}
	}
	return &Commands{
		svc:     svc,
		prefix:  prefix,
		metrics: metrics,
		logger:  slog.Default().With("module", "commands"),
	}
}

// Dispatch handles one message from actorID. It returns the reply and true
// when content is a known command, or false when the message should be
// ignored.
func (c *Commands) Dispatch(ctx context.Context, actorID, content string) (string, bool) {
	if !strings.HasPrefix(content, c.prefix) {
		return "", false
	}
	fields := strings.Fields(strings.TrimPrefix(content, c.prefix))
	if len(fields) == 0 {
		return "", false
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	var reply string
	switch name {
	case "addgoal":
		reply = c.addGoal(ctx, actorID, args)
	case "removegoal":
		reply = c.removeGoal(ctx, actorID, args)
	case "mygoals":
		reply = c.myGoals(ctx, actorID)
	case "price":
		reply = c.price(ctx, args)
	case "help":
		reply = c.help()
	default:
		return "", false
	}

	c.metrics.RecordCommand()
	c.logger.Debug("Command handled", slog.String("command", name), slog.String("user_id", actorID))
	return reply, true
}

func (c *Commands) addGoal(ctx context.Context, actorID string, args []string) string {
	if len(args) != 2 {
		return c.usage("addgoal <symbol> <price>")
	}
	price, err := decimal.NewFromString(args[1])
	if err != nil || price.IsNegative() {
		return c.usage("addgoal <symbol> <price>")
	}

	if err := c.svc.AddGoal(ctx, actorID, args[0], price); err != nil {
		if errors.Is(err, domain.ErrInvalidSymbol) || errors.Is(err, domain.ErrInvalidPrice) {
			return c.usage("addgoal <symbol> <price>")
		}
		c.logger.Error("AddGoal failed", slog.String("user_id", actorID), slog.Any("error", err))
		return "⚠️ Could not save your goal."
	}
	return fmt.Sprintf("✅ Goal added: %s ≥ %s", domain.NormalizeSymbol(args[0]), price.String())
}

func (c *Commands) removeGoal(ctx context.Context, actorID string, args []string) string {
	if len(args) != 1 {
		return c.usage("removegoal <symbol>")
	}

	err := c.svc.RemoveGoal(ctx, actorID, args[0])
	switch {
	case err == nil:
		return fmt.Sprintf("❌ Goal removed: %s", domain.NormalizeSymbol(args[0]))
	case errors.Is(err, domain.ErrGoalNotFound):
		return "⚠️ Goal not found."
	default:
		c.logger.Error("RemoveGoal failed", slog.String("user_id", actorID), slog.Any("error", err))
		return "⚠️ Could not save your goal."
	}
}

func (c *Commands) myGoals(ctx context.Context, actorID string) string {
	goals, err := c.svc.ListGoals(ctx, actorID)
	if err != nil {
		c.logger.Error("ListGoals failed", slog.String("user_id", actorID), slog.Any("error", err))
		return "⚠️ Could not load your goals."
	}
	if len(goals) == 0 {
		return "📭 You have no goals set."
	}

	var sb strings.Builder
	sb.WriteString("📋 Your Goals:")
	for _, sym := range domain.SortedSymbols(goals) {
		fmt.Fprintf(&sb, "\n• %s: %s", sym, goals[sym].String())
	}
	return sb.String()
}

func (c *Commands) price(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return c.usage("price <symbol>")
	}

	quote, err := c.svc.Price(ctx, args[0])
	if err != nil {
		return fmt.Sprintf("⚠️ Could not fetch NEPSE data.\nError: `%v`", err)
	}
	if quote == nil {
		return fmt.Sprintf("❓ Symbol **%s** not found.", domain.NormalizeSymbol(args[0]))
	}

	ltp := "N/A"
	if quote.LastTradedPrice != nil {
		ltp = quote.LastTradedPrice.String()
	}
	return fmt.Sprintf("💹 **%s** — Last Traded Price: **%s**", quote.Symbol, ltp)
}

func (c *Commands) help() string {
	p := c.prefix
	return strings.Join([]string{
		"📖 Commands:",
		"• `" + p + "addgoal <symbol> <price>`: notify me when the price reaches the goal",
		"• `" + p + "removegoal <symbol>`: stop watching a symbol",
		"• `" + p + "mygoals`: list my goals",
		"• `" + p + "price <symbol>`: show the last traded price",
	}, "\n")
}

func (c *Commands) usage(syntax string) string {
	return "⚠️ Usage: `" + c.prefix + syntax + "`"
}
