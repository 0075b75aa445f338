package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/civil"
)

// DefaultSlackDays widens the payment window on each side of the payment due
// date to tolerate bank processing delay.
const DefaultSlackDays = 5

// ConfigurationError reports that the billing-cycle configuration for a card
// could not be resolved. The engine fails fast on it and performs no writes.
type ConfigurationError struct {
	CardID string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("billing cycle configuration for card %q: %s", e.CardID, e.Reason)
}

// Window is an inclusive date-time range.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Cycle is a resolved billing cycle: where the card's charges land, where the
// bank debit is expected, and which account it is expected on.
type Cycle struct {
	BankAccountID string
	ChargeWindow  Window
	PaymentWindow Window
	PaymentDue    civil.Date
}

// CycleResolver resolves a card's billing cycle for one billing month.
type CycleResolver interface {
	ResolveCycle(ctx context.Context, cardID, billingMonth string) (Cycle, error)
}

// CardConfig is the external credit-card configuration this core consumes:
// the linked bank account and the closing/payment days that shape the cycle.
type CardConfig struct {
	CardID        string `json:"card_id"`
	BankAccountID string `json:"bank_account_id"`
	ClosingDay    int    `json:"closing_day"`
	PaymentDay    int    `json:"payment_day"`
	SlackDays     int    `json:"slack_days,omitempty"`
}

// ConfigCycleResolver resolves cycles from a static card configuration set.
type ConfigCycleResolver struct {
	cards map[string]CardConfig
}

// NewConfigCycleResolver indexes the configs by card id.
func NewConfigCycleResolver(cards []CardConfig) *ConfigCycleResolver {
	indexed := make(map[string]CardConfig, len(cards))
	for _, c := range cards {
		indexed[c.CardID] = c
	}
	return &ConfigCycleResolver{cards: indexed}
}

// LoadCardConfigs reads a JSON array of card configurations from a file.
func LoadCardConfigs(path string) ([]CardConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read card config %q: %w", path, err)
	}
	var cards []CardConfig
	if err := json.Unmarshal(data, &cards); err != nil {
		return nil, fmt.Errorf("decode card config %q: %w", path, err)
	}
	return cards, nil
}

// ResolveCycle implements CycleResolver.
//
// The charge window for billing month M runs from the day after the previous
// month's closing day through M's closing day; closing days past the end of a
// month clamp to its last day, so closing day 31 covers the whole calendar
// month. The payment due date is the payment day in the month after M, and
// the payment window is that date widened by the slack on both sides.
func (r *ConfigCycleResolver) ResolveCycle(ctx context.Context, cardID, billingMonth string) (Cycle, error) {
	card, ok := r.cards[cardID]
	if !ok {
		return Cycle{}, &ConfigurationError{CardID: cardID, Reason: "unknown card"}
	}
	if card.BankAccountID == "" {
		return Cycle{}, &ConfigurationError{CardID: cardID, Reason: "no linked bank account"}
	}
	if card.ClosingDay < 1 || card.ClosingDay > 31 {
		return Cycle{}, &ConfigurationError{CardID: cardID, Reason: fmt.Sprintf("closing day %d out of range", card.ClosingDay)}
	}
	if card.PaymentDay < 1 || card.PaymentDay > 31 {
		return Cycle{}, &ConfigurationError{CardID: cardID, Reason: fmt.Sprintf("payment day %d out of range", card.PaymentDay)}
	}

	month, err := time.Parse("2006-01", billingMonth)
	if err != nil {
		return Cycle{}, &ConfigurationError{CardID: cardID, Reason: fmt.Sprintf("invalid billing month %q", billingMonth)}
	}

	slack := card.SlackDays
	if slack <= 0 {
		slack = DefaultSlackDays
	}

	this := civil.Date{Year: month.Year(), Month: month.Month(), Day: 1}
	prev := this.AddDays(-1) // last day of previous month

	cycleStart := clampDay(prev.Year, prev.Month, card.ClosingDay).AddDays(1)
	cycleEnd := clampDay(this.Year, this.Month, card.ClosingDay)

	next := civil.DateOf(time.Date(this.Year, this.Month+1, 1, 0, 0, 0, 0, time.UTC))
	due := clampDay(next.Year, next.Month, card.PaymentDay)

	return Cycle{
		BankAccountID: card.BankAccountID,
		ChargeWindow:  Window{Start: startOfDay(cycleStart), End: endOfDay(cycleEnd)},
		PaymentWindow: Window{Start: startOfDay(due.AddDays(-slack)), End: endOfDay(due.AddDays(slack))},
		PaymentDue:    due,
	}, nil
}

// clampDay builds a date in (year, month) with day clamped to the month's
// actual length.
func clampDay(year int, month time.Month, day int) civil.Date {
	last := civil.DateOf(time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC))
	if day > last.Day {
		day = last.Day
	}
	return civil.Date{Year: year, Month: month, Day: day}
}

func startOfDay(d civil.Date) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func endOfDay(d civil.Date) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
}

// Ensure ConfigCycleResolver implements CycleResolver.
var _ CycleResolver = (*ConfigCycleResolver)(nil)
