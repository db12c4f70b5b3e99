// Package timeline groups expenses into labelled days for display.
package timeline

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"budgetchat/internal/core"
)

// Icon keys understood by the client.
const (
	IconCart   = "cart"
	IconFork   = "fork"
	IconCar    = "car"
	IconCoffee = "coffee"
	IconTicket = "ticket"
	IconBag    = "bag"
)

const labelLayout = "Mon, Jan 2 2006"

type (
	// Item is one expense as shown in the timeline.
	Item struct {
		Expense core.ExpenseEntry `json:"expense"`
		Icon    string            `json:"icon"`
		Amount  string            `json:"amountLabel"`
	}

	// Total sums one currency within a day.
	Total struct {
		Currency string          `json:"currency"`
		Amount   decimal.Decimal `json:"amount"`
	}

	// Day is a group of expenses sharing a date, newest first.
	Day struct {
		Date   string  `json:"date"`
		Label  string  `json:"label"`
		Items  []Item  `json:"items"`
		Totals []Total `json:"totals"`
	}
)

var iconRules = []struct {
	pattern *regexp.Regexp
	icon    string
}{
	{regexp.MustCompile(`grocery|supermarket|market|lidl|kaufland|food`), IconCart},
	{regexp.MustCompile(`restaurant|dinner|lunch|meal|pizza|burger|kebab|dining`), IconFork},
	{regexp.MustCompile(`transport|taxi|uber|bus|fuel|gas|petrol|parking`), IconCar},
	{regexp.MustCompile(`coffee|cafe|latte|espresso`), IconCoffee},
	{regexp.MustCompile(`ticket|cinema|movie|concert|entertainment`), IconTicket},
}

// IconFor maps a category to an icon key. Unknown categories get IconBag.
func IconFor(category string) string {
	c := strings.ToLower(category)
	for _, r := range iconRules {
		if r.pattern.MatchString(c) {
			return r.icon
		}
	}
	return IconBag
}

// Group sorts entries newest first and groups them by date, labelling each
// day relative to now.
func Group(entries []core.ExpenseEntry, now time.Time) []Day {
	sorted := make([]core.ExpenseEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Date != b.Date {
			return a.Date > b.Date
		}
		switch {
		case a.Time != "" && b.Time != "":
			return a.Time > b.Time
		case a.Time != "":
			return true
		default:
			return false
		}
	})

	var days []Day
	for _, e := range sorted {
		if len(days) == 0 || days[len(days)-1].Date != e.Date {
			days = append(days, Day{Date: e.Date, Label: Label(e.Date, now)})
		}
		d := &days[len(days)-1]
		d.Items = append(d.Items, Item{
			Expense: e,
			Icon:    IconFor(e.Category),
			Amount:  core.FormatAmount(e.Amount, e.Currency),
		})
		d.Totals = addTotal(d.Totals, e.Currency, e.Amount)
	}
	return days
}

// Label names a date relative to now: "Today", "Yesterday" or the full date.
// Unparseable dates are returned unchanged.
func Label(date string, now time.Time) string {
	d, err := core.ParseDate(date)
	if err != nil {
		return date
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch {
	case d.Equal(today):
		return "Today"
	case d.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	default:
		return d.Format(labelLayout)
	}
}

func addTotal(totals []Total, currency string, amount decimal.Decimal) []Total {
	for i := range totals {
		if totals[i].Currency == currency {
			totals[i].Amount = totals[i].Amount.Add(amount)
			return totals
		}
	}
	return append(totals, Total{Currency: currency, Amount: amount})
}
