package recurrence

import (
	"fmt"
	"strings"

	"occurcal/internal/datekey"
)

// Label renders a short human summary of n. It reads only the normalized
// descriptor, never the raw rule text.
func Label(n Normalized) string {
	if !n.IsConfident {
		return "Schedule unknown"
	}

	var base string
	day := n.Day.OrEmpty()
	switch n.Frequency {
	case OneTime:
		return "One-time: " + longDate(n.Start.OrEmpty())
	case Custom:
		if len(n.CustomDates) == 1 {
			return "One-time: " + longDate(n.CustomDates[0])
		}
		return fmt.Sprintf("Custom dates (%d)", len(n.CustomDates))
	case Weekly:
		if n.interval() > 1 {
			base = fmt.Sprintf("Every %d weeks on %s", n.interval(), day.Name)
		} else {
			base = "Every " + day.Name
		}
	case Biweekly:
		base = "Every other " + day.Name
	case Monthly:
		period := "the month"
		if n.interval() > 1 {
			period = fmt.Sprintf("every %d months", n.interval())
		}
		if len(n.MonthDays) > 0 {
			days := make([]string, 0, len(n.MonthDays))
			for _, d := range n.MonthDays {
				days = append(days, dayOfMonth(d))
			}
			base = "Monthly on the " + joinList(days)
			if n.interval() > 1 {
				base += " of " + period
			}
		} else {
			names := make([]string, 0, len(n.Ordinals))
			for _, o := range n.Ordinals {
				name := ordinalNames[o]
				if o == LastOrdinal {
					name = "Last"
				}
				names = append(names, name)
			}
			base = fmt.Sprintf("%s %s of %s", joinList(names), day.Name, period)
		}
	case Daily:
		if n.interval() > 1 {
			base = fmt.Sprintf("Every %d days", n.interval())
		} else {
			base = "Daily"
		}
	case Yearly:
		base = "Yearly on " + shortDate(n.Start.OrEmpty())
	default:
		return "Schedule unknown"
	}

	if end, ok := n.End.Get(); ok {
		base += " until " + longDate(end)
	} else if count, ok := n.Count.Get(); ok {
		base += fmt.Sprintf(" (%d times)", count)
	}
	return base
}

func joinList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " & " + items[len(items)-1]
}

func dayOfMonth(d int) string {
	if d < 0 {
		if d == -1 {
			return "last day"
		}
		return fmt.Sprintf("%s-to-last day", dayOfMonth(-d))
	}
	suffix := "th"
	switch {
	case d%100 >= 11 && d%100 <= 13:
	case d%10 == 1:
		suffix = "st"
	case d%10 == 2:
		suffix = "nd"
	case d%10 == 3:
		suffix = "rd"
	}
	return fmt.Sprintf("%d%s", d, suffix)
}

func longDate(key string) string {
	t, err := datekey.Parse(key)
	if err != nil {
		return key
	}
	return t.Format("Mon, Jan 2, 2006")
}

func shortDate(key string) string {
	t, err := datekey.Parse(key)
	if err != nil {
		return key
	}
	return t.Format("Jan 2")
}
