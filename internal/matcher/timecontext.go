package matcher

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/remindr/internal/timeutil"
)

// PartOfDay is a coarse local-time bucket.
type PartOfDay string

const (
	Morning   PartOfDay = "morning"   // 06:00-12:00
	Afternoon PartOfDay = "afternoon" // 12:00-17:00
	Evening   PartOfDay = "evening"   // 17:00-21:00
	Night     PartOfDay = "night"     // 21:00-06:00
)

// PartOf returns the bucket containing the local hour.
func PartOf(hour int) PartOfDay {
	switch {
	case hour >= 6 && hour < 12:
		return Morning
	case hour >= 12 && hour < 17:
		return Afternoon
	case hour >= 17 && hour < 21:
		return Evening
	default:
		return Night
	}
}

// TimeContext holds the time references found in a deletion request.
// Day references are relative so they can be resolved in each reminder's
// own timezone.
type TimeContext struct {
	HasDay    bool
	DayOffset int // 0 today, 1 tomorrow
	Weekday   *time.Weekday

	HasClock  bool
	HasMinute bool
	Hour      int
	Minute    int

	Part PartOfDay
}

// Empty reports whether no time reference was found.
func (tc TimeContext) Empty() bool {
	return !tc.HasDay && tc.Weekday == nil && !tc.HasClock && tc.Part == ""
}

var (
	ampmRe  = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
	clockRe = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	atRe    = regexp.MustCompile(`\bat (\d{1,2})\b`)
)

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

var parts = map[string]PartOfDay{
	"morning": Morning, "afternoon": Afternoon, "evening": Evening, "night": Night,
}

func isTimeWord(w string) bool {
	if _, ok := weekdays[w]; ok {
		return true
	}
	if _, ok := parts[w]; ok {
		return true
	}
	switch w {
	case "today", "tomorrow", "tonight", "noon", "midnight":
		return true
	}
	return ampmRe.MatchString(w)
}

// ParseTimeContext extracts day, clock and part-of-day references from text.
func ParseTimeContext(text string) TimeContext {
	var tc TimeContext
	lower := strings.ToLower(text)

	for _, w := range tokenize(lower) {
		switch w {
		case "today":
			tc.HasDay, tc.DayOffset = true, 0
		case "tomorrow":
			tc.HasDay, tc.DayOffset = true, 1
		case "tonight":
			tc.HasDay, tc.DayOffset = true, 0
			if tc.Part == "" {
				tc.Part = Night
			}
		case "noon":
			tc.HasClock, tc.HasMinute, tc.Hour, tc.Minute = true, true, 12, 0
		case "midnight":
			tc.HasClock, tc.HasMinute, tc.Hour, tc.Minute = true, true, 0, 0
		}
		if wd, ok := weekdays[w]; ok && tc.Weekday == nil {
			tc.Weekday = &wd
		}
		if p, ok := parts[w]; ok {
			tc.Part = p
		}
	}

	if m := ampmRe.FindStringSubmatch(lower); m != nil {
		hour, _ := strconv.Atoi(m[1])
		if hour >= 1 && hour <= 12 {
			hour %= 12
			if m[3] == "pm" {
				hour += 12
			}
			tc.HasClock, tc.Hour, tc.HasMinute, tc.Minute = true, hour, false, 0
			if m[2] != "" {
				tc.HasMinute = true
				tc.Minute, _ = strconv.Atoi(m[2])
			}
		}
	} else if m := clockRe.FindStringSubmatch(lower); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour < 24 && minute < 60 {
			tc.HasClock, tc.HasMinute, tc.Hour, tc.Minute = true, true, hour, minute
		}
	} else if m := atRe.FindStringSubmatch(lower); m != nil {
		hour, _ := strconv.Atoi(m[1])
		if hour < 24 {
			tc.HasClock, tc.HasMinute, tc.Hour = true, false, hour
		}
	}
	return tc
}

// Day resolves a relative or weekday reference to the local calendar day in
// loc, at midnight. A weekday means its next occurrence, today included.
func (tc TimeContext) Day(now time.Time, loc *time.Location) (time.Time, bool) {
	today := timeutil.StartOfDay(now.In(loc))
	switch {
	case tc.HasDay:
		return today.AddDate(0, 0, tc.DayOffset), true
	case tc.Weekday != nil:
		ahead := (int(*tc.Weekday) - int(today.Weekday()) + 7) % 7
		return today.AddDate(0, 0, ahead), true
	}
	return time.Time{}, false
}

const (
	dateWeight   = 20
	clockWeight  = 20
	hourWeight   = 15
	partWeight   = 10
	timeMaxScore = 20
)

// score compares a candidate instant with the context in the candidate's
// timezone and returns the best matching signal.
func (tc TimeContext) score(at time.Time, now time.Time, loc *time.Location) (int, string) {
	local := at.In(loc)
	best, reason := 0, ""
	consider := func(points int, why string) {
		if points > best {
			best, reason = points, why
		}
	}

	if day, ok := tc.Day(now, loc); ok && timeutil.SameLocalDay(local, day, loc) {
		consider(dateWeight, "fires "+dayLabel(tc, day, loc))
	}
	if tc.HasClock && local.Hour() == tc.Hour {
		if tc.HasMinute && local.Minute() == tc.Minute {
			consider(clockWeight, "fires at "+local.Format("15:04"))
		} else if !tc.HasMinute {
			consider(hourWeight, fmt.Sprintf("fires around %02d:00", local.Hour()))
		}
	}
	if tc.Part != "" && PartOf(local.Hour()) == tc.Part {
		consider(partWeight, "fires in the "+string(tc.Part))
	}
	return min(best, timeMaxScore), reason
}

func dayLabel(tc TimeContext, day time.Time, loc *time.Location) string {
	switch {
	case tc.HasDay && tc.DayOffset == 0:
		return "today"
	case tc.HasDay && tc.DayOffset == 1:
		return "tomorrow"
	}
	return "on " + day.In(loc).Weekday().String()
}
