// Package timespec implements the at-style time reference grammar used by
// fetch/query requests: "now", "today", "noon yesterday", "start+1week",
// and absolute HH:MM / MM/DD/YY / DD.MM.YYYY / YYYYMMDD forms.
package timespec

import (
	"time"

	"github.com/wellsgz/rrdb/internal/rrd"
)

// Unit is an offset's time unit.
type Unit int

const (
	UnitSecond Unit = iota
	UnitMinute
	UnitHour
	UnitDay
	UnitWeek
	UnitMonth
	UnitYear
)

// Offset is one signed "±N unit" term of an offset expression.
type Offset struct {
	Sign int
	N    int
	Unit Unit
}

// Anchor marks a TimeSpec that refers to the paired spec's resolved time
// ("start" or "end") rather than carrying its own base.
type Anchor int

const (
	AnchorNone Anchor = iota
	AnchorStart
	AnchorEnd
)

// TimeSpec is the parsed result of one time expression: an optional base
// (now, an anchor reference, an explicit date/time, or a keyword) plus a
// sequence of offsets applied to it in order.
type TimeSpec struct {
	Now    bool
	Anchor Anchor

	DateKeyword string // "today", "yesterday", "tomorrow", or ""
	HasDate     bool
	Year        int
	Month       time.Month
	Day         int

	HasWeekday bool
	Weekday    time.Weekday

	HasTime bool
	Hour    int
	Minute  int

	Offsets []Offset

	hadAbsoluteDate bool // for the m-token ambiguity: set by any date-bearing form
}

var monthNames = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// Parse parses one time expression into a TimeSpec.
func Parse(raw string) (*TimeSpec, error) {
	sc := newScanner(raw)
	ts := &TimeSpec{}

	sc.skipSpace()
	if sc.atEnd() {
		return nil, rrd.NewTimeSpecError("empty time spec")
	}

	if err := parseBase(sc, ts); err != nil {
		return nil, err
	}

	sc.skipSpace()
	// A second keyword may supply the other half of a date+time pair,
	// e.g. "noon yesterday" or "yesterday noon".
	if !sc.atEnd() {
		if r, ok := sc.peek(); ok && (r < '0' || r > '9') && r != '+' && r != '-' {
			mark := sc.save()
			if w, ok := sc.scanWord(); ok {
				if !applySecondKeyword(ts, w) {
					sc.restore(mark)
				} else {
					sc.skipSpace()
				}
			}
		}
	}

	if err := parseOffsets(sc, ts); err != nil {
		return nil, err
	}

	sc.skipSpace()
	if !sc.atEnd() {
		return nil, rrd.NewTimeSpecError("unexpected trailing text in time spec %q", raw)
	}
	return ts, nil
}

func applySecondKeyword(ts *TimeSpec, w string) bool {
	switch w {
	case "today", "yesterday", "tomorrow":
		if ts.DateKeyword != "" || ts.HasDate || ts.HasWeekday {
			return false
		}
		ts.DateKeyword = w
		ts.hadAbsoluteDate = true
		return true
	case "midnight":
		if ts.HasTime {
			return false
		}
		ts.HasTime, ts.Hour, ts.Minute = true, 0, 0
		return true
	case "noon":
		if ts.HasTime {
			return false
		}
		ts.HasTime, ts.Hour, ts.Minute = true, 12, 0
		return true
	case "teatime":
		if ts.HasTime {
			return false
		}
		ts.HasTime, ts.Hour, ts.Minute = true, 17, 30
		return true
	}
	return false
}

// parseBase consumes the leading keyword, absolute date/time, or anchor
// reference. Offsets (handled by parseOffsets) may still follow.
func parseBase(sc *scanner, ts *TimeSpec) error {
	if r, ok := sc.peek(); ok && (r >= '0' && r <= '9') {
		return parseAbsoluteNumeric(sc, ts)
	}

	mark := sc.save()
	w, ok := sc.scanWord()
	if !ok {
		return rrd.NewTimeSpecError("expected a time spec keyword or number")
	}

	switch w {
	case "now":
		ts.Now = true
		return nil
	case "start":
		ts.Anchor = AnchorStart
		return nil
	case "end":
		ts.Anchor = AnchorEnd
		return nil
	case "today", "yesterday", "tomorrow":
		ts.DateKeyword = w
		ts.hadAbsoluteDate = true
		return nil
	case "midnight":
		ts.HasTime, ts.Hour, ts.Minute = true, 0, 0
		return nil
	case "noon":
		ts.HasTime, ts.Hour, ts.Minute = true, 12, 0
		return nil
	case "teatime":
		ts.HasTime, ts.Hour, ts.Minute = true, 17, 30
		return nil
	}

	if mo, ok := monthNames[w]; ok {
		return parseMonthDayYear(sc, ts, mo)
	}
	if wd, ok := weekdayNames[w]; ok {
		ts.HasWeekday = true
		ts.Weekday = wd
		ts.hadAbsoluteDate = true
		return nil
	}

	sc.restore(mark)
	return rrd.NewTimeSpecError("unrecognized time spec token at position %d", mark)
}

func parseMonthDayYear(sc *scanner, ts *TimeSpec, mo time.Month) error {
	sc.skipSpace()
	sc.tryRune(',')
	sc.skipSpace()
	day, _, ok := sc.scanUint()
	if !ok {
		return rrd.NewTimeSpecError("expected day number after month name")
	}
	ts.HasDate = true
	ts.Month = mo
	ts.Day = day
	ts.Year = 0 // filled from "now" at resolution time unless overridden below
	sc.skipSpace()
	sc.tryRune(',')
	sc.skipSpace()
	if r, ok := sc.peek(); ok && r >= '0' && r <= '9' {
		mark := sc.save()
		year, width, _ := sc.scanUint()
		if width == 4 {
			ts.Year = year
		} else {
			sc.restore(mark)
		}
	}
	ts.hadAbsoluteDate = true
	return nil
}

// parseAbsoluteNumeric handles HH[:MM][am|pm], MM/DD/YY[YY], DD.MM.YYYY
// and YYYYMMDD, disambiguated by the separator (or digit width) that
// follows the first number.
func parseAbsoluteNumeric(sc *scanner, ts *TimeSpec) error {
	n1, w1, ok := sc.scanUint()
	if !ok {
		return rrd.NewTimeSpecError("expected a number")
	}

	if r, ok := sc.peek(); ok && r == '/' {
		sc.pos++
		day, _, ok := sc.scanUint()
		if !ok {
			return rrd.NewTimeSpecError("malformed MM/DD date")
		}
		if !sc.tryRune('/') {
			return rrd.NewTimeSpecError("malformed MM/DD/YY date")
		}
		year, yw, ok := sc.scanUint()
		if !ok {
			return rrd.NewTimeSpecError("malformed MM/DD/YY date")
		}
		ts.HasDate = true
		ts.Month = time.Month(n1)
		ts.Day = day
		ts.Year = normalizeYear(year, yw)
		ts.hadAbsoluteDate = true
		return maybeTrailingTime(sc, ts)
	}

	if r, ok := sc.peek(); ok && r == '.' {
		sc.pos++
		mo, _, ok := sc.scanUint()
		if !ok {
			return rrd.NewTimeSpecError("malformed DD.MM.YYYY date")
		}
		if !sc.tryRune('.') {
			return rrd.NewTimeSpecError("malformed DD.MM.YYYY date")
		}
		year, yw, ok := sc.scanUint()
		if !ok {
			return rrd.NewTimeSpecError("malformed DD.MM.YYYY date")
		}
		ts.HasDate = true
		ts.Month = time.Month(mo)
		ts.Day = n1
		ts.Year = normalizeYear(year, yw)
		ts.hadAbsoluteDate = true
		return maybeTrailingTime(sc, ts)
	}

	if r, ok := sc.peek(); ok && r == ':' {
		sc.pos++
		minute, _, ok := sc.scanUint()
		if !ok {
			return rrd.NewTimeSpecError("malformed HH:MM time")
		}
		hour := n1
		hour, minute = applyAMPM(sc, hour, minute)
		ts.HasTime = true
		ts.Hour, ts.Minute = hour, minute
		return nil
	}

	if w1 == 8 {
		ts.HasDate = true
		ts.Year = n1 / 10000
		ts.Month = time.Month((n1 / 100) % 100)
		ts.Day = n1 % 100
		ts.hadAbsoluteDate = true
		return nil
	}

	hour, minute := applyAMPM(sc, n1, 0)
	ts.HasTime = true
	ts.Hour, ts.Minute = hour, minute
	return nil
}

func maybeTrailingTime(sc *scanner, ts *TimeSpec) error {
	sc.skipSpace()
	if r, ok := sc.peek(); !ok || r < '0' || r > '9' {
		return nil
	}
	mark := sc.save()
	hour, _, ok := sc.scanUint()
	if !ok || !sc.tryRune(':') {
		sc.restore(mark)
		return nil
	}
	minute, _, ok := sc.scanUint()
	if !ok {
		return rrd.NewTimeSpecError("malformed trailing HH:MM time")
	}
	hour, minute = applyAMPM(sc, hour, minute)
	ts.HasTime = true
	ts.Hour, ts.Minute = hour, minute
	return nil
}

func applyAMPM(sc *scanner, hour, minute int) (int, int) {
	sc.skipSpace()
	mark := sc.save()
	if w, ok := sc.scanWord(); ok {
		switch w {
		case "am":
			if hour == 12 {
				hour = 0
			}
			return hour, minute
		case "pm":
			if hour != 12 {
				hour += 12
			}
			return hour, minute
		}
	}
	sc.restore(mark)
	return hour, minute
}

func normalizeYear(y, width int) int {
	if width >= 4 {
		return y
	}
	if y < 70 {
		return 2000 + y
	}
	return 1900 + y
}

// parseOffsets consumes zero or more "±N unit" terms.
func parseOffsets(sc *scanner, ts *TimeSpec) error {
	for {
		sc.skipSpace()
		r, ok := sc.peek()
		if !ok || (r != '+' && r != '-') {
			return nil
		}
		sign := sc.scanSign()
		sc.skipSpace()
		n, _, ok := sc.scanUint()
		if !ok {
			return rrd.NewTimeSpecError("expected a number after offset sign")
		}
		sc.skipSpace()
		word, ok := sc.scanWord()
		if !ok {
			return rrd.NewTimeSpecError("expected a unit after offset number")
		}
		unit, err := resolveUnit(word, ts.hadAbsoluteDate)
		if err != nil {
			return err
		}
		ts.Offsets = append(ts.Offsets, Offset{Sign: sign, N: n, Unit: unit})
	}
}

func resolveUnit(word string, afterDate bool) (Unit, error) {
	switch word {
	case "s", "sec", "secs", "second", "seconds":
		return UnitSecond, nil
	case "min", "mins", "minute", "minutes":
		return UnitMinute, nil
	case "h", "hr", "hrs", "hour", "hours":
		return UnitHour, nil
	case "d", "day", "days":
		return UnitDay, nil
	case "w", "week", "weeks":
		return UnitWeek, nil
	case "mon", "mons", "month", "months":
		return UnitMonth, nil
	case "y", "yr", "yrs", "year", "years":
		return UnitYear, nil
	case "m":
		// Genuinely context-sensitive: the scanner already consumed the
		// token, so no further lookahead is possible here; the caller's
		// absolute-date context decided it already.
		if afterDate {
			return UnitMonth, nil
		}
		return UnitMinute, nil
	}
	return 0, rrd.NewTimeSpecError("unknown offset unit %q", word)
}

// GetTimestamp materializes ts against now, resolving an AnchorStart or
// AnchorEnd reference through anchor (the other spec's already-resolved
// time). anchor must be non-nil when ts.Anchor != AnchorNone.
func (ts *TimeSpec) GetTimestamp(now time.Time, anchor *time.Time) (time.Time, error) {
	var base time.Time
	switch {
	case ts.Anchor != AnchorNone:
		if anchor == nil {
			return time.Time{}, rrd.NewTimeSpecError("time spec references an anchor that was not resolved")
		}
		base = *anchor
	case ts.Now, !ts.HasDate && !ts.HasTime && !ts.HasWeekday && ts.DateKeyword == "":
		base = now
	default:
		base = composeBase(ts, now)
	}

	for _, off := range ts.Offsets {
		base = applyOffset(base, off)
	}
	return base, nil
}

func composeBase(ts *TimeSpec, now time.Time) time.Time {
	loc := now.Location()
	y, mo, d := now.Date()

	switch {
	case ts.HasDate:
		y, mo, d = ts.Year, ts.Month, ts.Day
		if y == 0 {
			y, _, _ = now.Date()
		}
	case ts.HasWeekday:
		cur := time.Date(y, mo, d, 0, 0, 0, 0, loc)
		delta := (int(cur.Weekday()) - int(ts.Weekday) + 7) % 7
		cur = cur.AddDate(0, 0, -delta)
		y, mo, d = cur.Date()
	case ts.DateKeyword == "yesterday":
		cur := time.Date(y, mo, d, 0, 0, 0, 0, loc).AddDate(0, 0, -1)
		y, mo, d = cur.Date()
	case ts.DateKeyword == "tomorrow":
		cur := time.Date(y, mo, d, 0, 0, 0, 0, loc).AddDate(0, 0, 1)
		y, mo, d = cur.Date()
	}

	hour, minute := 0, 0
	if ts.HasTime {
		hour, minute = ts.Hour, ts.Minute
	}
	return time.Date(y, mo, d, hour, minute, 0, 0, loc)
}

func applyOffset(base time.Time, off Offset) time.Time {
	n := off.Sign * off.N
	switch off.Unit {
	case UnitSecond:
		return base.Add(time.Duration(n) * time.Second)
	case UnitMinute:
		return base.Add(time.Duration(n) * time.Minute)
	case UnitHour:
		return base.Add(time.Duration(n) * time.Hour)
	case UnitDay:
		return base.Add(time.Duration(n) * 24 * time.Hour)
	case UnitWeek:
		return base.Add(time.Duration(n) * 7 * 24 * time.Hour)
	case UnitMonth:
		return base.AddDate(0, n, 0)
	case UnitYear:
		return base.AddDate(n, 0, 0)
	}
	return base
}

// ResolvePair parses and resolves a start/end pair, handling cross
// reference between "start" and "end" anchors. A spec that anchors to the
// other while the other anchors back to it is rejected.
func ResolvePair(startExpr, endExpr string, now time.Time) (time.Time, time.Time, error) {
	startSpec, err := Parse(startExpr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	endSpec, err := Parse(endExpr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	if startSpec.Anchor == AnchorEnd && endSpec.Anchor == AnchorStart {
		return time.Time{}, time.Time{}, rrd.NewTimeSpecError("start and end cannot both anchor to each other")
	}

	var start, end time.Time
	switch {
	case startSpec.Anchor == AnchorEnd:
		end, err = endSpec.GetTimestamp(now, nil)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start, err = startSpec.GetTimestamp(now, &end)
	case endSpec.Anchor == AnchorStart:
		start, err = startSpec.GetTimestamp(now, nil)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end, err = endSpec.GetTimestamp(now, &start)
	default:
		start, err = startSpec.GetTimestamp(now, nil)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end, err = endSpec.GetTimestamp(now, nil)
	}
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}
