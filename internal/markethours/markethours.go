// Package markethours knows the NSE trading calendar: session hours,
// weekends and holidays, all evaluated in IST.
package markethours

import (
	"fmt"
	"time"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Market hours in IST
const (
	OpenHour    = 9
	OpenMinute  = 15
	CloseHour   = 15
	CloseMinute = 30
)

// maxScanDays bounds calendar scans (weekends plus clustered holidays).
const maxScanDays = 15

// IsMarketOpen returns true if t falls within NSE trading hours
// (9:15 AM to 3:30 PM IST on a trading day).
func IsMarketOpen(t time.Time) bool {
	ist := t.In(IST)
	if !IsTradingDay(ist) {
		return false
	}
	hm := ist.Hour()*60 + ist.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}

// IsWeekday returns true if t is Mon–Fri.
func IsWeekday(t time.Time) bool {
	wd := t.In(IST).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func IsTradingDay(t time.Time) bool {
	ist := t.In(IST)
	return IsWeekday(ist) && !IsHoliday(ist)
}

// SessionOpen returns 9:15 AM IST on t's date.
func SessionOpen(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), OpenHour, OpenMinute, 0, 0, IST)
}

// SessionClose returns 3:30 PM IST on t's date.
func SessionClose(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), CloseHour, CloseMinute, 0, 0, IST)
}

// PreviousTradingDay returns the session open of the last trading day
// strictly before t's date. Seed history starts there.
func PreviousTradingDay(t time.Time) time.Time {
	d := SessionOpen(t)
	for i := 0; i < maxScanDays; i++ {
		d = d.AddDate(0, 0, -1)
		if IsTradingDay(d) {
			return d
		}
	}
	return SessionOpen(t).AddDate(0, 0, -1)
}

// NextOpen returns the next market open. If t is before today's open on a
// trading day, returns today's open.
func NextOpen(t time.Time) time.Time {
	today := SessionOpen(t)
	if t.Before(today) && IsTradingDay(today) {
		return today
	}
	d := today
	for i := 0; i < maxScanDays; i++ {
		d = d.AddDate(0, 0, 1)
		if IsTradingDay(d) {
			return d
		}
	}
	return today.AddDate(0, 0, 1)
}

// StatusString returns a human-readable market status.
func StatusString(t time.Time) string {
	if IsMarketOpen(t) {
		return fmt.Sprintf("market open, closes in %s", fmtDur(SessionClose(t).Sub(t)))
	}
	next := NextOpen(t)
	ist := next.In(IST)
	return fmt.Sprintf("market closed, opens %s %s (%s)",
		ist.Weekday().String()[:3], ist.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
