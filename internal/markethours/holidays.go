package markethours

import (
	"sync"
	"time"
)

type civilDate struct {
	year  int
	month time.Month
	day   int
}

func dateOf(t time.Time) civilDate {
	ist := t.In(IST)
	return civilDate{ist.Year(), ist.Month(), ist.Day()}
}

// NSE trading holidays. Extra dates can be added at startup with AddHoliday.
var (
	holidayMu sync.RWMutex
	holidays  = map[civilDate]string{
		{2025, time.February, 26}: "Mahashivratri",
		{2025, time.March, 14}:    "Holi",
		{2025, time.March, 31}:    "Id-ul-Fitr",
		{2025, time.April, 10}:    "Mahavir Jayanti",
		{2025, time.April, 14}:    "Dr. Ambedkar Jayanti",
		{2025, time.April, 18}:    "Good Friday",
		{2025, time.May, 1}:       "Maharashtra Day",
		{2025, time.August, 15}:   "Independence Day",
		{2025, time.August, 27}:   "Ganesh Chaturthi",
		{2025, time.October, 2}:   "Mahatma Gandhi Jayanti",
		{2025, time.October, 21}:  "Diwali Laxmi Pujan",
		{2025, time.October, 22}:  "Diwali Balipratipada",
		{2025, time.November, 5}:  "Guru Nanak Jayanti",
		{2025, time.December, 25}: "Christmas",

		{2026, time.January, 26}:  "Republic Day",
		{2026, time.February, 17}: "Mahashivratri",
		{2026, time.March, 14}:    "Holi",
		{2026, time.March, 31}:    "Id-ul-Fitr",
		{2026, time.April, 2}:     "Ram Navami",
		{2026, time.April, 6}:     "Mahavir Jayanti",
		{2026, time.April, 10}:    "Good Friday",
		{2026, time.April, 14}:    "Dr. Ambedkar Jayanti",
		{2026, time.May, 1}:       "Maharashtra Day",
		{2026, time.June, 7}:      "Bakrid",
		{2026, time.July, 6}:      "Muharram",
		{2026, time.August, 15}:   "Independence Day",
		{2026, time.August, 16}:   "Janmashtami",
		{2026, time.September, 5}: "Milad-un-Nabi",
		{2026, time.October, 2}:   "Mahatma Gandhi Jayanti",
		{2026, time.October, 20}:  "Dussehra",
		{2026, time.October, 21}:  "Dussehra",
		{2026, time.November, 5}:  "Diwali Laxmi Pujan",
		{2026, time.November, 6}:  "Diwali Balipratipada",
		{2026, time.November, 7}:  "Bhai Dooj",
		{2026, time.November, 19}: "Guru Nanak Jayanti",
		{2026, time.December, 25}: "Christmas",
	}
)

// IsHoliday returns true if the date (in IST) is an NSE holiday.
func IsHoliday(t time.Time) bool {
	_, ok := HolidayName(t)
	return ok
}

// HolidayName returns the holiday on t's IST date, if any.
func HolidayName(t time.Time) (string, bool) {
	holidayMu.RLock()
	defer holidayMu.RUnlock()
	name, ok := holidays[dateOf(t)]
	return name, ok
}

// AddHoliday marks t's IST date as a holiday.
func AddHoliday(t time.Time, name string) {
	holidayMu.Lock()
	holidays[dateOf(t)] = name
	holidayMu.Unlock()
}

// ParseHolidays parses YYYY-MM-DD dates and registers them.
func ParseHolidays(dates []string) error {
	for _, d := range dates {
		t, err := time.ParseInLocation("2006-01-02", d, IST)
		if err != nil {
			return err
		}
		AddHoliday(t, "configured")
	}
	return nil
}
