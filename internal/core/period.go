package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Period is a calendar month of a given year.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// PeriodOf returns the month t falls in.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

// ValidateMonthYear checks month bounds. Any integer year is accepted.
func ValidateMonthYear(year, month int) (Period, error) {
	if month < 1 || month > 12 {
		v := NewFieldError("month", "Month must be between 1 and 12.")
		v.cause = ErrInvalidMonth
		return Period{}, v
	}
	return Period{Year: year, Month: month}, nil
}

// ParsePeriod validates raw query values, as received at the boundary.
func ParsePeriod(year, month string) (Period, error) {
	v := &ValidationError{}
	y, msg := parseRequiredInt(year)
	if msg != "" {
		v.Add("year", msg)
	}
	m, msg := parseRequiredInt(month)
	if msg != "" {
		v.Add("month", msg)
	}
	if err := v.Err(); err != nil {
		return Period{}, err
	}
	return ValidateMonthYear(y, m)
}

// parseRequiredInt returns the parsed value or a user facing message.
func parseRequiredInt(s string) (int, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, "This field is required."
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, "A valid integer is required."
	}
	return n, ""
}

// DaysIn returns the number of days of the month.
func DaysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// SafeDueDate returns the date for day in the given month, clamping day to
// the month length. Days below 1 clamp to the first.
func SafeDueDate(year, month, day int) Date {
	if last := DaysIn(year, month); day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return NewDate(year, month, day)
}

// AddMonths moves d by n calendar months keeping the day of month where
// possible; Jan 31 plus one month is the last day of February.
func AddMonths(d Date, n int) Date {
	total := d.Year()*12 + (d.Month() - 1) + n
	year, month := total/12, total%12+1
	if month < 1 {
		// negative totals
		year--
		month += 12
	}
	return SafeDueDate(year, month, d.Day())
}

func (p Period) FirstDay() Date {
	return NewDate(p.Year, p.Month, 1)
}

func (p Period) LastDay() Date {
	return NewDate(p.Year, p.Month, DaysIn(p.Year, p.Month))
}

func (p Period) Next() Period {
	if p.Month == 12 {
		return Period{Year: p.Year + 1, Month: 1}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// Before orders periods chronologically.
func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

// Contains reports whether d falls in the period.
func (p Period) Contains(d Date) bool {
	return d.Year() == p.Year && d.Month() == p.Month
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}
