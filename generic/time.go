package generic

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// DATE - Calendar day, no clock (due dates, payment dates, "today")
// =============================================================================

// DateLayout is the wire and storage format of a Date.
const DateLayout = "2006-01-02"

// Date is a calendar day in UTC. The zero value means "no date".
type Date struct {
	Time time.Time
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// Today returns the current day. Business code never calls it directly;
// it is the default clock injected by the services.
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, Invalid("date", s, "expected YYYY-MM-DD")
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool  { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool  { return d.Time.Equal(other.Time) }
func (d Date) IsZero() bool           { return d.Time.IsZero() }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{Time: d.Time.AddDate(0, 0, n)} }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == nil || *s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(*s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// COMPETENCE - Month/year label of a forecast period
// =============================================================================

var monthNames = [...]string{
	"JANEIRO", "FEVEREIRO", "MARÇO", "ABRIL", "MAIO", "JUNHO",
	"JULHO", "AGOSTO", "SETEMBRO", "OUTUBRO", "NOVEMBRO", "DEZEMBRO",
}

// CompetenceLabel renders "MARÇO/2025" for month 3, year 2025.
func CompetenceLabel(month, year int) string {
	if month < 1 || month > 12 {
		return fmt.Sprintf("%d/%d", month, year)
	}
	return fmt.Sprintf("%s/%d", monthNames[month-1], year)
}

// ValidMonth reports whether m is in 1..12.
func ValidMonth(m int) bool { return m >= 1 && m <= 12 }

// CompetenceBefore orders (year, month) pairs chronologically.
func CompetenceBefore(y1, m1, y2, m2 int) bool {
	if y1 != y2 {
		return y1 < y2
	}
	return m1 < m2
}

// Competence is a month/year pair, written "03/2025" on the wire.
type Competence struct {
	Month int
	Year  int
}

// ParseCompetence accepts "M/YYYY" and "MM/YYYY".
func ParseCompetence(s string) (Competence, error) {
	m, y, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Competence{}, Invalid("competence", s, "expected MM/YYYY")
	}
	month, err := strconv.Atoi(m)
	if err != nil || !ValidMonth(month) {
		return Competence{}, Invalid("competence", s, "month must be between 1 and 12")
	}
	year, err := strconv.Atoi(y)
	if err != nil || year < 1 {
		return Competence{}, Invalid("competence", s, "expected MM/YYYY")
	}
	return Competence{Month: month, Year: year}, nil
}

// AddMonths moves n months forward (backward when negative).
func (c Competence) AddMonths(n int) Competence {
	idx := c.Year*12 + (c.Month - 1) + n
	return Competence{Month: idx%12 + 1, Year: idx / 12}
}

// Before orders competences chronologically.
func (c Competence) Before(other Competence) bool {
	return CompetenceBefore(c.Year, c.Month, other.Year, other.Month)
}

func (c Competence) String() string { return fmt.Sprintf("%02d/%d", c.Month, c.Year) }

// Label renders the long form, e.g. "MARÇO/2025".
func (c Competence) Label() string { return CompetenceLabel(c.Month, c.Year) }
