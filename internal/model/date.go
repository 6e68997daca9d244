package model

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout — формат дат в сообщениях и в хранилище (ДД.ММ.ГГГГ).
const DateLayout = "02.01.2006"

// Date — календарная дата без компонента времени.
// Все вычисления дней ведутся по календарю, а не по 24-часовым интервалам,
// поэтому результат не зависит от времени суток.
type Date struct {
	t time.Time
}

// NewDate усекает момент времени до календарной даты.
func NewDate(t time.Time) Date {
	return Date{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseDate разбирает дату в формате ДД.ММ.ГГГГ.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("bad date %q: %w", s, err)
	}
	return NewDate(t), nil
}

func (d Date) String() string {
	return d.t.Format(DateLayout)
}

// Time возвращает полночь этой даты (UTC) — для форматирования и графиков.
func (d Date) Time() time.Time {
	return d.t
}

func (d Date) IsZero() bool {
	return d.t.IsZero()
}

func (d Date) Equal(other Date) bool {
	return d.t.Equal(other.t)
}

func (d Date) Before(other Date) bool {
	return d.t.Before(other.t)
}

func (d Date) After(other Date) bool {
	return d.t.After(other.t)
}

// AddDays возвращает дату через n календарных дней (n может быть отрицательным).
func (d Date) AddDays(n int) Date {
	return NewDate(d.t.AddDate(0, 0, n))
}

// DaysUntil — число целых календарных дней от d до other.
// Отрицательное, если other раньше d.
func (d Date) DaysUntil(other Date) int {
	return int(other.t.Sub(d.t).Hours() / 24)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
