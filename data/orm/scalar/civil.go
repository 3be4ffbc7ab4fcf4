package scalar

import (
	"fmt"
	"time"
)

// CivilDate 不含时刻与时区的日历日期
type CivilDate struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf 取 t 在其自身时区下的日历日期
func DateOf(t time.Time) CivilDate {
	y, m, d := t.Date()
	return CivilDate{Year: y, Month: m, Day: d}
}

// In 返回该日期在 loc 中零点对应的时刻
func (d CivilDate) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d CivilDate) IsZero() bool { return d == CivilDate{} }

func (d CivilDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// CivilTime 不含日期与时区的一天中时刻
type CivilTime struct {
	Hour       int
	Minute     int
	Second     int
	Nanosecond int
}

// TimeOf 取 t 在其自身时区下的时刻部分
func TimeOf(t time.Time) CivilTime {
	return CivilTime{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second(), Nanosecond: t.Nanosecond()}
}

func (t CivilTime) String() string {
	if t.Nanosecond == 0 {
		return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
	}
	return fmt.Sprintf("%02d:%02d:%02d.%09d", t.Hour, t.Minute, t.Second, t.Nanosecond)
}
