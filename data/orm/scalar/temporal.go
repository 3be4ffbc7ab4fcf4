package scalar

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// 默认时间类型使用 UTC，需要其他时区时通过 NewDate/NewTimestamp 等显式构造
var (
	Date      DateTimeType = NewDate(time.UTC)
	Timestamp DateTimeType = NewTimestamp(time.UTC)
	TimeOfDay DateTimeType = NewTimeOfDay(time.UTC)
	Calendar  DateTimeType = NewCalendar(time.UTC)
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

var timeOfDayLayouts = []string{
	"15:04:05.999999999",
	"15:04:05",
	"15:04",
}

// epochMillis 识别整数输入（含 json.Number），这类输入一律视为毫秒时间戳
func epochMillis(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint32:
		return int64(x), true
	case json.Number:
		n, err := strconv.ParseInt(string(x), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return cast.ToTimeInDefaultLocationE(s, loc)
}

// toTime 将时间类输入统一为 loc 中的 time.Time
func toTime(v any, loc *time.Location) (time.Time, error) {
	if ms, ok := epochMillis(v); ok {
		return time.UnixMilli(ms).In(loc), nil
	}
	switch x := v.(type) {
	case time.Time:
		return x.In(loc), nil
	case CivilDate:
		return x.In(loc), nil
	case string:
		t, err := parseTimestamp(x, loc)
		if err != nil {
			return time.Time{}, err
		}
		return t.In(loc), nil
	case []byte:
		t, err := parseTimestamp(string(x), loc)
		if err != nil {
			return time.Time{}, err
		}
		return t.In(loc), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported temporal input %T", v)
	}
}

func equalTime(a, b any) bool {
	ta, okA := a.(time.Time)
	tb, okB := b.(time.Time)
	if !okA || !okB {
		return equalComparable(a, b)
	}
	return ta.Equal(tb)
}

// dateType 仅日期，解码时截断时刻部分
type dateType struct{ loc *time.Location }

// NewDate 创建以 loc 解释日历字段的日期类型
func NewDate(loc *time.Location) DateTimeType {
	if loc == nil {
		loc = time.UTC
	}
	return dateType{loc: loc}
}

func (dateType) Name() string  { return "date" }
func (dateType) JdbcType() int { return TypeDate }

func (t dateType) Convert(v any) (any, error) {
	if IsNil(v) {
		return nil, nil
	}
	v = deref(v)
	if d, ok := v.(CivilDate); ok {
		return d, nil
	}
	tm, err := toTime(v, t.loc)
	if err != nil {
		return nil, conversionError(t, v, err)
	}
	return DateOf(tm), nil
}

func (t dateType) Parse(s string) (any, error) { return t.Convert(s) }

func (t dateType) Bind(v any) (any, error) {
	if IsNil(v) {
		return nil, nil
	}
	d, ok := v.(CivilDate)
	if !ok {
		return nil, conversionError(t, v, nil)
	}
	return d.String(), nil
}

func (dateType) Equal(a, b any) bool { return equalComparable(a, b) }

func (t dateType) ParseDateTime(epochMillis int64) any {
	return DateOf(time.UnixMilli(epochMillis).In(t.loc))
}

// timestampType 时间戳，原生值为 time.Time
type timestampType struct{ loc *time.Location }

// NewTimestamp 创建时间戳类型，解码结果位于 loc
func NewTimestamp(loc *time.Location) DateTimeType {
	if loc == nil {
		loc = time.UTC
	}
	return timestampType{loc: loc}
}

func (timestampType) Name() string  { return "timestamp" }
func (timestampType) JdbcType() int { return TypeTimestamp }

func (t timestampType) Convert(v any) (any, error) {
	if IsNil(v) {
		return nil, nil
	}
	tm, err := toTime(deref(v), t.loc)
	if err != nil {
		return nil, conversionError(t, v, err)
	}
	return tm, nil
}

func (t timestampType) Parse(s string) (any, error) { return t.Convert(s) }
func (timestampType) Bind(v any) (any, error)       { return v, nil }
func (timestampType) Equal(a, b any) bool           { return equalTime(a, b) }

func (t timestampType) ParseDateTime(epochMillis int64) any {
	return time.UnixMilli(epochMillis).In(t.loc)
}

// calendarType 带时区的日历时间，原生值为位于 loc 的 time.Time
type calendarType struct{ loc *time.Location }

// NewCalendar 创建带时区的日历时间类型
func NewCalendar(loc *time.Location) DateTimeType {
	if loc == nil {
		loc = time.UTC
	}
	return calendarType{loc: loc}
}

func (calendarType) Name() string  { return "calendar" }
func (calendarType) JdbcType() int { return TypeTimestampTZ }

func (t calendarType) Convert(v any) (any, error) {
	if IsNil(v) {
		return nil, nil
	}
	tm, err := toTime(deref(v), t.loc)
	if err != nil {
		return nil, conversionError(t, v, err)
	}
	return tm, nil
}

func (t calendarType) Parse(s string) (any, error) { return t.Convert(s) }
func (calendarType) Bind(v any) (any, error)       { return v, nil }
func (calendarType) Equal(a, b any) bool           { return equalTime(a, b) }

func (t calendarType) ParseDateTime(epochMillis int64) any {
	return time.UnixMilli(epochMillis).In(t.loc)
}

// timeOfDayType 一天中的时刻，原生值为 CivilTime
type timeOfDayType struct{ loc *time.Location }

// NewTimeOfDay 创建时刻类型，毫秒时间戳在 loc 中取时分秒
func NewTimeOfDay(loc *time.Location) DateTimeType {
	if loc == nil {
		loc = time.UTC
	}
	return timeOfDayType{loc: loc}
}

func (timeOfDayType) Name() string  { return "time" }
func (timeOfDayType) JdbcType() int { return TypeTime }

func (t timeOfDayType) Convert(v any) (any, error) {
	if IsNil(v) {
		return nil, nil
	}
	v = deref(v)
	switch x := v.(type) {
	case CivilTime:
		return x, nil
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range timeOfDayLayouts {
			if tm, err := time.ParseInLocation(layout, s, t.loc); err == nil {
				return TimeOf(tm), nil
			}
		}
	}
	tm, err := toTime(v, t.loc)
	if err != nil {
		return nil, conversionError(t, v, err)
	}
	return TimeOf(tm), nil
}

func (t timeOfDayType) Parse(s string) (any, error) { return t.Convert(s) }

func (t timeOfDayType) Bind(v any) (any, error) {
	if IsNil(v) {
		return nil, nil
	}
	ct, ok := v.(CivilTime)
	if !ok {
		return nil, conversionError(t, v, nil)
	}
	return ct.String(), nil
}

func (timeOfDayType) Equal(a, b any) bool { return equalComparable(a, b) }

func (t timeOfDayType) ParseDateTime(epochMillis int64) any {
	return TimeOf(time.UnixMilli(epochMillis).In(t.loc))
}
