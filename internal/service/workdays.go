package service

import (
	"errors"
	"strings"
	"time"
)

// DateLayout 接口层统一的日期格式
const DateLayout = "2006-01-02"

var ErrInvalidDateFormat = errors.New("日期格式无效，应为 YYYY-MM-DD")

// dateOnly 截断为 UTC 零点
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// parseDate 解析 YYYY-MM-DD
func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, ErrInvalidDateFormat
	}
	return t, nil
}

// CountWorkingDays 统计 [start, end] 闭区间内周一至周五的天数，end 早于 start 时返回 0
func CountWorkingDays(start, end time.Time) int {
	start, end = dateOnly(start), dateOnly(end)
	if end.Before(start) {
		return 0
	}

	total := int(end.Sub(start).Hours()/24) + 1
	days := total / 7 * 5

	// 不足一周的余数逐日判断
	wd := start.Weekday()
	for i := 0; i < total%7; i++ {
		if wd != time.Saturday && wd != time.Sunday {
			days++
		}
		wd = (wd + 1) % 7
	}
	return days
}
