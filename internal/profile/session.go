package profile

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parseClock 把 "HH:MM" 解析为当日分钟数。
func parseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("期望 HH:MM，收到 %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("小时非法: %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("分钟非法: %q", s)
	}
	return hour*60 + minute, nil
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// Contains 判断时刻是否落在交易时段内（含开收盘边界）。
// 窗口配置无法解析时返回 false，由守卫按缺数据处理。
func (w SessionWindow) Contains(t time.Time) bool {
	open, err := parseClock(w.Open)
	if err != nil {
		return false
	}
	closeAt, err := parseClock(w.Close)
	if err != nil {
		return false
	}
	m := minuteOfDay(t)
	return m >= open && m <= closeAt
}

// NearOpen 判断时刻是否处于开盘回避窗口内。
func (w SessionWindow) NearOpen(t time.Time) bool {
	open, err := parseClock(w.Open)
	if err != nil {
		return false
	}
	m := minuteOfDay(t)
	return m >= open && m < open+w.AvoidOpenMinutes
}

// NearClose 判断时刻是否处于收盘回避窗口内。
func (w SessionWindow) NearClose(t time.Time) bool {
	closeAt, err := parseClock(w.Close)
	if err != nil {
		return false
	}
	m := minuteOfDay(t)
	return m > closeAt-w.AvoidCloseMinutes && m <= closeAt
}
