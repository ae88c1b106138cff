package app

import (
	"fmt"
	"sort"
	"strings"

	"sigil/internal/logger"
)

// StartupSummary 在启动时把关键配置打成一屏，方便核对部署参数。
type StartupSummary struct {
	Profile  ProfileSummary
	Storage  StorageSummary
	Schedule ScheduleSummary
	Publish  PublishSummary
}

type ProfileSummary struct {
	Name    string
	Version int64
	Source  string
	Zones   []string
}

type StorageSummary struct {
	DecisionPath string
	JournalPath  string
}

type ScheduleSummary struct {
	RegimeToken int64
	Interval    string
	Offset      string
	MaxParallel int
}

type PublishSummary struct {
	Enabled bool
	Topic   string
	Brokers []string
}

// Print 把摘要整块走日志输出，落盘的日志文件里同样留一份。
func (s *StartupSummary) Print() {
	logger.InfoBlock(s.render())
}

func (s *StartupSummary) render() string {
	const title = "启动配置摘要 (STARTUP SUMMARY)"
	rule := strings.Repeat("=", 80)

	var b strings.Builder
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "%*s\n", 40+len(title)/2, title)
	fmt.Fprintln(&b, rule)

	fmt.Fprintln(&b, "[阈值档案 (THRESHOLD PROFILE)]")
	fmt.Fprintf(&b, "  档案: %s v%d (%s)\n", s.Profile.Name, s.Profile.Version, s.Profile.Source)
	fmt.Fprintf(&b, "  区间: %s\n", formatList(s.Profile.Zones))
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "[存储 (STORAGE)]")
	fmt.Fprintf(&b, "  判定存档: %s\n", s.Storage.DecisionPath)
	fmt.Fprintf(&b, "  行情流水账: %s\n", s.Storage.JournalPath)
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "[调度 (SCHEDULE)]")
	fmt.Fprintf(&b, "  状态标的: %d\n", s.Schedule.RegimeToken)
	fmt.Fprintf(&b, "  重算节奏: %s (+%s)\n", s.Schedule.Interval, s.Schedule.Offset)
	fmt.Fprintf(&b, "  批量并发: %d\n", s.Schedule.MaxParallel)
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "[外发 (PUBLISH)]")
	if !s.Publish.Enabled {
		fmt.Fprintln(&b, "  (未启用)")
	} else {
		fmt.Fprintf(&b, "  topic: %s\n", s.Publish.Topic)
		fmt.Fprintf(&b, "  brokers: %s\n", formatList(s.Publish.Brokers))
	}
	fmt.Fprintln(&b, rule)
	return b.String()
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	sorted := append([]string(nil), items...)
	sort.Strings(sorted)
	return strings.Join(sorted, ", ")
}
