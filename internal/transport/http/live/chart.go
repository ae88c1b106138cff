package livehttp

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"sigil/internal/guard"
	"sigil/internal/logger"
	"sigil/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	talib "github.com/markcheno/go-talib"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorAllowed       = "#34d399"
	colorBlocked       = "#f87171"
	colorConfidence    = "#3b82f6"
	colorSmoothed      = "#fbbf24"
	colorEliteFloor    = "#f472b6"

	chartWidthPx      = 1600
	timelineHeightPx  = 600
	zoneScoreHeightPx = 260

	smoothPeriod = 10
)

// handleConfidenceChart 把最近的评估画成信心分时间线，直接返回 HTML 页面。
func (r *Router) handleConfidenceChart(c *gin.Context) {
	if r.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "判定存档未启用"})
		return
	}
	_, pageSize, _ := parsePagination(c)
	query := store.EvaluationQuery{
		Token:  parseInt64(c.Query("token")),
		Symbol: c.Query("symbol"),
		Zone:   c.Query("zone"),
		Limit:  pageSize,
	}
	listCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	evals, err := r.Store.ListEvaluations(listCtx, query)
	cancel()
	if err != nil {
		logger.Errorf("[api] confidence chart query failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(evals) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "暂无评估记录"})
		return
	}

	eliteFloor := 0.0
	if r.Profiles != nil {
		eliteFloor = r.Profiles.Current().Confidence.EliteThreshold
	}
	html, err := buildConfidenceHTML(evals, query.Symbol, eliteFloor)
	if err != nil {
		logger.Errorf("[api] confidence chart render failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

// buildConfidenceHTML 组装时间线页面：上半是信心分与平滑线，
// 下半是按放行结果着色的区间分柱状图。入参按时间倒序，先翻正。
func buildConfidenceHTML(evals []guard.Result, symbol string, eliteFloor float64) ([]byte, error) {
	ordered := make([]guard.Result, len(evals))
	for i, res := range evals {
		ordered[len(evals)-1-i] = res
	}

	xAxis := make([]string, len(ordered))
	confidence := make([]float64, len(ordered))
	for i, res := range ordered {
		xAxis[i] = res.EvaluatedAt.UTC().Format("01-02 15:04:05")
		confidence[i] = res.ConfidenceScore
	}

	title := "Confidence Timeline"
	if s := strings.TrimSpace(symbol); s != "" {
		title = fmt.Sprintf("Confidence Timeline %s", strings.ToUpper(s))
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", timelineHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         title,
			Subtitle:      fmt.Sprintf("evaluations=%d elite_floor=%.0f", len(ordered), eliteFloor),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Min:       0,
			Max:       100,
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	line.SetSeriesOptions(
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("Confidence", toLineData(confidence), charts.WithLineStyleOpts(opts.LineStyle{Color: colorConfidence, Width: 2}))
	if smoothed := smoothSeries(confidence, smoothPeriod); smoothed != nil {
		line.AddSeries("Smoothed", toLineData(smoothed), charts.WithLineStyleOpts(opts.LineStyle{Color: colorSmoothed, Width: 2}))
	}
	if eliteFloor > 0 {
		floor := make([]float64, len(ordered))
		for i := range floor {
			floor[i] = eliteFloor
		}
		line.AddSeries("Elite Floor", toLineData(floor), charts.WithLineStyleOpts(opts.LineStyle{Color: colorEliteFloor, Width: 1}))
	}

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(line, buildZoneScoreChart(xAxis, ordered))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// buildZoneScoreChart 画每次评估的区间综合分，放行为绿，拦截为红。
func buildZoneScoreChart(xAxis []string, ordered []guard.Result) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", zoneScoreHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{Title: "Zone Score", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			SplitNumber: 6,
			AxisLabel:   &opts.AxisLabel{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Min:       0,
			Max:       100,
			AxisLabel: &opts.AxisLabel{Show: opts.Bool(true), Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	scores := make([]opts.BarData, len(ordered))
	for i, res := range ordered {
		color := colorBlocked
		if res.Allowed {
			color = colorAllowed
		}
		scores[i] = opts.BarData{
			Value: round(res.Score, 2),
			ItemStyle: &opts.ItemStyle{
				Color:   color,
				Opacity: opts.Float(0.6),
			},
		}
	}
	bar.SetXAxis(xAxis)
	bar.AddSeries("Zone Score", scores)
	return bar
}

// smoothSeries 用 EMA 平滑，预热段置 NaN 避免画出零值。
// 样本不足一个周期时不平滑。
func smoothSeries(vals []float64, period int) []float64 {
	if period <= 1 || len(vals) < period {
		return nil
	}
	out := talib.Ema(vals, period)
	for i := 0; i < period-1 && i < len(out); i++ {
		out[i] = math.NaN()
	}
	return out
}

func toLineData(series []float64) []opts.LineData {
	line := make([]opts.LineData, len(series))
	for i, val := range series {
		if math.IsNaN(val) {
			line[i] = opts.LineData{Value: nil}
			continue
		}
		line[i] = opts.LineData{Value: round(val, 2)}
	}
	return line
}

func round(val float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(val)
	}
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}
