package livehttp

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sigil/internal/exit"
	"sigil/internal/facts"
	"sigil/internal/logger"
	"sigil/internal/profile"
	"sigil/internal/store"
	"sigil/internal/store/journal"

	"github.com/gin-gonic/gin"
)

// Router 暴露判定引擎相关的查询接口（评估/退出/事实表/持仓）。
type Router struct {
	Store    *store.Store
	Journal  *journal.Journal
	Facts    *facts.Store
	Regime   *facts.Classifier
	Profiles *profile.Registry
	Book     *exit.Book
}

// NewRouter 构造 live HTTP router，任一依赖可为 nil，对应接口返回 503。
func NewRouter(s *store.Store, j *journal.Journal, f *facts.Store, regime *facts.Classifier, profiles *profile.Registry, book *exit.Book) *Router {
	return &Router{Store: s, Journal: j, Facts: f, Regime: regime, Profiles: profiles, Book: book}
}

// Register 将 /api/live 路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/decisions", r.handleDecisions)
	group.GET("/decisions/:id", r.handleDecisionByID)
	group.GET("/exits", r.handleExits)
	group.GET("/summary", r.handleSummary)
	group.GET("/facts", r.handleFacts)
	group.GET("/regime", r.handleRegime)
	group.GET("/positions", r.handlePositions)
	group.GET("/profile", r.handleProfile)
	group.GET("/journal", r.handleJournal)
	group.GET("/charts/confidence", r.handleConfidenceChart)
}

func (r *Router) handleDecisions(c *gin.Context) {
	if r.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "判定存档未启用"})
		return
	}
	page, pageSize, offset := parsePagination(c)
	query := store.EvaluationQuery{
		Token:   parseInt64(c.Query("token")),
		Symbol:  c.Query("symbol"),
		Zone:    c.Query("zone"),
		Allowed: parseOptionalBool(c.Query("allowed")),
		SinceMs: parseInt64(c.Query("since")),
		UntilMs: parseInt64(c.Query("until")),
		Limit:   pageSize,
		Offset:  offset,
	}

	reqCtx := c.Request.Context()
	listCtx, cancel := context.WithTimeout(reqCtx, 2*time.Second)
	evals, err := r.Store.ListEvaluations(listCtx, query)
	cancel()
	if err != nil {
		logger.Errorf("[api] live decisions list failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Debugf("[api] live decisions ip=%s page=%d size=%d token=%d zone=%s returned=%d",
		c.ClientIP(), page, pageSize, query.Token, query.Zone, len(evals))
	c.JSON(http.StatusOK, gin.H{
		"evaluations": evals,
		"count":       len(evals),
		"page":        page,
		"page_size":   pageSize,
	})
}

func (r *Router) handleDecisionByID(c *gin.Context) {
	if r.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "判定存档未启用"})
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid eval id"})
		return
	}
	res, ok, err := r.Store.GetEvaluation(c.Request.Context(), id)
	if err != nil {
		logger.Errorf("[api] live decision detail failed ip=%s id=%s err=%v", c.ClientIP(), id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		logger.Warnf("[api] live decision detail not found ip=%s id=%s", c.ClientIP(), id)
		c.JSON(http.StatusNotFound, gin.H{"error": "evaluation not found"})
		return
	}
	logger.Debugf("[api] live decision detail ip=%s id=%s", c.ClientIP(), id)
	c.JSON(http.StatusOK, gin.H{"evaluation": res})
}

func (r *Router) handleExits(c *gin.Context) {
	if r.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "判定存档未启用"})
		return
	}
	page, pageSize, offset := parsePagination(c)
	query := store.ExitQuery{
		Token:    parseInt64(c.Query("token")),
		Symbol:   c.Query("symbol"),
		ExitType: c.Query("type"),
		Limit:    pageSize,
		Offset:   offset,
	}
	reqCtx := c.Request.Context()
	listCtx, cancel := context.WithTimeout(reqCtx, 2*time.Second)
	exits, err := r.Store.ListExits(listCtx, query)
	cancel()
	if err != nil {
		logger.Errorf("[api] live exits list failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"exits":     exits,
		"count":     len(exits),
		"page":      page,
		"page_size": pageSize,
	})
}

func (r *Router) handleSummary(c *gin.Context) {
	if r.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "判定存档未启用"})
		return
	}
	reqCtx := c.Request.Context()
	sumCtx, cancel := context.WithTimeout(reqCtx, 2*time.Second)
	sum, err := r.Store.Summarize(sumCtx)
	cancel()
	if err != nil {
		logger.Errorf("[api] live summary failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := gin.H{"store": sum}
	if r.Book != nil {
		resp["open_positions"] = r.Book.Len()
	}
	if r.Regime != nil {
		resp["regime"] = r.Regime.CurrentRegime()
	}
	if r.Journal != nil {
		jCtx, cancelJ := context.WithTimeout(reqCtx, 2*time.Second)
		if n, err := r.Journal.Count(jCtx); err == nil {
			resp["journal_events"] = n
		}
		cancelJ()
	}
	c.JSON(http.StatusOK, resp)
}

func (r *Router) handleFacts(c *gin.Context) {
	if r.Facts == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "事实表未启用"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"facts": r.Facts.Snapshot()})
}

func (r *Router) handleRegime(c *gin.Context) {
	if r.Regime == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "状态分类器未启用"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"regime": r.Regime.Snapshot()})
}

func (r *Router) handlePositions(c *gin.Context) {
	if r.Book == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "持仓簿未启用"})
		return
	}
	positions := r.Book.Snapshot()
	c.JSON(http.StatusOK, gin.H{"positions": positions, "count": len(positions)})
}

func (r *Router) handleProfile(c *gin.Context) {
	if r.Profiles == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "阈值档案未启用"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": r.Profiles.Snapshot()})
}

func (r *Router) handleJournal(c *gin.Context) {
	if r.Journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "行情流水账未启用"})
		return
	}
	kind := strings.TrimSpace(c.Query("kind"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	reqCtx := c.Request.Context()
	listCtx, cancel := context.WithTimeout(reqCtx, 2*time.Second)
	entries, err := r.Journal.Recent(listCtx, kind, limit)
	cancel()
	if err != nil {
		logger.Errorf("[api] live journal failed ip=%s kind=%s err=%v", c.ClientIP(), kind, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// parsePagination 支持 page/pageSize/page_size/limit/offset 多种写法，
// 页大小默认 100，封顶 500。
func parsePagination(c *gin.Context) (page, pageSize, offset int) {
	page, _ = strconv.Atoi(strings.TrimSpace(c.Query("page")))
	if page < 0 {
		page = 0
	}
	pageSize, _ = strconv.Atoi(c.DefaultQuery("pageSize", "0"))
	if pageSize <= 0 {
		pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "0"))
	}
	if pageSize <= 0 {
		pageSize, _ = strconv.Atoi(c.DefaultQuery("limit", "100"))
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	if pageSize > 500 {
		pageSize = 500
	}
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	if page > 0 {
		offset = (page - 1) * pageSize
	} else {
		page = offset/pageSize + 1
	}
	return page, pageSize, offset
}

func parseInt64(val string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
	if n < 0 {
		return 0
	}
	return n
}

// parseOptionalBool 把空串解析成 nil，避免把「未过滤」当成 false。
func parseOptionalBool(val string) *bool {
	s := strings.TrimSpace(strings.ToLower(val))
	switch s {
	case "1", "true", "yes":
		v := true
		return &v
	case "0", "false", "no":
		v := false
		return &v
	default:
		return nil
	}
}
