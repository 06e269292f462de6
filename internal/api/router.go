package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/LJTian/TickerNews/internal/collector"
	"github.com/LJTian/TickerNews/internal/logger"
	"github.com/LJTian/TickerNews/internal/pipeline"
	"github.com/LJTian/TickerNews/internal/storage"
	"github.com/LJTian/TickerNews/internal/summarizer"
	"github.com/LJTian/TickerNews/internal/ticker"
)

// NewsService 由 *pipeline.Service 实现
type NewsService interface {
	Curated(ctx context.Context, q pipeline.Query) (*pipeline.CuratedResult, error)
	Summarize(ctx context.Context, q pipeline.Query) (*summarizer.Summary, *pipeline.CuratedResult, error)
}

type Server struct {
	news      NewsService
	watchlist storage.Watchlist
}

func NewServer(news NewsService, watchlist storage.Watchlist) *Server {
	return &Server{news: news, watchlist: watchlist}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/news", s.listNews)
		v1.GET("/summary", s.summary)
		v1.GET("/watchlist", s.listWatchlist)
		v1.POST("/watchlist", s.addWatchlist)
		v1.DELETE("/watchlist/:symbol", s.removeWatchlist)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func parseQuery(c *gin.Context) (pipeline.Query, bool) {
	tf, err := collector.ParseTimeframe(c.Query("timeframe"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "invalid_timeframe",
			"message": err.Error(),
		})
		return pipeline.Query{}, false
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(pipeline.DefaultLimit)))
	if err != nil || limit <= 0 {
		limit = pipeline.DefaultLimit
	}
	if limit > 50 {
		limit = 50
	}
	return pipeline.Query{Ticker: c.Query("ticker"), Timeframe: tf, Limit: limit}, true
}

func (s *Server) listNews(c *gin.Context) {
	q, ok := parseQuery(c)
	if !ok {
		return
	}

	res, err := s.news.Curated(c.Request.Context(), q)
	if err != nil {
		writeError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    res,
	})
}

// summary 摘要失败时返回 502，并在 data 中附带精选列表作为降级结果
func (s *Server) summary(c *gin.Context) {
	q, ok := parseQuery(c)
	if !ok {
		return
	}

	sum, res, err := s.news.Summarize(c.Request.Context(), q)
	if err != nil {
		writeError(c, err, res)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data": gin.H{
			"summary":  sum,
			"articles": res.Articles,
		},
	})
}

func writeError(c *gin.Context, err error, fallback *pipeline.CuratedResult) {
	switch {
	case errors.Is(err, ticker.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"code": "invalid_ticker", "message": err.Error()})
	case errors.Is(err, pipeline.ErrNoArticlesFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "no_articles", "message": err.Error()})
	case errors.Is(err, summarizer.ErrSummarizationFailed):
		logger.Log.Warnf("summary request failed: %v", err)
		body := gin.H{"code": "summarization_failed", "message": "summarization service unavailable"}
		if fallback != nil {
			body["data"] = fallback
		}
		c.JSON(http.StatusBadGateway, body)
	default:
		logger.Log.Errorf("request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "internal_error", "message": "internal server error"})
	}
}

func (s *Server) listWatchlist(c *gin.Context) {
	list, err := s.watchlist.List(c.Request.Context())
	if err != nil {
		writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": "ok", "message": "success", "data": list})
}

type watchlistRequest struct {
	Symbol string `json:"symbol" binding:"required"`
}

func (s *Server) addWatchlist(c *gin.Context) {
	var req watchlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "bad_request", "message": "symbol is required"})
		return
	}
	sym, err := s.watchlist.Add(c.Request.Context(), req.Symbol)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": "ok", "message": "success", "data": gin.H{"symbol": sym}})
}

func (s *Server) removeWatchlist(c *gin.Context) {
	sym, err := s.watchlist.Remove(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": "ok", "message": "success", "data": gin.H{"symbol": sym}})
}

// BasicAuth 为整个站点加一个简单的访问密码，/health 不做认证
func BasicAuth(user, pass string) gin.HandlerFunc {
	const realm = "Restricted"
	uBytes := []byte(user)
	pBytes := []byte(pass)

	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		u, p, ok := c.Request.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), uBytes) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), pBytes) != 1 {
			c.Header("WWW-Authenticate", `Basic realm="`+realm+`"`)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}
