package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/LJTian/TickerNews/internal/collector"
	"github.com/LJTian/TickerNews/internal/logger"
)

const (
	defaultMaxChars = 2000
	maxMaxChars     = 8000
	extractTimeout  = 20 * time.Second
)

// pageText 渲染页面并返回正文文本
type pageText func(ctx context.Context, pageURL string) (string, error)

// headless 浏览器正文提取服务，collector.Enricher 在 readability 失败时调用
func main() {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()

	// 整个进程复用一个 headless 实例，每个请求一个 tab
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	if err := chromedp.Run(browserCtx); err != nil {
		logger.Log.Warnf("start headless browser: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/extract", &extractServer{text: chromeText(browserCtx), timeout: extractTimeout})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	addr := ":" + os.Getenv("PORT")
	if addr == ":" {
		addr = ":4000"
	}
	logger.Log.Infof("browser-scraper listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Log.Fatalf("browser-scraper stopped: %v", err)
	}
}

func chromeText(browserCtx context.Context) pageText {
	return func(ctx context.Context, pageURL string) (string, error) {
		tabCtx, cancelTab := chromedp.NewContext(browserCtx)
		defer cancelTab()
		// 请求方断开或超时都要终止页面加载
		stop := context.AfterFunc(ctx, cancelTab)
		defer stop()

		var text string
		err := chromedp.Run(tabCtx,
			chromedp.Navigate(pageURL),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.Evaluate(articleJS, &text),
		)
		return text, err
	}
}

type extractServer struct {
	text    pageText
	timeout time.Duration
}

func (s *extractServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		respond(w, http.StatusMethodNotAllowed, collector.ExtractResponse{Error: "POST only"})
		return
	}

	var req collector.ExtractRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 8<<10)).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, collector.ExtractResponse{Error: "invalid json"})
		return
	}
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		respond(w, http.StatusBadRequest, collector.ExtractResponse{Error: "an http(s) url is required"})
		return
	}
	limit := req.MaxChars
	if limit <= 0 || limit > maxMaxChars {
		limit = defaultMaxChars
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	started := time.Now()
	raw, err := s.text(ctx, req.URL)
	if err != nil {
		logger.Log.Warnf("extract %s: %v", req.URL, err)
		// 提取失败仍返回 200，由调用方根据 ok 字段判断
		respond(w, http.StatusOK, collector.ExtractResponse{Error: err.Error()})
		return
	}

	text := tidy(raw)
	if text == "" {
		respond(w, http.StatusOK, collector.ExtractResponse{Error: "empty content"})
		return
	}
	if rs := []rune(text); len(rs) > limit {
		text = string(rs[:limit]) + "…"
	}
	logger.Log.Debugf("extracted %d chars from %s in %s", len([]rune(text)), req.URL, time.Since(started).Round(time.Millisecond))
	respond(w, http.StatusOK, collector.ExtractResponse{OK: true, Text: text})
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Log.Debugf("write response: %v", err)
	}
}

// articleJS 先在新闻站常见的正文容器里取文本，取不到再拼接页面中较长的段落
const articleJS = `(function () {
  var selectors = [
    "article",
    "div.caas-body",
    "div.article__body",
    "div[data-test-id='article-content']",
    "div.article-body",
    "main"
  ];
  var text = "";
  for (var i = 0; i < selectors.length; i++) {
    var el = document.querySelector(selectors[i]);
    text = el ? (el.innerText || "").trim() : "";
    if (text.length > 200) break;
  }
  if (text.length < 200) {
    var pieces = [];
    var nodes = document.querySelectorAll("p");
    for (var j = 0; j < nodes.length; j++) {
      var t = (nodes[j].innerText || "").trim();
      if (t.length >= 40) pieces.push(t);
      if (pieces.join("\n\n").length > 4000) break;
    }
    text = pieces.join("\n\n");
  }
  return text.trim();
})();`

// tidy 统一换行、去掉行尾空白并把多个空行压成一个
func tidy(s string) string {
	s = strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(s)
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		l = strings.TrimRight(l, " \t")
		if l == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
