package ticker

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// 1-5 位字母，可带一位 ".X" / "-X" 股份类别后缀，例如 BRK.B
var symbolPattern = regexp.MustCompile(`^[A-Z]{1,5}([.-][A-Z])?$`)

// ErrInvalid 代码格式不合法
var ErrInvalid = errors.New("invalid ticker symbol")

// Normalize 去掉空白、前导 $，并转为大写
func Normalize(symbol string) string {
	s := strings.TrimSpace(symbol)
	s = strings.TrimPrefix(s, "$")
	return strings.ToUpper(s)
}

// Valid 判断是否为合法的股票代码（需先 Normalize）
func Valid(symbol string) bool {
	return symbolPattern.MatchString(symbol)
}

// DefaultAliases 常见代码对应的公司名，标题里往往只写公司名不写代码
var DefaultAliases = map[string][]string{
	"AAPL":  {"Apple"},
	"MSFT":  {"Microsoft"},
	"GOOGL": {"Alphabet", "Google"},
	"GOOG":  {"Alphabet", "Google"},
	"AMZN":  {"Amazon"},
	"META":  {"Meta Platforms", "Facebook"},
	"NVDA":  {"Nvidia"},
	"TSLA":  {"Tesla"},
	"NFLX":  {"Netflix"},
	"AMD":   {"Advanced Micro Devices"},
	"INTC":  {"Intel"},
	"JPM":   {"JPMorgan"},
	"DIS":   {"Disney"},
	"BA":    {"Boeing"},
	"KO":    {"Coca-Cola"},
}

// Matcher 统计文本中某个代码被提及的次数：代码本身（整词）、$代码，以及公司别名
type Matcher struct {
	symbol   string
	patterns []*regexp.Regexp
}

// NewMatcher 构造匹配器；aliases 为 nil 时使用 DefaultAliases
func NewMatcher(symbol string, aliases map[string][]string) *Matcher {
	symbol = Normalize(symbol)
	if aliases == nil {
		aliases = DefaultAliases
	}

	m := &Matcher{symbol: symbol}
	// 代码本身区分大小写（避免 ALL、ON 之类误伤），公司名不区分
	m.patterns = append(m.patterns, termPattern(symbol, false))
	for _, a := range aliases[symbol] {
		a = strings.TrimSpace(a)
		if a != "" {
			m.patterns = append(m.patterns, termPattern(a, true))
		}
	}
	return m
}

func termPattern(term string, fold bool) *regexp.Regexp {
	prefix := `\$?`
	// 单字母代码（如 F、T）只认 $ 前缀
	if !fold && len([]rune(term)) == 1 {
		prefix = `\$`
	}
	expr := `(^|[^\p{L}\p{N}])` + prefix + regexp.QuoteMeta(term) + `($|[^\p{L}\p{N}])`
	if fold {
		expr = `(?i)` + expr
	}
	return regexp.MustCompile(expr)
}

// Symbol 返回规范化后的代码
func (m *Matcher) Symbol() string {
	return m.symbol
}

// Count 返回提及次数
func (m *Matcher) Count(text string) int {
	if text == "" {
		return 0
	}
	n := 0
	for _, p := range m.patterns {
		n += countNonOverlapping(p, text)
	}
	return n
}

// FirstIndex 返回第一次提及的字节偏移，未提及返回 -1
func (m *Matcher) FirstIndex(text string) int {
	first := -1
	for _, p := range m.patterns {
		loc := p.FindStringIndex(text)
		if loc == nil {
			continue
		}
		// 去掉前面的分隔字符
		start := loc[0]
		for start < loc[1] {
			r, size := utf8.DecodeRuneInString(text[start:])
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '$' {
				break
			}
			start += size
		}
		if first == -1 || start < first {
			first = start
		}
	}
	return first
}

// Mentions 是否至少提及一次
func (m *Matcher) Mentions(text string) bool {
	return m.FirstIndex(text) >= 0
}

// 边界字符会被上一次匹配吃掉，需要手动从匹配末尾的前一个字符继续
func countNonOverlapping(p *regexp.Regexp, text string) int {
	n := 0
	for offset := 0; offset < len(text); {
		loc := p.FindStringIndex(text[offset:])
		if loc == nil {
			break
		}
		n++
		next := offset + loc[1]
		if loc[1] > loc[0] && next > offset+1 {
			next--
		}
		if next <= offset {
			next = offset + 1
		}
		offset = next
	}
	return n
}
