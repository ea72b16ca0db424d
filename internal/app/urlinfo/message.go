package urlinfo

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/dustin/go-humanize"
)

// URL is everything known about a generically processed URL when the reply is
// assembled. A failed fetch leaves Status zero and sets Err.
type URL struct {
	URL      string
	Body     []byte
	Header   http.Header
	Status   int
	Elapsed  time.Duration
	ShortURL string
	Err      error
}

// Short returns the short URL when one was produced, else the URL itself.
func (u URL) Short() string {
	if u.ShortURL != "" {
		return u.ShortURL
	}
	return u.URL
}

// Title extracts the page title from an HTML body, preferring <title> over
// og:title. Non-HTML bodies have no title.
func (u URL) Title() string {
	if len(u.Body) == 0 || !isHTML(u.Header) {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(u.Body))
	if err != nil {
		return ""
	}
	if title := collapse(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if og, ok := doc.Find("meta[property='og:title']").Attr("content"); ok {
		return collapse(og)
	}
	return ""
}

func isHTML(h http.Header) bool {
	ct := strings.ToLower(h.Get("Content-Type"))
	return ct == "" || strings.Contains(ct, "html")
}

// Handler turns a URL into the chat text that describes it.
type Handler interface {
	Handle(u URL) string
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(u URL) string

func (f HandlerFunc) Handle(u URL) string { return f(u) }

// DefaultPattern is the reply layout used when none is configured.
const DefaultPattern = "[ %url-short% ] %composed-title%"

// maxReplyRunes keeps replies within a single chat line.
const maxReplyRunes = 400

// DefaultHandler renders a placeholder pattern:
//
//	%url%                 original URL
//	%url-short%           short URL, or the original when there is none
//	%title%               page title
//	%composed-title%      title, or "<content-type> <size> (<status>)" without one
//	%http-status-code%    response status
//	%timing%              elapsed seconds, two decimals
//	%response-time%       elapsed milliseconds
//	%size%                body size, humanized
//	%header-<name>%       any response header, name in lower case
type DefaultHandler struct {
	Pattern string
}

// NewDefaultHandler returns a handler for pattern, or DefaultPattern when it is
// blank.
func NewDefaultHandler(pattern string) *DefaultHandler {
	if strings.TrimSpace(pattern) == "" {
		pattern = DefaultPattern
	}
	return &DefaultHandler{Pattern: pattern}
}

func (h *DefaultHandler) Handle(u URL) string {
	if u.Err != nil {
		return truncate(fmt.Sprintf("[ %s ] error: %v", u.Short(), u.Err))
	}

	pattern := h.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}

	title := u.Title()
	composed := title
	if composed == "" {
		composed = describe(u)
	}

	pairs := []string{
		"%url-short%", u.Short(),
		"%url%", u.URL,
		"%composed-title%", composed,
		"%title%", title,
		"%http-status-code%", strconv.Itoa(u.Status),
		"%timing%", strconv.FormatFloat(u.Elapsed.Seconds(), 'f', 2, 64),
		"%response-time%", strconv.FormatInt(u.Elapsed.Milliseconds(), 10),
		"%size%", humanize.Bytes(uint64(len(u.Body))),
	}
	for name, values := range u.Header {
		pairs = append(pairs, "%header-"+strings.ToLower(name)+"%", strings.Join(values, ", "))
	}

	out := strings.NewReplacer(pairs...).Replace(pattern)
	return truncate(collapse(dropUnknownHeaders(out)))
}

func describe(u URL) string {
	parts := make([]string, 0, 3)
	if ct := u.Header.Get("Content-Type"); ct != "" {
		if i := strings.IndexByte(ct, ';'); i >= 0 {
			ct = ct[:i]
		}
		parts = append(parts, strings.TrimSpace(ct))
	}
	if len(u.Body) > 0 {
		parts = append(parts, humanize.Bytes(uint64(len(u.Body))))
	}
	parts = append(parts, "("+strconv.Itoa(u.Status)+")")
	return strings.Join(parts, " ")
}

// dropUnknownHeaders blanks %header-*% placeholders the response did not have.
func dropUnknownHeaders(s string) string {
	for {
		start := strings.Index(s, "%header-")
		if start < 0 {
			return s
		}
		end := strings.IndexByte(s[start+1:], '%')
		if end < 0 {
			return s
		}
		s = s[:start] + s[start+end+2:]
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxReplyRunes {
		return s
	}
	r := []rune(s)
	return string(r[:maxReplyRunes-1]) + "…"
}
