// Package linkpreview implements the detached worker that turns a
// freshly sent message's URLs into OpenGraph previews, broadcasting
// the result once fetching finishes.
package linkpreview

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/iohzrd/echora/internal/imageproxy"
	"github.com/iohzrd/echora/internal/logging"
	"github.com/iohzrd/echora/internal/state"
	"github.com/iohzrd/echora/internal/store"
)

var log = logging.New("linkpreview")

const (
	fetchTimeout  = 10 * time.Second
	maxBodyBytes  = 256 * 1024
	maxURLsPerMsg = 5
	descMaxChars  = 300
	// outboundRate caps how many link-preview fetches leave the
	// server per second, independent of how many messages arrive --
	// a burst of pasted links shouldn't turn into a request flood.
	outboundRate  = 10
	outboundBurst = 20
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

var errBodyTooLarge = &fetchError{"response exceeds link preview size cap"}

type fetchError struct{ msg string }

func (e *fetchError) Error() string { return e.msg }

type Worker struct {
	store      *store.Store
	hub        *state.Hub
	hmacSecret string
	client     *http.Client
	limiter    *rate.Limiter
}

func NewWorker(st *store.Store, hub *state.Hub, hmacSecret string) *Worker {
	return &Worker{
		store:      st,
		hub:        hub,
		hmacSecret: hmacSecret,
		limiter:    rate.NewLimiter(outboundRate, outboundBurst),
		client: &http.Client{
			Timeout: fetchTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Guard exposes the SSRF policy so the image proxy handler can reuse
// the exact same rules.
func (w *Worker) Guard(host string) error { return guardHost(host) }

// FetchAsync extracts URLs from content and fetches each concurrently
// in a detached goroutine -- the caller never waits on this.
func (w *Worker) FetchAsync(messageID, channelID uuid.UUID, content string) {
	go w.run(messageID, channelID, content)
}

func (w *Worker) run(messageID, channelID uuid.UUID, content string) {
	urls := extractURLs(content)
	if len(urls) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	results := make(chan *store.LinkPreview, len(urls))
	for _, u := range urls {
		go func(rawURL string) {
			lp, err := w.fetchOne(ctx, rawURL)
			if err != nil {
				log.Debug("link preview fetch skipped", "url", rawURL, "err", err)
				results <- nil
				return
			}
			results <- lp
		}(u)
	}

	var fresh []store.LinkPreview
	for range urls {
		lp := <-results
		if lp == nil {
			continue
		}
		id, err := w.store.UpsertLinkPreview(ctx, lp)
		if err != nil {
			log.Warn("upsert link preview", "err", err)
			continue
		}
		lp.ID = id
		if err := w.store.LinkPreviewToMessage(ctx, messageID, id); err != nil {
			log.Warn("link preview to message", "err", err)
			continue
		}
		fresh = append(fresh, *lp)
	}

	if len(fresh) > 0 {
		w.hub.BroadcastChannel(channelID, "link_preview_ready", map[string]any{
			"message_id": messageID,
			"previews":   fresh,
		})
	}
}

func extractURLs(content string) []string {
	matches := urlPattern.FindAllString(content, -1)
	seen := make(map[string]bool)
	var out []string
	for _, m := range matches {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
		if len(out) >= maxURLsPerMsg {
			break
		}
	}
	return out
}

func (w *Worker) fetchOne(ctx context.Context, rawURL string) (*store.LinkPreview, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, err
	}
	if err := guardHost(parsed.Hostname()); err != nil {
		return nil, err
	}
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "echora-linkpreview/1.0")
	req.Header.Set("Accept", "text/html,image/*")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, perr := strconv.ParseInt(cl, 10, 64); perr == nil && n > maxBodyBytes {
			return nil, errBodyTooLarge
		}
	}

	contentType := resp.Header.Get("Content-Type")
	body := io.LimitReader(resp.Body, maxBodyBytes)

	now := time.Now().Unix()
	var lp store.LinkPreview
	lp.URL = rawURL
	lp.FetchedAt = now

	switch {
	case strings.HasPrefix(contentType, "image/"):
		img := rawURL
		lp.ImageURL = &img
	case strings.Contains(contentType, "text/html") || strings.Contains(contentType, "application/xhtml"):
		if err := parseOpenGraph(body, rawURL, &lp); err != nil {
			return nil, err
		}
	default:
		return nil, nil
	}

	if lp.Title == nil && lp.Description == nil && lp.ImageURL == nil {
		return nil, nil
	}
	if lp.ImageURL != nil {
		signed := imageproxy.ProxyPath(w.hmacSecret, *lp.ImageURL)
		lp.ImageURL = &signed
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	lp.ID = id
	return &lp, nil
}

func parseOpenGraph(r io.Reader, baseURL string, lp *store.LinkPreview) error {
	base, _ := url.Parse(baseURL)
	tokenizer := html.NewTokenizer(r)

	var inTitle bool
	var titleText string
	var twitterTitle, twitterDesc, twitterImage string

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			finishOpenGraph(lp, titleText, twitterTitle, twitterDesc, twitterImage, base)
			return nil

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tokenizer.TagName()
			tag := string(name)
			if tag == "title" {
				inTitle = true
				continue
			}
			if tag == "body" {
				finishOpenGraph(lp, titleText, twitterTitle, twitterDesc, twitterImage, base)
				return nil
			}
			if tag == "meta" && hasAttr {
				parseMetaTag(tokenizer, lp, &twitterTitle, &twitterDesc, &twitterImage)
			}

		case html.TextToken:
			if inTitle {
				titleText += string(tokenizer.Text())
			}

		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if string(name) == "title" {
				inTitle = false
			}
		}
	}
}

func parseMetaTag(tokenizer *html.Tokenizer, lp *store.LinkPreview, twitterTitle, twitterDesc, twitterImage *string) {
	var property, name, content string
	for {
		key, val, more := tokenizer.TagAttr()
		switch string(key) {
		case "property":
			property = string(val)
		case "name":
			name = string(val)
		case "content":
			content = string(val)
		}
		if !more {
			break
		}
	}
	if content == "" {
		return
	}

	switch property {
	case "og:title":
		lp.Title = &content
	case "og:description":
		d := truncateDesc(content)
		lp.Description = &d
	case "og:image":
		lp.ImageURL = &content
	case "og:site_name":
		lp.SiteName = &content
	}
	switch name {
	case "twitter:title":
		*twitterTitle = content
	case "twitter:description":
		*twitterDesc = content
	case "twitter:image":
		*twitterImage = content
	case "description":
		if lp.Description == nil {
			d := truncateDesc(content)
			lp.Description = &d
		}
	}
}

func finishOpenGraph(lp *store.LinkPreview, titleText, twitterTitle, twitterDesc, twitterImage string, base *url.URL) {
	if lp.Title == nil {
		if twitterTitle != "" {
			lp.Title = &twitterTitle
		} else if titleText != "" {
			t := titleText
			lp.Title = &t
		}
	}
	if lp.Description == nil && twitterDesc != "" {
		d := truncateDesc(twitterDesc)
		lp.Description = &d
	}
	if lp.ImageURL == nil && twitterImage != "" {
		lp.ImageURL = &twitterImage
	}
	if lp.ImageURL != nil && base != nil {
		if resolved, err := base.Parse(*lp.ImageURL); err == nil {
			s := resolved.String()
			lp.ImageURL = &s
		}
	}
	if lp.SiteName == nil && base != nil {
		host := base.Hostname()
		lp.SiteName = &host
	}
}

func truncateDesc(s string) string {
	r := []rune(s)
	if len(r) <= descMaxChars {
		return s
	}
	return string(r[:descMaxChars]) + "..."
}
