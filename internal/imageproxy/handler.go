package imageproxy

import (
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iohzrd/echora/internal/apperror"
)

const maxImageSize = 10 * 1024 * 1024

// Guard is implemented by internal/linkpreview so both the preview
// fetcher and this proxy share one SSRF policy.
type Guard func(host string) error

type Handler struct {
	secret string
	guard  Guard
	client *http.Client
}

func NewHandler(secret string, guard Guard) *Handler {
	return &Handler{
		secret: secret,
		guard:  guard,
		client: &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Handle implements GET /api/proxy/image?url=<b64url>&sig=<hex>.
func (h *Handler) Handle(c echo.Context) error {
	encoded := c.QueryParam("url")
	sig := c.QueryParam("sig")
	if encoded == "" || sig == "" {
		return apperror.BadRequestf("url and sig are required")
	}

	imageURL, err := DecodeURL(encoded)
	if err != nil {
		return apperror.BadRequestf("invalid url encoding")
	}
	if !Verify(h.secret, imageURL, sig) {
		return apperror.Authenticationf("invalid signature")
	}

	parsed, err := url.Parse(imageURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return apperror.BadRequestf("invalid image url")
	}
	host := parsed.Hostname()
	if err := h.guard(host); err != nil {
		return apperror.BadRequestf("URL failed safety check: %v", err)
	}

	req, err := http.NewRequestWithContext(c.Request().Context(), http.MethodGet, imageURL, nil)
	if err != nil {
		return apperror.Internalf(err, "build request")
	}
	req.Header.Set("User-Agent", "echora-imageproxy/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return apperror.BadRequestf("failed to fetch image")
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return apperror.BadRequestf("remote resource is not an image")
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n > maxImageSize {
			return apperror.BadRequestf("image exceeds maximum size")
		}
	}

	c.Response().Header().Set("Cache-Control", "public, max-age=86400")
	c.Response().Header().Set("X-Content-Type-Options", "nosniff")
	c.Response().Header().Set("Content-Type", contentType)
	c.Response().WriteHeader(http.StatusOK)

	_, err = io.Copy(c.Response(), io.LimitReader(resp.Body, maxImageSize))
	return err
}
