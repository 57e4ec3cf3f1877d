package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"webinar-directory/internal/httpx"
)

// Fetcher retrieves the raw feed document. When bypass is true the fetch
// must not be served from any cache.
type Fetcher interface {
	Fetch(ctx context.Context, bypass bool) ([]byte, error)
}

// HTTPFetcher reads the feed over HTTP. A bypass fetch appends
// t=<unix-millis> to the query and sends Cache-Control: no-cache.
type HTTPFetcher struct {
	Client *httpx.Client
	URL    string
	Now    func() time.Time
}

func (f *HTTPFetcher) Fetch(ctx context.Context, bypass bool) ([]byte, error) {
	target := f.URL
	var header http.Header
	if bypass {
		u, err := url.Parse(f.URL)
		if err != nil {
			return nil, fmt.Errorf("feed: bad url %q: %w", f.URL, err)
		}
		now := time.Now
		if f.Now != nil {
			now = f.Now
		}
		q := u.Query()
		q.Set("t", strconv.FormatInt(now().UnixMilli(), 10))
		u.RawQuery = q.Encode()
		target = u.String()
		header = http.Header{"Cache-Control": []string{"no-cache"}}
	}

	client := f.Client
	if client == nil {
		client = httpx.New(0)
	}
	body, err := client.Get(ctx, target, header)
	if err != nil {
		return nil, fmt.Errorf("feed: fetch %s: %w", target, err)
	}
	return body, nil
}

// FileFetcher reads the feed from a local path. There is no cache to bypass.
type FileFetcher struct {
	Path string
}

func (f FileFetcher) Fetch(ctx context.Context, _ bool) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("feed: read %s: %w", f.Path, err)
	}
	return b, nil
}
