package likes

import (
	"context"
	"fmt"

	"webinar-directory/internal/domain"
	"webinar-directory/internal/httpx"
)

// HTTPPersister posts snapshots to the save-likes endpoint.
type HTTPPersister struct {
	Client *httpx.Client
	URL    string
}

type persistResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (p *HTTPPersister) Persist(ctx context.Context, doc domain.Document) error {
	client := p.Client
	if client == nil {
		client = httpx.New(0)
	}
	var resp persistResponse
	if err := client.PostJSON(ctx, p.URL, doc, &resp); err != nil {
		return fmt.Errorf("likes: persist: %w", err)
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "server did not confirm the save"
		}
		return fmt.Errorf("likes: persist: %s", msg)
	}
	return nil
}
