package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const healthSnippetLimit = 80

// CheckHealth probes the image backend's samplers endpoint and returns
// whether it responded, plus a short human-readable detail.
func CheckHealth(ctx context.Context, baseURL string, timeout time.Duration) (bool, string) {
	url := strings.TrimRight(baseURL, "/") + "/sdapi/v1/samplers"

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, snippet(err.Error())
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false, snippet(err.Error())
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return false, snippet(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var samplers []any
	if err := json.Unmarshal(body, &samplers); err != nil {
		return false, snippet("unexpected response: " + strings.TrimSpace(string(body)))
	}

	return true, fmt.Sprintf("ok (%d samplers)", len(samplers))
}

func snippet(detail string) string {
	if len(detail) > healthSnippetLimit {
		return detail[:healthSnippetLimit] + "..."
	}

	return detail
}
