package ingest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/AngelCh415/coursepulse/internal/utils"
)

// DefaultBackoff gives three attempts: 100ms, then 200ms, each plus up to
// 150ms of jitter.
var DefaultBackoff = utils.NewBackoff(100*time.Millisecond, 2).WithJitter(150 * time.Millisecond)

// GetJSONWithRetry decodes a JSON GET into dst, retrying transport errors and
// retryable statuses. Client errors fail at once.
func GetJSONWithRetry(ctx context.Context, c HTTPClient, b utils.Backoff, url string, header http.Header, dst any) error {
	return b.Do(ctx, func(int) error {
		err := getJSON(ctx, c, url, header, dst)
		var se *StatusError
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrEmptyURL):
			return utils.Permanent(err)
		case errors.As(err, &se) && !se.Retryable():
			return utils.Permanent(err)
		}
		return err
	})
}
