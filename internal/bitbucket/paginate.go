package bitbucket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pcf-tools/org-mgmt-server/internal/logger"
)

// page mirrors the Bitbucket paged-response envelope. NextPageStart is
// a pointer so an absent key is distinguishable from a literal 0.
type page struct {
	IsLastPage    bool              `json:"isLastPage"`
	NextPageStart *int              `json:"nextPageStart"`
	Values        []json.RawMessage `json:"values"`
}

// Paginator drives the Executor against paged REST resources and
// aggregates the results. It is best-effort by design: listing failures
// degrade to an empty result and are never raised to the caller.
type Paginator struct {
	exec    Executor
	restURL string
}

// NewPaginator creates a Paginator rooted at the given REST base URL.
func NewPaginator(exec Executor, restURL string) *Paginator {
	return &Paginator{
		exec:    exec,
		restURL: strings.TrimSuffix(restURL, "/"),
	}
}

// FetchAll walks every page of the given resource, concatenating the
// `values` arrays in page order. Any failure is logged and yields an
// empty result.
func (p *Paginator) FetchAll(ctx context.Context, resource string) []json.RawMessage {
	baseURL := fmt.Sprintf("%s/%s", p.restURL, strings.TrimPrefix(resource, "/"))

	var values []json.RawMessage
	start := 0
	for {
		url := fmt.Sprintf("%s?start=%d", baseURL, start)
		logger.Debugf("[BB] get: %s", url)

		body, err := p.exec.Get(ctx, url)
		if err != nil {
			logListingError(err)
			return nil
		}

		var current page
		if err := json.Unmarshal(body, &current); err != nil {
			logger.Errorf("Unknown error from Bitbucket REST request: %v", err)
			return nil
		}
		values = append(values, current.Values...)
		if current.IsLastPage {
			return values
		}
		// A non-last page must advance the offset; anything else is a
		// malformed envelope and would refetch the same page forever.
		if current.NextPageStart == nil || *current.NextPageStart <= start {
			logger.Warnf("Malformed page envelope for %s: isLastPage=false without advancing nextPageStart", baseURL)
			return nil
		}
		start = *current.NextPageStart
	}
}

func logListingError(err error) {
	var reqErr *RequestFailedError
	switch {
	case errors.Is(err, ErrAuthRetryExhausted):
		logger.Warn("Auth failure accessing Bitbucket REST")
	case errors.As(err, &reqErr):
		logger.Warn("Request did not return 'ok'")
	default:
		logger.Errorf("Unknown error from Bitbucket REST request: %v", err)
	}
}
