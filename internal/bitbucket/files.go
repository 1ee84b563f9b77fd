package bitbucket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/pcf-tools/org-mgmt-server/internal/logger"
)

// FileLoader fetches raw files from org repositories and decodes them
// into structured values.
type FileLoader struct {
	exec        Executor
	projectsURL string
}

// NewFileLoader creates a FileLoader rooted at the given projects base
// URL.
func NewFileLoader(exec Executor, projectsURL string) *FileLoader {
	return &FileLoader{
		exec:        exec,
		projectsURL: projectsURL,
	}
}

// Load fetches <project>/repos/<slug>/raw/<path> and decodes it as YAML,
// or as JSON when asJSON is set. The decoded value must be a mapping or
// a sequence; scalars from empty or garbage files are rejected. Every
// failure mode, transport included, surfaces as *FileLoadError: the
// refresh pipeline only needs to know the file is unusable.
func (l *FileLoader) Load(ctx context.Context, project, slug, path string, asJSON bool) (any, error) {
	url := fmt.Sprintf("%s/%s/repos/%s/raw/%s", l.projectsURL, project, slug, path)
	logger.Debugf("Requesting file url %s", url)
	raw := l.fetch(ctx, url)

	var doc any
	var err error
	if asJSON {
		err = json.Unmarshal(raw, &doc)
	} else {
		err = yaml.Unmarshal(raw, &doc)
	}
	if err != nil {
		return nil, &FileLoadError{Project: project, Slug: slug, Path: path, Err: err}
	}

	switch doc.(type) {
	case map[string]any, []any:
		return doc, nil
	default:
		logger.Warnf("Dictionary load of file failed %s/%s/%s (json %v)", project, slug, path, asJSON)
		return nil, &FileLoadError{
			Project: project,
			Slug:    slug,
			Path:    path,
			Err:     fmt.Errorf("decoded value is not a mapping or sequence"),
		}
	}
}

// fetch retrieves the raw file bytes, swallowing transport errors. A
// failed fetch yields empty content, which then fails decoding above.
func (l *FileLoader) fetch(ctx context.Context, url string) []byte {
	body, err := l.exec.Get(ctx, url)
	if err != nil {
		var reqErr *RequestFailedError
		switch {
		case errors.Is(err, ErrAuthRetryExhausted):
			logger.Warn("Auth failure fetching Bitbucket file")
		case errors.As(err, &reqErr):
			logger.Warn("Request did not return 'ok'")
		default:
			logger.Errorf("Unknown error requesting Bitbucket file: %v", err)
		}
		return nil
	}
	return body
}
