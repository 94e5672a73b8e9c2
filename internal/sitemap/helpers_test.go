package sitemap_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pazars/grabeklis/internal/sitemap"
)

func errorsIsUnknown(err error) bool {
	return errors.Is(err, sitemap.ErrUnknownDocument)
}

type fakeSource struct {
	mu   sync.Mutex
	docs map[string]string
	hits []string
}

func (f *fakeSource) Get(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits = append(f.hits, url)
	body, ok := f.docs[url]
	if !ok {
		return nil, fmt.Errorf("status 404 for %s", url)
	}
	return []byte(body), nil
}
