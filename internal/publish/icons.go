package publish

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pagebase/core/internal/cache"
	"github.com/pagebase/core/internal/model"
)

// iconTTL is long-lived relative to data/count TTLs since icon sets rarely
// change between publishes.
const iconTTL = 24 * time.Hour

const defaultIconCDN = "https://icons.pagebase.dev/svg"

const iconFetchParallelism = 10

// iconFetcher resolves icon names to inline SVG bodies with an L1
// in-process cache backed by the shared L2 external KV cache, per spec.md
// §4.F step 7.
type iconFetcher struct {
	l2     *cache.Cache
	client *http.Client

	mu sync.Mutex
	l1 map[string]string
}

func newIconFetcher(l2 *cache.Cache) *iconFetcher {
	return &iconFetcher{
		l2:     l2,
		client: &http.Client{Timeout: 10 * time.Second},
		l1:     map[string]string{},
	}
}

func iconCacheKey(name string) string { return "icon:" + name }

// fetchAll resolves every name in names to its SVG body, consulting L1 then
// L2 before batch-fetching the rest from the CDN concurrently.
func (f *iconFetcher) fetchAll(ctx context.Context, names []string, _ model.ProjectSettings) (map[string]string, error) {
	out := make(map[string]string, len(names))
	var missing []string

	f.mu.Lock()
	for _, name := range names {
		if svg, ok := f.l1[name]; ok {
			out[name] = svg
			continue
		}
		missing = append(missing, name)
	}
	f.mu.Unlock()

	var stillMissing []string
	for _, name := range missing {
		var svg string
		if f.l2.Get(ctx, iconCacheKey(name), &svg) {
			f.mu.Lock()
			f.l1[name] = svg
			f.mu.Unlock()
			out[name] = svg
			continue
		}
		stillMissing = append(stillMissing, name)
	}

	if len(stillMissing) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(iconFetchParallelism)
	var resMu sync.Mutex

	for _, name := range stillMissing {
		name := name
		g.Go(func() error {
			svg, err := f.fetchOne(gctx, name)
			if err != nil {
				// one icon's fetch failure never fails the publish
				return nil
			}
			f.mu.Lock()
			f.l1[name] = svg
			f.mu.Unlock()
			f.l2.Set(gctx, iconCacheKey(name), svg, iconTTL)

			resMu.Lock()
			out[name] = svg
			resMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

func (f *iconFetcher) fetchOne(ctx context.Context, name string) (string, error) {
	url := fmt.Sprintf("%s/%s.svg", defaultIconCDN, strings.TrimPrefix(name, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("icon %q: status %d", name, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// collectIconNames walks the transformed tree collecting every icon name
// referenced in props (the builder's "icon" prop key) or in a frontend
// filter's "icon" key.
func collectIconNames(components []model.PageComponent) []string {
	seen := map[string]bool{}
	var names []string
	var walk func(model.PageComponent)
	walk = func(c model.PageComponent) {
		if name, ok := c.Props["icon"].(string); ok && name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		if c.Binding != nil {
			if raw, ok := c.Binding["frontend_filters"].([]any); ok {
				for _, item := range raw {
					if fm, ok := item.(map[string]any); ok {
						if name, ok := fm["icon"].(string); ok && name != "" && !seen[name] {
							seen[name] = true
							names = append(names, name)
						}
					}
				}
			}
		}
		for _, child := range c.Children {
			walk(child)
		}
	}
	for _, c := range components {
		walk(c)
	}
	return names
}

// injectIcons writes iconSvg alongside the icon name into every component
// (and filter) that referenced one.
func injectIcons(components []model.PageComponent, icons map[string]string) []model.PageComponent {
	var walk func(c model.PageComponent) model.PageComponent
	walk = func(c model.PageComponent) model.PageComponent {
		if name, ok := c.Props["icon"].(string); ok {
			if svg, ok := icons[name]; ok {
				if c.Props == nil {
					c.Props = map[string]any{}
				}
				c.Props["iconSvg"] = svg
			}
		}
		if c.Binding != nil {
			if raw, ok := c.Binding["frontend_filters"].([]any); ok {
				for _, item := range raw {
					if fm, ok := item.(map[string]any); ok {
						if name, ok := fm["icon"].(string); ok {
							if svg, ok := icons[name]; ok {
								fm["iconSvg"] = svg
							}
						}
					}
				}
			}
		}
		for i, child := range c.Children {
			c.Children[i] = walk(child)
		}
		return c
	}
	for i, c := range components {
		components[i] = walk(c)
	}
	return components
}
