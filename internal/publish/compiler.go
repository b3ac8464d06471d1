// Package publish implements the Publish Compiler of spec.md §4.F: given a
// stored Page and the current set of active Datasources, it walks the
// component tree and produces a CompiledPage ready to hand to a Publish
// Strategy. Step 1 (load + detach) happens at the caller — by the time
// Compile runs, the page and datasources are already materialized plain
// Go values, so no database session is ever held across Compile's network
// calls (icon CDN fetch), satisfying the release-before-IO invariant.
package publish

import (
	"context"
	"time"

	"github.com/pagebase/core/internal/adapter"
	"github.com/pagebase/core/internal/cache"
	"github.com/pagebase/core/internal/model"
	"github.com/pagebase/core/internal/schema"
	"github.com/pagebase/core/internal/store"
	"github.com/pagebase/core/internal/validate"
)

// AdapterFactory resolves a datasource's live adapter for lazy schema
// discovery on a cache miss encountered mid-publish.
type AdapterFactory func(ctx context.Context, ds model.Datasource) (adapter.Adapter, error)

type Compiler struct {
	st       *store.Store
	schemas  *schema.Cache
	factory  AdapterFactory
	cache    *cache.Cache
	icons    *iconFetcher
	settings func() model.ProjectSettings
}

func New(st *store.Store, schemas *schema.Cache, factory AdapterFactory, c *cache.Cache, settings func() model.ProjectSettings) *Compiler {
	return &Compiler{
		st:       st,
		schemas:  schemas,
		factory:  factory,
		cache:    c,
		icons:    newIconFetcher(c),
		settings: settings,
	}
}

// Compile runs the full pipeline of spec.md §4.F steps 2-9 and returns the
// CompiledPage ready for a Publish Strategy.
func (c *Compiler) Compile(ctx context.Context, page model.Page, datasources []model.Datasource, components []model.PageComponent) (*model.CompiledPage, error) {
	byID := make(map[string]model.Datasource, len(datasources))
	for _, ds := range datasources {
		byID[ds.ID] = ds
	}
	var firstDatasourceID string
	if len(datasources) > 0 {
		firstDatasourceID = datasources[0].ID
	}

	transformed := make([]model.PageComponent, len(components))
	for i, comp := range components {
		out, err := c.transformComponent(ctx, comp, byID, firstDatasourceID)
		if err != nil {
			return nil, err
		}
		transformed[i] = out
	}

	iconNames := collectIconNames(transformed)
	icons, err := c.icons.fetchAll(ctx, iconNames, c.settings())
	if err != nil {
		// icon fetch failure degrades the bundle, never fails the publish
		icons = map[string]string{}
	}
	transformed = injectIcons(transformed, icons)

	cssBundle := buildCSSBundle(transformed)

	version, err := c.st.NextPublishVersion(page.ID)
	if err != nil {
		return nil, err
	}

	bundles := make([]model.DatasourceBundle, 0, len(datasources))
	for _, ds := range datasources {
		bundles = append(bundles, datasourceBundle(ds))
	}

	return &model.CompiledPage{
		ID:          page.ID,
		Slug:        page.Slug,
		Name:        page.Name,
		Title:       page.Title,
		Description: page.Description,
		LayoutData:  transformed,
		SEOData:     page.SEOData,
		Datasources: bundles,
		CSSBundle:   cssBundle,
		Version:     version,
		PublishedAt: time.Now().UTC().Format(time.RFC3339),
		IsPublic:    page.IsPublic,
		IsHomepage:  page.IsHomepage,
	}, nil
}

// transformComponent applies steps 2-6 to one component and recurses into
// children, then step 6's null scrub is applied once to the whole node at
// the end so it also scrubs anything steps 2-5 added.
func (c *Compiler) transformComponent(ctx context.Context, comp model.PageComponent, datasources map[string]model.Datasource, fallbackDatasourceID string) (model.PageComponent, error) {
	normalizeBinding(&comp, fallbackDatasourceID)
	mergeStyles(&comp)

	if err := validate.ComponentBinding(comp.Binding); err != nil {
		return comp, err
	}

	if comp.Binding != nil {
		dsID, _ := comp.Binding["datasource_id"].(string)
		if ds, ok := datasources[dsID]; ok {
			if err := c.enrichBinding(ctx, &comp, ds); err != nil {
				// per spec.md §7 SchemaLookupMiss: skip this component's
				// enrichment, the bundle stays valid but less enriched
				comp.Binding["_enrichment_skipped"] = true
			}
			if comp.Type == "Form" || comp.Type == "InfoList" {
				c.bakeSchema(&comp, ds)
			}
		}
	}

	for i, child := range comp.Children {
		out, err := c.transformComponent(ctx, child, datasources, fallbackDatasourceID)
		if err != nil {
			return comp, err
		}
		comp.Children[i] = out
	}

	scrubNulls(&comp)
	return comp, nil
}

func datasourceBundle(ds model.Datasource) model.DatasourceBundle {
	return model.DatasourceBundle{
		ID:        ds.ID,
		Kind:      ds.Kind,
		URL:       ds.RESTBaseURL,
		AnonKey:   ds.AnonKey,
		SecretEnv: secretEnvName(ds),
	}
}

// secretEnvName names the environment variable the edge resolves the
// service key from at render time; the key itself never travels in the
// bundle, per spec.md §9 "Secret handling".
func secretEnvName(ds model.Datasource) string {
	switch ds.Kind {
	case model.KindSupabase:
		return "SUPABASE_SERVICE_KEY_" + ds.ID
	case model.KindNeon:
		return "NEON_API_KEY_" + ds.ID
	default:
		return "DATASOURCE_SECRET_" + ds.ID
	}
}
