//go:build rod_search

package search

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/autoresearch/orchestrator-core/core"
)

// RodBackend runs a headless browser to drive a configured search engine
// URL template and scrape a results page. Grounded on the pack's
// rod-builder scraper template (launcher.New().Headless(...), a
// context-scoped page, WaitLoad, then Elements(selector) extraction).
// Guarded by a build tag because it needs a real Chrome/Chromium binary
// on the host, mirroring the codenerd pack's own tagged-build pattern
// for its vector-search backend.
type RodBackend struct {
	name string

	// URLTemplate must contain exactly one %s, substituted with the
	// URL-escaped canonical query.
	URLTemplate string
	// ResultSelector is the CSS selector matching one result container
	// per hit on the rendered results page.
	ResultSelector string
	// TitleSelector and SnippetSelector are relative selectors evaluated
	// within each ResultSelector match.
	TitleSelector   string
	SnippetSelector string
	// LinkAttr is the attribute (usually "href") holding the result URL
	// on the element matched by TitleSelector.
	LinkAttr string

	Timeout  time.Duration
	Headless bool
}

// NewRodBackend returns a RodBackend named name, driving urlTemplate.
func NewRodBackend(name, urlTemplate string) *RodBackend {
	return &RodBackend{
		name:            name,
		URLTemplate:     urlTemplate,
		ResultSelector:  "div.result",
		TitleSelector:   "a.result-title",
		SnippetSelector: "div.result-snippet",
		LinkAttr:        "href",
		Timeout:         30 * time.Second,
		Headless:        true,
	}
}

// Search launches a headless browser, navigates to the
// rendered search URL for canonicalQuery, and scrapes up to topK result
// elements. Each call gets its own page and browser instance — simple
// and correct, at the cost of per-call launch latency; a connection-pool
// variant is a reasonable future optimization but is not required by any
// current caller.
func (b *RodBackend) Search(ctx context.Context, canonicalQuery string, topK int) ([]RawResult, error) {
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	l := launcher.New().Headless(b.Headless)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, core.NewError("search.RodBackend.Search", core.KindTransient, err).WithMessage("launch browser")
	}
	defer l.Cleanup()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, core.NewError("search.RodBackend.Search", core.KindTransient, err).WithMessage("connect browser")
	}
	defer browser.Close()

	target := fmt.Sprintf(b.URLTemplate, canonicalQuery)
	page, err := browser.Page(rod.PageInfo{URL: target})
	if err != nil {
		return nil, core.NewError("search.RodBackend.Search", core.KindTransient, err).WithMessage("open page")
	}
	defer page.Close()

	if err := page.WaitLoad(); err != nil {
		return nil, core.NewError("search.RodBackend.Search", core.KindTransient, err).WithMessage("wait load")
	}

	elements, err := page.Elements(b.ResultSelector)
	if err != nil {
		return nil, core.NewError("search.RodBackend.Search", core.KindTransient, err).WithMessage("find results")
	}

	var out []RawResult
	for _, el := range elements {
		if topK > 0 && len(out) >= topK {
			break
		}

		var url, title, snippet string
		if titleEl, err := el.Element(b.TitleSelector); err == nil && titleEl != nil {
			title = titleEl.MustText()
			if attr, err := titleEl.Attribute(b.LinkAttr); err == nil && attr != nil {
				url = *attr
			}
		}
		if snippetEl, err := el.Element(b.SnippetSelector); err == nil && snippetEl != nil {
			snippet = snippetEl.MustText()
		}
		if url == "" {
			continue
		}

		out = append(out, RawResult{
			URL:     url,
			Title:   title,
			Snippet: snippet,
			Meta:    map[string]string{"backend": b.name},
		})
	}

	return out, nil
}

// Name implements Backend.
func (b *RodBackend) Name() string { return b.name }
