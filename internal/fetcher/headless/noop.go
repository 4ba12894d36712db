package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/scrapeforge/internal/scraper"
)

// ErrDisabled is returned by Noop.
var ErrDisabled = errors.New("headless fetcher not configured")

// Noop stands in for the browser fetcher when headless rendering is disabled.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always fails with ErrDisabled.
func (Noop) Fetch(context.Context, string) (scraper.Page, error) {
	return scraper.Page{}, ErrDisabled
}
