// Package export renders a project's results as a JSON document and archives
// it to blob storage under a content-addressed name.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/JakeFAU/scrapeforge/internal/scraper"
)

// ContentType is the media type of export documents.
const ContentType = "application/json"

// Source is the read side of the result store the exporter needs.
type Source interface {
	ListResults(ctx context.Context, projectID string, filter scraper.ResultFilter) ([]scraper.ScrapingResult, error)
	GetStats(ctx context.Context, projectID string) (scraper.Stats, error)
}

// Document is the exported payload.
type Document struct {
	ProjectID  string                   `json:"project_id"`
	ExportedAt time.Time                `json:"exported_at"`
	Stats      scraper.Stats            `json:"stats"`
	Results    []scraper.ScrapingResult `json:"results"`
}

// Archive describes an export written to blob storage.
type Archive struct {
	URI    string `json:"uri"`
	Path   string `json:"path"`
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// Config tunes the object layout.
type Config struct {
	// Prefix is prepended to "exports/<project>/<digest>.json".
	Prefix string
}

// Exporter builds and archives export documents.
type Exporter struct {
	source Source
	blob   scraper.BlobStore
	hasher scraper.Hasher
	clock  scraper.Clock
	prefix string
}

// New wires an Exporter. blob may be nil when only downloads are served.
func New(source Source, blob scraper.BlobStore, hasher scraper.Hasher, clock scraper.Clock, cfg Config) *Exporter {
	return &Exporter{
		source: source,
		blob:   blob,
		hasher: hasher,
		clock:  clock,
		prefix: cfg.Prefix,
	}
}

// Build collects the results and stats of a project into a Document.
func (e *Exporter) Build(ctx context.Context, projectID string) (Document, error) {
	results, err := e.source.ListResults(ctx, projectID, scraper.ResultFilter{})
	if err != nil {
		return Document{}, fmt.Errorf("list results: %w", err)
	}
	stats, err := e.source.GetStats(ctx, projectID)
	if err != nil {
		return Document{}, fmt.Errorf("get stats: %w", err)
	}
	return Document{
		ProjectID:  projectID,
		ExportedAt: e.clock.Now(),
		Stats:      stats,
		Results:    results,
	}, nil
}

// Encode renders a Document as indented JSON.
func Encode(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return buf.Bytes(), nil
}

// Archive writes the project's export to blob storage. The object name is the
// digest of the results alone, so re-exporting unchanged results overwrites
// the same object instead of piling up copies.
func (e *Exporter) Archive(ctx context.Context, projectID string) (Archive, error) {
	if e.blob == nil {
		return Archive{}, fmt.Errorf("blob store is not configured")
	}
	doc, err := e.Build(ctx, projectID)
	if err != nil {
		return Archive{}, err
	}
	resultsJSON, err := json.Marshal(doc.Results)
	if err != nil {
		return Archive{}, fmt.Errorf("marshal results: %w", err)
	}
	digest, err := e.hasher.Hash(resultsJSON)
	if err != nil {
		return Archive{}, fmt.Errorf("hash results: %w", err)
	}
	body, err := Encode(doc)
	if err != nil {
		return Archive{}, err
	}

	objectPath := path.Join(e.prefix, "exports", projectID, digest+".json")
	uri, err := e.blob.PutObject(ctx, objectPath, ContentType, bytes.NewReader(body))
	if err != nil {
		return Archive{}, fmt.Errorf("put export %s: %w", objectPath, err)
	}
	return Archive{URI: uri, Path: objectPath, Digest: digest, Count: len(doc.Results)}, nil
}
