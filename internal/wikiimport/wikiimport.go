// Package wikiimport bulk-loads a MediaWiki XML export into the engine,
// for the CLI's import-wiki subcommand. No ready MediaWiki parser exists
// to adapt, so this is built directly on encoding/xml and compress/bzip2.
package wikiimport

import (
	"compress/bzip2"
	"encoding/xml"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/harrowgate/ftsengine/internal/engine"
	"github.com/harrowgate/ftsengine/pkg/types"
)

// page mirrors the subset of a MediaWiki export's <page> element this
// importer cares about.
type page struct {
	Title string `xml:"title"`
	ID    string `xml:"id"`
	Text  string `xml:"revision>text"`
}

var (
	wikiLinkRE = regexp.MustCompile(`\[\[([^|\]]*\|)?([^\]]*)\]\]`)
	externalRE = regexp.MustCompile(`\[https?://\S+\s+([^\]]*)\]`)
	templateRE = regexp.MustCompile(`\{\{[^{}]*\}\}`)
	headingRE  = regexp.MustCompile(`={2,}\s*([^=]+?)\s*={2,}`)
	markupRE   = regexp.MustCompile(`'''''|'''|''`)
	htmlTagRE  = regexp.MustCompile(`<[^>]+>`)
	commentRE  = regexp.MustCompile(`(?s)<!--.*?-->`)
	refRE      = regexp.MustCompile(`(?s)<ref[^>]*>.*?</ref>`)
)

// stripWikitext approximates plain text from MediaWiki markup. This is
// deliberately lossy: templates are dropped wholesale rather than
// expanded, and infoboxes, references, and tables are not reconstructed.
func stripWikitext(text string) string {
	text = commentRE.ReplaceAllString(text, "")
	text = refRE.ReplaceAllString(text, "")
	for i := 0; i < 3 && templateRE.MatchString(text); i++ {
		text = templateRE.ReplaceAllString(text, "")
	}
	text = externalRE.ReplaceAllString(text, "$1")
	text = wikiLinkRE.ReplaceAllString(text, "$2")
	text = headingRE.ReplaceAllString(text, "$1")
	text = markupRE.ReplaceAllString(text, "")
	text = htmlTagRE.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// Options configures an import run.
type Options struct {
	BatchSize int // documents per UpsertBatch call, default 200
}

// Import streams path (a MediaWiki XML export, optionally bzip2
// compressed if its name ends in .bz2) into e, batching upserts of
// BatchSize documents at a time. It returns the number of pages
// imported.
func Import(e *engine.Engine, path string, opts Options, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, types.WrapError("wikiimport.Import", types.ErrStorageError, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".bz2") {
		r = bzip2.NewReader(f)
	}

	decoder := xml.NewDecoder(r)
	imported := 0
	var batch []types.Document

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := e.UpsertBatch(batch); err != nil {
			return err
		}
		imported += len(batch)
		logger.Info("wiki import progress", "imported", imported)
		batch = batch[:0]
		return nil
	}

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return imported, types.WrapError("wikiimport.Import", types.ErrCorruption, err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "page" {
			continue
		}

		var p page
		if err := decoder.DecodeElement(&p, &start); err != nil {
			logger.Warn("skipping malformed page", "error", err)
			continue
		}
		if p.Title == "" {
			continue
		}

		batch = append(batch, types.Document{
			ID:      p.ID,
			Title:   p.Title,
			Content: stripWikitext(p.Text),
		})

		if len(batch) >= opts.BatchSize {
			if err := flush(); err != nil {
				return imported, err
			}
		}
	}

	if err := flush(); err != nil {
		return imported, err
	}

	return imported, nil
}
