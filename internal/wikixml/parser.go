// Package wikixml parses MediaWiki XML dump streams into page records with
// bounded working memory: each page subtree is decoded into a short-lived
// struct that is released before the next page is read.
package wikixml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Record is one parsed page, serialized as a single JSON line downstream.
type Record struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Text       string `json:"text"`
	Namespace  int    `json:"namespace"`
	IsRedirect bool   `json:"is_redirect"`
}

// Options controls inclusion filtering and stream alignment.
type Options struct {
	// AllowedNamespaces is the namespace allow-list. Nil means main (0) only.
	AllowedNamespaces []int

	// SkipRedirects drops pages flagged by the redirect element or a
	// #redirect text body.
	SkipRedirects bool

	// SkipDisambiguation drops disambiguation pages detected by title or
	// template markers.
	SkipDisambiguation bool

	// Realign discards leading bytes up to the next page element before
	// parsing. Set when resuming at a raw mid-stream offset.
	Realign bool
}

// Parser yields page records from a decompressed dump stream. The sequence
// is finite and non-restartable.
type Parser struct {
	dec     *xml.Decoder
	opts    Options
	allowed map[int]struct{}
	realign *realignReader
	skipped int64
	done    bool
	lastErr error
	readErr error
}

// NewParser creates a parser over r.
func NewParser(r io.Reader, opts Options) *Parser {
	var realign *realignReader
	if opts.Realign {
		realign = newRealignReader(r)
		r = realign
	}

	namespaces := opts.AllowedNamespaces
	if namespaces == nil {
		namespaces = []int{0}
	}

	allowed := make(map[int]struct{}, len(namespaces))
	for _, ns := range namespaces {
		allowed[ns] = struct{}{}
	}

	return &Parser{
		dec:     xml.NewDecoder(r),
		opts:    opts,
		allowed: allowed,
		realign: realign,
	}
}

// pageElement mirrors the subset of the <page> subtree we extract. The
// direct <id> child is the page id; revision ids live one level deeper and
// do not collide with the "id" path.
type pageElement struct {
	Title     string     `xml:"title"`
	NS        string     `xml:"ns"`
	ID        string     `xml:"id"`
	Redirect  *struct{}  `xml:"redirect"`
	Revisions []revision `xml:"revision"`
}

type revision struct {
	Text string `xml:"text"`
}

// Next returns the next included page record. It returns io.EOF when the
// stream is exhausted or a structural XML error makes further progress
// impossible; the structural error is retained for Err, never propagated.
// A failure of the underlying reader is not structural: it is returned as
// an error and repeats on every later call.
func (p *Parser) Next() (*Record, error) {
	if p.readErr != nil {
		return nil, p.readErr
	}

	if p.done {
		return nil, io.EOF
	}

	for {
		tok, err := p.dec.Token()
		if err != nil {
			return nil, p.terminate(err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "page" {
			continue
		}

		var page pageElement

		decodeErr := p.dec.DecodeElement(&page, &start)
		if decodeErr != nil {
			var unmarshalErr xml.UnmarshalError
			if errors.As(decodeErr, &unmarshalErr) {
				// This page subtree does not fit the schema; the token
				// stream itself is still intact.
				p.skipped++

				continue
			}

			return nil, p.terminate(decodeErr)
		}

		record := extract(&page)
		if record == nil {
			p.skipped++

			continue
		}

		if !p.include(record) {
			p.skipped++

			continue
		}

		return record, nil
	}
}

// Skipped returns the number of pages dropped so far (incomplete, rejected
// by filters, or undecodable).
func (p *Parser) Skipped() int64 {
	return p.skipped
}

// Err returns the structural error that terminated the stream, if any.
// io.EOF is a clean end and is not reported.
func (p *Parser) Err() error {
	return p.lastErr
}

// InputOffset returns the number of source bytes consumed up to the current
// parse position. For realigned streams the synthetic root is excluded and
// the bytes discarded before the first page element are included, so the
// value maps directly onto the source stream.
func (p *Parser) InputOffset() int64 {
	if p.realign != nil {
		return p.realign.sourceOffset(p.dec.InputOffset())
	}

	return p.dec.InputOffset()
}

// terminate classifies the error that ended the token stream and returns
// what Next should surface. Clean EOF and structural XML errors end the
// record sequence with io.EOF; anything else came from the underlying
// reader and is propagated.
func (p *Parser) terminate(err error) error {
	p.done = true

	if errors.Is(err, io.EOF) {
		return io.EOF
	}

	var syntaxErr *xml.SyntaxError
	if errors.As(err, &syntaxErr) {
		p.lastErr = err

		return io.EOF
	}

	p.readErr = fmt.Errorf("read stream: %w", err)

	return p.readErr
}

// extract pulls the record fields from a decoded page subtree. Pages
// missing id, title, or text are incomplete and yield nil.
func extract(page *pageElement) *Record {
	if page.ID == "" || page.Title == "" || len(page.Revisions) == 0 {
		return nil
	}

	// The latest revision is the last one in document order.
	text := page.Revisions[len(page.Revisions)-1].Text
	if text == "" {
		return nil
	}

	namespace := 0

	if trimmed := strings.TrimSpace(page.NS); trimmed != "" {
		parsed, err := strconv.Atoi(trimmed)
		if err == nil {
			namespace = parsed
		}
	}

	return &Record{
		ID:         page.ID,
		Title:      page.Title,
		Text:       text,
		Namespace:  namespace,
		IsRedirect: page.Redirect != nil || IsRedirectText(text),
	}
}

// include applies the inclusion filters in order: namespace, redirect,
// disambiguation.
func (p *Parser) include(record *Record) bool {
	_, ok := p.allowed[record.Namespace]
	if !ok {
		return false
	}

	if p.opts.SkipRedirects && record.IsRedirect {
		return false
	}

	if p.opts.SkipDisambiguation && IsDisambiguation(record.Title, record.Text) {
		return false
	}

	return true
}
