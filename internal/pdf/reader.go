// Package pdf turns linked PDF files into page documents for the index.
package pdf

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/Aman-CERP/amanbib/internal/model"
	"github.com/Aman-CERP/amanbib/internal/schema"
)

// DefaultMaxFileSize caps the files parsed in memory.
const DefaultMaxFileSize = 200 << 20

// Page is the extracted text of one page. Empty strings mean absent.
type Page struct {
	Number      int    `json:"n"`
	Content     string `json:"c,omitempty"`
	Annotations string `json:"a,omitempty"`
}

// Extraction is everything read from one file.
type Extraction struct {
	Pages []Page `json:"pages"`
	// Failed is set when the file could not be parsed at all.
	Failed bool `json:"failed,omitempty"`
}

// Cache stores encoded extractions keyed by path and modification time.
type Cache interface {
	Get(ctx context.Context, path string, modified int64) ([]byte, bool)
	Put(ctx context.Context, path string, modified int64, data []byte) error
	Invalidate(ctx context.Context, path string) error
}

// Reader extracts page documents from PDF files. Safe for concurrent use.
type Reader struct {
	logger      *slog.Logger
	cache       Cache
	maxFileSize int64
}

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reader) { r.logger = l }
}

// WithCache reuses extractions of unchanged files.
func WithCache(c Cache) Option {
	return func(r *Reader) { r.cache = c }
}

// WithMaxFileSize skips larger files; they produce a fallback document.
func WithMaxFileSize(n int64) Option {
	return func(r *Reader) { r.maxFileSize = n }
}

// NewReader creates a Reader.
func NewReader(opts ...Option) *Reader {
	r := &Reader{logger: slog.Default(), maxFileSize: DefaultMaxFileSize}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ReadPdfContents reads the file at resolvedPath, linked as file, into one
// document per page. It never fails: an unreadable or empty file yields a
// single document with identifiers and metadata only.
func (r *Reader) ReadPdfContents(ctx context.Context, file model.LinkedFile, resolvedPath string) []*schema.Document {
	modified, ok := ModifiedTime(resolvedPath)
	if !ok {
		r.logger.Error("pdf_timestamp_failed", slog.String("path", resolvedPath))
	}
	ex := r.Extract(ctx, resolvedPath, modified, ok)
	return Documents(file.Link, ex, modified, ok)
}

// LocalPDFs returns the links of entry's file field that are PDFs on the
// local file system. URLs and other file types are left out.
func LocalPDFs(entry *model.Entry, fileField string) []model.LinkedFile {
	var out []model.LinkedFile
	for _, f := range entry.Files(fileField) {
		if f.IsPDF() && !f.IsOnline() {
			out = append(out, f)
		}
	}
	return out
}

// Forget drops the cached extraction of the file at path.
func (r *Reader) Forget(ctx context.Context, path string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Invalidate(ctx, path); err != nil {
		r.logger.Debug("extract_cache_invalidate_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}

// ModifiedTime returns the file's modification time in Unix seconds.
func ModifiedTime(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	return info.ModTime().Unix(), true
}

// Extract reads the pages of the file at path, consulting the cache when
// the modification time is known.
func (r *Reader) Extract(ctx context.Context, path string, modified int64, known bool) Extraction {
	if r.cache != nil && known {
		if blob, ok := r.cache.Get(ctx, path, modified); ok {
			var ex Extraction
			if err := json.Unmarshal(blob, &ex); err == nil {
				return ex
			}
		}
	}

	ex := r.extractFile(ctx, path)
	if r.cache != nil && known && !ex.Failed && ctx.Err() == nil {
		if blob, err := json.Marshal(ex); err == nil {
			if err := r.cache.Put(ctx, path, modified, blob); err != nil {
				r.logger.Debug("extract_cache_write_failed",
					slog.String("path", path),
					slog.String("error", err.Error()))
			}
		}
	}
	return ex
}

func (r *Reader) extractFile(ctx context.Context, path string) Extraction {
	f, err := os.Open(path)
	if err != nil {
		r.logger.Warn("pdf_read_failed", slog.String("path", path), slog.String("error", err.Error()))
		return Extraction{Failed: true}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		r.logger.Warn("pdf_read_failed", slog.String("path", path), slog.String("error", err.Error()))
		return Extraction{Failed: true}
	}
	if r.maxFileSize > 0 && info.Size() > r.maxFileSize {
		r.logger.Warn("pdf_too_large", slog.String("path", path), slog.Int64("size", info.Size()))
		return Extraction{Failed: true}
	}

	doc, n, err := open(f, info.Size())
	if err != nil {
		r.logger.Warn("pdf_read_failed", slog.String("path", path), slog.String("error", err.Error()))
		return Extraction{Failed: true}
	}

	ex := Extraction{Pages: make([]Page, 0, n)}
	for i := 1; i <= n; i++ {
		if ctx.Err() != nil {
			break
		}
		page := Page{Number: i}
		text, err := pageText(doc, i)
		if err != nil {
			r.logger.Warn("pdf_page_failed",
				slog.String("path", path),
				slog.Int("page", i),
				slog.String("error", err.Error()))
		} else if strings.TrimSpace(text) != "" {
			page.Content = MergeLines(strings.ReplaceAll(text, "\r\n", "\n"))
		}
		page.Annotations = pageAnnotations(doc, i)
		ex.Pages = append(ex.Pages, page)
	}
	return ex
}

// open parses the cross-reference table. The parser panics on some
// malformed input, which is reported as an error.
func open(f *os.File, size int64) (doc *pdf.Reader, pages int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			doc, pages, err = nil, 0, fmt.Errorf("malformed PDF: %v", rec)
		}
	}()
	doc, err = pdf.NewReader(f, size)
	if err != nil {
		return nil, 0, err
	}
	return doc, doc.NumPage(), nil
}

func pageText(doc *pdf.Reader, n int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("page %d: %v", n, rec)
		}
	}()
	p := doc.Page(n)
	if p.V.IsNull() {
		return "", fmt.Errorf("page %d not found", n)
	}
	return p.GetPlainText(nil)
}

// pageAnnotations joins the non-empty /Contents of the page's annotations
// with newlines.
func pageAnnotations(doc *pdf.Reader, n int) (out string) {
	defer func() {
		if recover() != nil {
			out = ""
		}
	}()
	annots := doc.Page(n).V.Key("Annots")
	var parts []string
	for i := 0; i < annots.Len(); i++ {
		if s := annots.Index(i).Key("Contents").Text(); strings.TrimSpace(s) != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

// Documents builds the page documents of one linked file.
func Documents(link string, ex Extraction, modified int64, known bool) []*schema.Document {
	if ex.Failed || len(ex.Pages) == 0 {
		return []*schema.Document{pageDocument(link, Page{Number: 1}, modified, known)}
	}
	docs := make([]*schema.Document, 0, len(ex.Pages))
	for _, p := range ex.Pages {
		docs = append(docs, pageDocument(link, p, modified, known))
	}
	return docs
}

func pageDocument(link string, p Page, modified int64, known bool) *schema.Document {
	d := schema.NewDocument(schema.PageDocID(link, p.Number), schema.KindPage)
	d.Add(schema.FilePath, link, schema.Keyword)
	if known {
		d.Add(schema.FileModified, strconv.FormatInt(modified, 10), schema.Keyword)
	}
	d.Add(schema.FilePageNumber, strconv.Itoa(p.Number), schema.Keyword)
	if p.Content != "" {
		d.Add(schema.FileContent, p.Content, schema.Text)
	}
	if p.Annotations != "" {
		d.Add(schema.FileAnnotations, p.Annotations, schema.Text)
	}
	return d
}
