package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/sync/errgroup"
)

// Page is one single-page document produced by splitting a master PDF.
// ContentHash identifies what the page shows, not how the file was written:
// pdfcpu numbers objects differently from run to run, so Data is not stable.
type Page struct {
	Number      int
	FileName    string
	Data        []byte
	ContentHash string
}

// PdfPaginator counts and splits PDFs with pdfcpu. pdfcpu works on files, so
// every call stages the input in its own temp directory.
type PdfPaginator struct{}

var disableConfigDir sync.Once

func NewPdfPaginator() *PdfPaginator {
	disableConfigDir.Do(api.DisableConfigDir)
	return &PdfPaginator{}
}

// config returns a fresh configuration per call; pdfcpu mutates it while running.
func (p *PdfPaginator) config() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// PageCount returns the number of pages in data.
func (p *PdfPaginator) PageCount(data []byte) (int, error) {
	dir, _, count, err := p.prepare(data)
	if dir != "" {
		defer os.RemoveAll(dir)
	}
	return count, err
}

// SplitPages splits data into single-page documents named
// <stem of name>_page_<n>.pdf, ordered by page number starting at 1.
func (p *PdfPaginator) SplitPages(ctx context.Context, data []byte, name string) ([]Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, optimized, count, err := p.prepare(data)
	if dir != "" {
		defer os.RemoveAll(dir)
	}
	if err != nil {
		return nil, err
	}

	if err := api.SplitFile(optimized, dir, 1, p.config()); err != nil {
		return nil, &MalformedDocumentError{Err: fmt.Errorf("split: %w", err)}
	}
	hashes, err := p.pageHashes(data, count)
	if err != nil {
		return nil, err
	}

	stem := strings.TrimSuffix(name, filepath.Ext(name))
	splitBase := strings.TrimSuffix(optimized, filepath.Ext(optimized))
	pages := make([]Page, count)

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(10)
	for n := 1; n <= count; n++ {
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			raw, err := os.ReadFile(fmt.Sprintf("%s_%d.pdf", splitBase, n))
			if err != nil {
				return fmt.Errorf("read split page %d: %w", n, err)
			}
			pages[n-1] = Page{
				Number:      n,
				FileName:    fmt.Sprintf("%s_page_%d.pdf", stem, n),
				Data:        raw,
				ContentHash: hashes[n-1],
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}

func (p *PdfPaginator) prepare(data []byte) (dir, optimized string, count int, err error) {
	if len(data) == 0 {
		return "", "", 0, &MalformedDocumentError{Err: errors.New("empty document")}
	}
	dir, err = os.MkdirTemp("", "sale-paginator-*")
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to create temp dir: %w", err)
	}

	source := filepath.Join(dir, "source.pdf")
	if err := os.WriteFile(source, data, 0o600); err != nil {
		return dir, "", 0, fmt.Errorf("failed to stage source pdf: %w", err)
	}
	optimized = filepath.Join(dir, "optimized.pdf")
	if err := api.OptimizeFile(source, optimized, p.config()); err != nil {
		return dir, "", 0, &MalformedDocumentError{Err: err}
	}
	count, err = api.PageCountFile(optimized)
	if err != nil {
		return dir, "", 0, &MalformedDocumentError{Err: err}
	}
	if count < 1 {
		return dir, "", 0, &MalformedDocumentError{Err: errors.New("document has no pages")}
	}
	return dir, optimized, count, nil
}

// pageHashes fingerprints every page of the master in page order.
func (p *PdfPaginator) pageHashes(data []byte, count int) ([]string, error) {
	pdf, err := api.ReadAndValidate(bytes.NewReader(data), p.config())
	if err != nil {
		return nil, &MalformedDocumentError{Err: err}
	}
	if pdf.PageCount != count {
		return nil, &MalformedDocumentError{Err: fmt.Errorf("page count changed from %d to %d", count, pdf.PageCount)}
	}
	hashes := make([]string, count)
	for n := 1; n <= count; n++ {
		if hashes[n-1], err = pageFingerprint(pdf.XRefTable, n); err != nil {
			return nil, &MalformedDocumentError{Err: fmt.Errorf("fingerprint page %d: %w", n, err)}
		}
	}
	return hashes, nil
}

// pageFingerprint is the SHA-256 of a canonical rendering of page n: the
// page dictionary with references resolved, keys sorted, streams decoded and
// the inherited box and resources folded in. Object numbers and the /Parent
// link never reach the digest.
func pageFingerprint(xrt *model.XRefTable, n int) (string, error) {
	d, ref, inherited, err := xrt.PageDict(n, false)
	if err != nil {
		return "", err
	}
	c := canonicalWriter{xrt: xrt, h: sha256.New(), seen: map[int]int{}}
	if ref != nil {
		// Annotations point back at their page through /P.
		c.seen[ref.ObjectNumber.Value()] = 0
	}
	if err := c.object(d); err != nil {
		return "", err
	}
	if inherited != nil {
		if d["Resources"] == nil && inherited.Resources != nil {
			io.WriteString(c.h, "inherited-resources:")
			if err := c.object(inherited.Resources); err != nil {
				return "", err
			}
		}
		if inherited.MediaBox != nil {
			io.WriteString(c.h, "mediabox:"+inherited.MediaBox.String())
		}
		io.WriteString(c.h, "rotate:"+strconv.Itoa(inherited.Rotate))
	}
	return hex.EncodeToString(c.h.Sum(nil)), nil
}

type canonicalWriter struct {
	xrt *model.XRefTable
	h   hash.Hash
	// seen maps an object number to the order it was first reached in.
	seen map[int]int
}

func (c *canonicalWriter) write(tag string, b []byte) {
	io.WriteString(c.h, tag)
	io.WriteString(c.h, strconv.Itoa(len(b)))
	io.WriteString(c.h, ":")
	c.h.Write(b)
}

func (c *canonicalWriter) object(o types.Object) error {
	switch v := o.(type) {
	case nil:
		io.WriteString(c.h, "N")
	case types.IndirectRef:
		nr := v.ObjectNumber.Value()
		if ord, ok := c.seen[nr]; ok {
			io.WriteString(c.h, "R"+strconv.Itoa(ord)+";")
			return nil
		}
		c.seen[nr] = len(c.seen)
		resolved, err := c.xrt.Dereference(v)
		if err != nil {
			return err
		}
		return c.object(resolved)
	case *types.IndirectRef:
		return c.object(*v)
	case types.Dict:
		return c.dict(v, "Parent")
	case types.Array:
		io.WriteString(c.h, "A"+strconv.Itoa(len(v))+"[")
		for _, e := range v {
			if err := c.object(e); err != nil {
				return err
			}
		}
		io.WriteString(c.h, "]")
	case types.StreamDict:
		return c.stream(v)
	case *types.StreamDict:
		return c.stream(*v)
	case types.Name:
		c.write("n", []byte(v.Value()))
	case types.StringLiteral:
		c.write("s", []byte(v.Value()))
	case types.HexLiteral:
		c.write("x", []byte(v.Value()))
	case types.Integer:
		io.WriteString(c.h, "i"+strconv.Itoa(v.Value())+";")
	case types.Float:
		io.WriteString(c.h, "f"+strconv.FormatFloat(v.Value(), 'f', -1, 64)+";")
	case types.Boolean:
		io.WriteString(c.h, "b"+strconv.FormatBool(v.Value())+";")
	default:
		c.write("o", []byte(o.String()))
	}
	return nil
}

func (c *canonicalWriter) dict(d types.Dict, skip ...string) error {
	keys := make([]string, 0, len(d))
	for k := range d {
		if !slices.Contains(skip, k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	io.WriteString(c.h, "D"+strconv.Itoa(len(keys))+"{")
	for _, k := range keys {
		c.write("k", []byte(k))
		if err := c.object(d[k]); err != nil {
			return err
		}
	}
	io.WriteString(c.h, "}")
	return nil
}

// stream hashes decoded content, so a re-encoded stream with the same bytes
// underneath still matches. Undecodable filters fall back to the raw bytes.
func (c *canonicalWriter) stream(sd types.StreamDict) error {
	if err := c.dict(sd.Dict, "Parent", "Length", "Filter", "DecodeParms"); err != nil {
		return err
	}
	content := sd.Raw
	if err := sd.Decode(); err == nil && sd.Content != nil {
		content = sd.Content
	}
	c.write("S", content)
	return nil
}
