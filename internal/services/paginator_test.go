package services_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/receiptsllc/sheriffsale/internal/services"
)

// pageText returns the decoded content streams of a single-page PDF.
func pageText(page []byte) string {
	dir := GinkgoT().TempDir()
	in := filepath.Join(dir, "page.pdf")
	Expect(os.WriteFile(in, page, 0o600)).To(Succeed())
	out := filepath.Join(dir, "content")
	Expect(os.Mkdir(out, 0o700)).To(Succeed())
	Expect(api.ExtractContentFile(in, out, nil, nil)).To(Succeed())

	entries, err := os.ReadDir(out)
	Expect(err).NotTo(HaveOccurred())
	var sb strings.Builder
	for _, e := range entries {
		b, err := os.ReadFile(filepath.Join(out, e.Name()))
		Expect(err).NotTo(HaveOccurred())
		sb.Write(b)
	}
	return sb.String()
}

var _ = Describe("PdfPaginator", func() {
	var (
		p      *services.PdfPaginator
		ctx    context.Context
		master []byte
	)

	BeforeEach(func() {
		p = services.NewPdfPaginator()
		ctx = context.Background()
		master = buildPDF("Lot-0001", "Lot-0002", "Lot-0003", "Lot-0004")
	})

	It("counts pages", func() {
		n, err := p.PageCount(master)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(4))
	})

	It("splits into single pages in order with derived names", func() {
		pages, err := p.SplitPages(ctx, master, "20240101120000_sale.pdf")
		Expect(err).NotTo(HaveOccurred())
		Expect(pages).To(HaveLen(4))

		for i, page := range pages {
			Expect(page.Number).To(Equal(i + 1))
			Expect(page.FileName).To(Equal("20240101120000_sale_page_" + string(rune('1'+i)) + ".pdf"))

			n, err := api.PageCount(bytes.NewReader(page.Data), nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))

			text := pageText(page.Data)
			for j := range pages {
				marker := "Lot-000" + string(rune('1'+j))
				if j == i {
					Expect(text).To(ContainSubstring(marker))
				} else {
					Expect(text).NotTo(ContainSubstring(marker))
				}
			}
		}
	})

	It("gives every page one content hash across repeated splits", func() {
		seen := make([]map[string]bool, 4)
		for i := range seen {
			seen[i] = map[string]bool{}
		}
		for run := 0; run < 25; run++ {
			pages, err := p.SplitPages(ctx, master, "a.pdf")
			Expect(err).NotTo(HaveOccurred())
			Expect(pages).To(HaveLen(4))
			for i, page := range pages {
				Expect(page.ContentHash).To(HaveLen(64))
				seen[i][page.ContentHash] = true
			}
		}

		distinct := map[string]bool{}
		for i := range seen {
			Expect(seen[i]).To(HaveLen(1), "page %d hashed differently across runs", i+1)
			for h := range seen[i] {
				distinct[h] = true
			}
		}
		Expect(distinct).To(HaveLen(4))
	})

	It("hashes a page the same when it sits in a differently numbered document", func() {
		pages, err := p.SplitPages(ctx, master, "a.pdf")
		Expect(err).NotTo(HaveOccurred())

		alone, err := p.SplitPages(ctx, buildPDF("Lot-0003"), "b.pdf")
		Expect(err).NotTo(HaveOccurred())
		Expect(alone).To(HaveLen(1))
		Expect(alone[0].ContentHash).To(Equal(pages[2].ContentHash))
		Expect(alone[0].ContentHash).NotTo(Equal(pages[0].ContentHash))
	})

	It("rejects input that is not a PDF", func() {
		_, err := p.PageCount([]byte("this is not a pdf"))
		var malformed *services.MalformedDocumentError
		Expect(errors.As(err, &malformed)).To(BeTrue())
		Expect(services.IsInvalidInput(err)).To(BeTrue())

		_, err = p.SplitPages(ctx, []byte("%PDF-1.4 truncated"), "x.pdf")
		Expect(errors.As(err, &malformed)).To(BeTrue())
	})

	It("rejects empty input", func() {
		_, err := p.PageCount(nil)
		var malformed *services.MalformedDocumentError
		Expect(errors.As(err, &malformed)).To(BeTrue())
	})

	It("does not start when the context is already cancelled", func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := p.SplitPages(cctx, master, "a.pdf")
		Expect(err).To(MatchError(context.Canceled))
	})
})

var _ = Describe("Hash", func() {
	It("is deterministic and sensitive to a single bit", func() {
		data := []byte("sheriff sale page")
		Expect(services.Hash(data)).To(Equal(services.Hash(append([]byte(nil), data...))))
		Expect(services.Hash(data)).To(HaveLen(64))

		flipped := append([]byte(nil), data...)
		flipped[3] ^= 0x01
		Expect(services.Hash(flipped)).NotTo(Equal(services.Hash(data)))
	})
})
