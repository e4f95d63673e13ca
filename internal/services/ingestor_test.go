package services_test

import (
	"context"
	"errors"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/receiptsllc/sheriffsale/internal/db"
	"github.com/receiptsllc/sheriffsale/internal/models"
	"github.com/receiptsllc/sheriffsale/internal/services"
)

var _ = Describe("Ingestor", func() {
	var (
		ctx       context.Context
		repo      *flakyRepo
		store     *memStore
		extractor *scriptedExtractor
		ledger    *recordingLedger
		trigger   *recordingTrigger
		ingestor  *services.Ingestor
		doc       []byte
	)

	newIngestor := func(extra ...services.Option) *services.Ingestor {
		opts := append([]services.Option{
			services.WithPaginator(linePaginator{}),
			services.WithRunLedger(ledger),
			services.WithEnrichmentTrigger(trigger),
			services.WithClock(stepClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))),
		}, extra...)
		return services.NewIngestor(repo, store, extractor, opts...)
	}

	ingest := func(date string) services.IngestResult {
		return ingestor.Ingest(ctx, services.IngestRequest{FileName: "March Sale.PDF", Data: doc, SaleDate: date})
	}

	BeforeEach(func() {
		ctx = context.Background()
		repo = &flakyRepo{MemoryRepository: db.NewMemoryRepository()}
		store = newMemStore()
		extractor = newExtractor()
		ledger = &recordingLedger{}
		trigger = &recordingTrigger{}
		ingestor = newIngestor()
		doc = fakeDoc("page one", "page two", "page three")
	})

	Describe("request validation", func() {
		DescribeTable("rejects bad requests before anything is stored",
			func(req services.IngestRequest, message string) {
				res := ingestor.Ingest(ctx, req)
				Expect(res.State).To(Equal(models.RunAborted))
				Expect(res.StatusCode()).To(Equal(http.StatusBadRequest))
				Expect(res.Message()).To(Equal(message))
				Expect(repo.Masters()).To(BeEmpty())
				Expect(store.keys()).To(BeEmpty())
				Expect(ledger.started).To(BeEmpty())
			},
			Entry("no file", services.IngestRequest{FileName: "a.pdf", SaleDate: "2024-03-01"}, "No file provided"),
			Entry("no date", services.IngestRequest{FileName: "a.pdf", Data: []byte("x")}, "Sherif sale date is required"),
			Entry("bad date", services.IngestRequest{FileName: "a.pdf", Data: []byte("x"), SaleDate: "03/01/2024"}, "Invalid date format, expected YYYY-MM-DD"),
			Entry("not a pdf", services.IngestRequest{FileName: "a.docx", Data: []byte("x"), SaleDate: "2024-03-01"}, "Invalid file format. Only PDF files are allowed"),
		)

		It("rejects an unparseable document as invalid input without persisting", func() {
			res := ingestor.Ingest(ctx, services.IngestRequest{FileName: "a.pdf", Data: []byte("garbage"), SaleDate: "2024-03-01"})
			Expect(res.StatusCode()).To(Equal(http.StatusBadRequest))
			var malformed *services.MalformedDocumentError
			Expect(errors.As(res.Err, &malformed)).To(BeTrue())
			Expect(repo.Masters()).To(BeEmpty())
			Expect(store.keys()).To(BeEmpty())
		})
	})

	Describe("a clean run", func() {
		It("stores the master and every page and extracts properties", func() {
			res := ingest("2024-03-01")

			Expect(res.Err).NotTo(HaveOccurred())
			Expect(res.State).To(Equal(models.RunCompleted))
			Expect(res.StatusCode()).To(Equal(http.StatusOK))
			Expect(res.Message()).To(Equal("Sherif Sale Master PDF processed successfully"))

			masters := repo.Masters()
			Expect(masters).To(HaveLen(1))
			Expect(masters[0].PageCount).To(Equal(3))
			Expect(masters[0].FileHash).To(Equal(services.Hash(doc)))
			Expect(masters[0].FileName).To(Equal("20240301100001_march sale.pdf"))
			Expect(masters[0].FilePath).To(Equal("2024-03-01/20240301100001_march sale.pdf"))
			Expect(masters[0].CreatedBy).To(Equal(models.DefaultCreatedBy))
			Expect(res.MasterID).To(Equal(masters[0].ID))

			Expect(store.keys()).To(Equal([]string{
				"2024-03-01/20240301100001_march sale.pdf",
				"2024-03-01/20240301100001_march sale_page_1.pdf",
				"2024-03-01/20240301100001_march sale_page_2.pdf",
				"2024-03-01/20240301100001_march sale_page_3.pdf",
			}))

			children := repo.Children()
			Expect(children).To(HaveLen(3))
			for i, c := range children {
				Expect(c.MasterID).To(Equal(masters[0].ID))
				Expect(c.FileHash).To(Equal(services.Hash([]byte([]string{"page one", "page two", "page three"}[i]))))
				Expect(c.SaleDate.Format("2006-01-02")).To(Equal("2024-03-01"))
			}
			Expect(repo.PropertyCount()).To(Equal(6))

			props, err := repo.GetPropertiesBySaleID(ctx, children[0].ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(props[0].ZillowLink).To(Equal("https://www.zillow.com/homes/12-Oak-Ave_rb/"))
			Expect(props[1].ZillowLink).To(BeEmpty())

			Expect(res.Pages).To(HaveLen(3))
			for i, p := range res.Pages {
				Expect(p.Page).To(Equal(i + 1))
				Expect(p.Status).To(Equal(models.PagePersisted))
				Expect(p.Properties).To(Equal(2))
			}
		})

		It("passes the stored page URL to the extractor", func() {
			ingest("2024-03-01")
			Expect(extractor.calls).To(HaveLen(3))
			Expect(extractor.calls[0]).To(Equal("mem://2024-03-01/20240301100001_march sale_page_1.pdf"))
		})

		It("records every page and the final state in the ledger", func() {
			res := ingest("2024-03-01")

			Expect(ledger.started).To(HaveLen(1))
			Expect(ledger.started[0].RunID).To(Equal(res.RunID))
			Expect(ledger.started[0].PageCount).To(Equal(3))
			Expect(ledger.pages).To(HaveLen(3))
			Expect(ledger.finished).To(HaveLen(1))
			Expect(ledger.finished[0].State).To(Equal(models.RunCompleted))
			Expect(ledger.finished[0].MasterID).To(Equal(res.MasterID))
		})

		It("hands the persisted children to enrichment", func() {
			res := ingest("2024-03-01")
			Expect(trigger.reqs).To(HaveLen(1))
			Expect(trigger.reqs[0].MasterID).To(Equal(res.MasterID))
			Expect(trigger.reqs[0].SaleDate).To(Equal("2024-03-01"))
			Expect(trigger.reqs[0].ChildIDs).To(HaveLen(3))
		})

		It("is not affected by ledger or enrichment failures", func() {
			ledger.fail = true
			trigger.err = errors.New("workflow down")
			res := ingest("2024-03-01")
			Expect(res.Err).NotTo(HaveOccurred())
			Expect(res.State).To(Equal(models.RunCompleted))
		})
	})

	Describe("resubmission", func() {
		It("refreshes sale dates instead of duplicating children or properties", func() {
			first := ingest("2024-03-01")
			Expect(first.Err).NotTo(HaveOccurred())
			Expect(repo.Children()).To(HaveLen(3))
			Expect(repo.PropertyCount()).To(Equal(6))
			calls := extractor.callCount()

			second := ingest("2024-04-15")
			Expect(second.Err).NotTo(HaveOccurred())
			Expect(second.State).To(Equal(models.RunCompleted))

			children := repo.Children()
			Expect(children).To(HaveLen(3))
			for _, c := range children {
				Expect(c.SaleDate.Format("2006-01-02")).To(Equal("2024-04-15"))
			}
			Expect(repo.PropertyCount()).To(Equal(6))
			Expect(extractor.callCount()).To(Equal(calls))

			for _, p := range second.Pages {
				Expect(p.Status).To(Equal(models.PageDuplicateSkipped))
			}
			Expect(repo.Masters()).To(HaveLen(2))
		})

		Context("with pages split from a real PDF", func() {
			BeforeEach(func() {
				ingestor = newIngestor(services.WithPaginator(services.NewPdfPaginator()))
				doc = buildPDF("Lot-0001", "Lot-0002", "Lot-0003")
			})

			It("recognises every page again on each resubmission", func() {
				first := ingest("2024-03-01")
				Expect(first.Err).NotTo(HaveOccurred())
				Expect(repo.Children()).To(HaveLen(3))
				Expect(repo.PropertyCount()).To(Equal(6))

				for _, date := range []string{"2024-04-01", "2024-04-08", "2024-04-15"} {
					again := ingest(date)
					Expect(again.Err).NotTo(HaveOccurred())
					Expect(again.Pages).To(HaveLen(3))
					for _, p := range again.Pages {
						Expect(p.Status).To(Equal(models.PageDuplicateSkipped), "page %d on %s", p.Page, date)
					}

					children := repo.Children()
					Expect(children).To(HaveLen(3))
					for _, c := range children {
						Expect(c.SaleDate.Format("2006-01-02")).To(Equal(date))
					}
					Expect(repo.PropertyCount()).To(Equal(6))
				}
				Expect(extractor.callCount()).To(Equal(3))
			})
		})

		It("does not trigger enrichment when every page was a duplicate", func() {
			ingest("2024-03-01")
			ingest("2024-03-08")
			Expect(trigger.reqs).To(HaveLen(1))
		})

		It("fails the run when the duplicate row cannot be found for update", func() {
			repo.childErr = &services.DuplicateContentHashError{Hash: "unknown"}
			res := ingest("2024-03-01")
			Expect(res.State).To(Equal(models.RunAborted))
			var pe *services.PersistenceError
			Expect(errors.As(res.Err, &pe)).To(BeTrue())
		})
	})

	Describe("extraction failures", func() {
		It("skips a rejected page and completes the run", func() {
			extractor.errs["_page_2.pdf"] = &services.UnprocessableInputError{Err: errors.New("not a listing")}

			res := ingest("2024-03-01")
			Expect(res.Err).NotTo(HaveOccurred())
			Expect(res.StatusCode()).To(Equal(http.StatusOK))

			children := repo.Children()
			Expect(children).To(HaveLen(3))
			for i, c := range children {
				props, err := repo.GetPropertiesBySaleID(ctx, c.ID)
				Expect(err).NotTo(HaveOccurred())
				if i == 1 {
					Expect(props).To(BeEmpty())
				} else {
					Expect(props).To(HaveLen(2))
				}
			}
			Expect(res.Pages[1].Status).To(Equal(models.PageExtractionSkipped))
			Expect(res.Pages[1].ChildID).NotTo(BeZero())
		})

		It("aborts on a service error and never attempts later pages", func() {
			extractor.errs["_page_2.pdf"] = &services.ExtractorServiceError{Err: errors.New("quota exceeded")}

			res := ingest("2024-03-01")
			Expect(res.State).To(Equal(models.RunAborted))
			Expect(res.StatusCode()).To(Equal(http.StatusInternalServerError))
			Expect(res.Message()).To(ContainSubstring("quota exceeded"))

			children := repo.Children()
			Expect(children).To(HaveLen(2))
			for _, c := range children {
				Expect(c.FileName).NotTo(HaveSuffix("_page_3.pdf"))
			}
			Expect(store.keys()).NotTo(ContainElement(HaveSuffix("_page_3.pdf")))
			Expect(repo.PropertyCount()).To(Equal(2))

			Expect(ledger.pages).To(HaveLen(2))
			Expect(ledger.pages[1].Status).To(Equal(models.PageFatal))
			Expect(ledger.finished[0].State).To(Equal(models.RunAborted))
			Expect(ledger.finished[0].ErrorDetails).To(ContainSubstring("quota exceeded"))
			Expect(trigger.reqs).To(BeEmpty())
		})

		It("treats an unclassified extractor error as a service error", func() {
			extractor.errs["_page_1.pdf"] = errors.New("connection reset")
			res := ingest("2024-03-01")
			var svc *services.ExtractorServiceError
			Expect(errors.As(res.Err, &svc)).To(BeTrue())
		})

		It("aborts when a single extraction exceeds its timeout", func() {
			ingestor = newIngestor(services.WithExtractTimeout(20 * time.Millisecond))
			extractor.block["_page_1.pdf"] = true

			res := ingest("2024-03-01")
			Expect(res.State).To(Equal(models.RunAborted))
			var svc *services.ExtractorServiceError
			Expect(errors.As(res.Err, &svc)).To(BeTrue())
			Expect(res.Err.Error()).To(ContainSubstring("timed out"))
			Expect(repo.Children()).To(HaveLen(1))
		})
	})

	Describe("storage and persistence failures", func() {
		It("aborts before any master row when the master upload fails", func() {
			store.failOn = "march sale.pdf"
			res := ingest("2024-03-01")

			Expect(res.StatusCode()).To(Equal(http.StatusInternalServerError))
			var se *services.StorageError
			Expect(errors.As(res.Err, &se)).To(BeTrue())
			Expect(repo.Masters()).To(BeEmpty())
			Expect(ledger.finished[0].State).To(Equal(models.RunAborted))
		})

		It("keeps earlier children when a page upload fails", func() {
			store.failOn = "_page_2.pdf"
			res := ingest("2024-03-01")

			var se *services.StorageError
			Expect(errors.As(res.Err, &se)).To(BeTrue())
			Expect(se.Key).To(HaveSuffix("_page_2.pdf"))
			Expect(repo.Masters()).To(HaveLen(1))
			Expect(repo.Children()).To(HaveLen(1))
			Expect(repo.PropertyCount()).To(Equal(2))
		})

		It("aborts when the master record cannot be saved", func() {
			repo.failMaster = errors.New("connection refused")
			res := ingest("2024-03-01")

			var pe *services.PersistenceError
			Expect(errors.As(res.Err, &pe)).To(BeTrue())
			Expect(res.StatusCode()).To(Equal(http.StatusInternalServerError))
			Expect(repo.Children()).To(BeEmpty())
			Expect(extractor.callCount()).To(BeZero())
		})

		It("aborts on a non-duplicate child failure and leaves later pages alone", func() {
			repo.failChildAfter = 1
			repo.childErr = &services.PersistenceError{Op: "insert child", Err: errors.New("disk full")}

			res := ingest("2024-03-01")
			Expect(res.State).To(Equal(models.RunAborted))
			Expect(res.Message()).To(ContainSubstring("disk full"))
			Expect(repo.childCalls).To(Equal(2))
			Expect(repo.Children()).To(HaveLen(1))
			Expect(store.keys()).NotTo(ContainElement(HaveSuffix("_page_3.pdf")))
		})

		It("recovers a partially failed run on resubmission", func() {
			store.failOn = "_page_3.pdf"
			first := ingest("2024-03-01")
			Expect(first.State).To(Equal(models.RunAborted))
			Expect(repo.Children()).To(HaveLen(2))

			store.failOn = ""
			second := ingest("2024-03-01")
			Expect(second.Err).NotTo(HaveOccurred())
			Expect(repo.Children()).To(HaveLen(3))
			Expect(repo.PropertyCount()).To(Equal(6))
			Expect(second.Pages[0].Status).To(Equal(models.PageDuplicateSkipped))
			Expect(second.Pages[2].Status).To(Equal(models.PagePersisted))
		})
	})

	Describe("cancellation", func() {
		It("stops at the next page boundary and creates no child for it", func() {
			cctx, cancel := context.WithCancel(ctx)
			defer cancel()
			ingestor = newIngestor(services.WithRunLedger(&cancellingLedger{recordingLedger: ledger, cancel: cancel, onPage: 1}))

			res := ingestor.Ingest(cctx, services.IngestRequest{FileName: "a.pdf", Data: doc, SaleDate: "2024-03-01"})
			Expect(res.State).To(Equal(models.RunAborted))
			Expect(res.Err).To(MatchError(context.Canceled))
			Expect(res.Pages).To(HaveLen(1))
			Expect(res.Pages[0].Status).To(Equal(models.PagePersisted))
			Expect(repo.Children()).To(HaveLen(1))
			Expect(repo.PropertyCount()).To(Equal(2))
			Expect(store.keys()).NotTo(ContainElement(HaveSuffix("_page_2.pdf")))
			Expect(ledger.finished).To(HaveLen(1))
			Expect(ledger.finished[0].State).To(Equal(models.RunAborted))
			Expect(trigger.reqs).To(BeEmpty())
		})
	})
})
