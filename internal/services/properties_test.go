package services_test

import (
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/receiptsllc/sheriffsale/internal/models"
	"github.com/receiptsllc/sheriffsale/internal/services"
)

var _ = Describe("NormalizeProperty", func() {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	It("truncates long values to the field limit", func() {
		rec := services.NormalizeProperty(services.RawProperty{
			"Comments": strings.Repeat("x", 300),
		}, 7, now)
		Expect(rec.Comments).To(HaveLen(services.MaxFieldLength))
	})

	It("truncates by character, not byte", func() {
		rec := services.NormalizeProperty(services.RawProperty{
			"Municipality": strings.Repeat("é", 260),
		}, 7, now)
		Expect([]rune(rec.Municipality)).To(HaveLen(services.MaxFieldLength))
	})

	It("stores missing and null values as empty strings", func() {
		rec := services.NormalizeProperty(services.RawProperty{"Sale": nil}, 7, now)
		Expect(rec.Sale).To(Equal(""))
		Expect(rec.CaseNumber).To(Equal(""))
		Expect(rec.ZillowLink).To(Equal(""))
		Expect(rec.Zestimate).To(Equal(""))
	})

	It("maps extractor field names onto the record", func() {
		rec := services.NormalizeProperty(services.RawProperty{
			"Sale":                "S-1",
			"caseNum":             "2024-CV-12",
			"SaleType":            "Mortgage",
			"Status":              "Active",
			"Tracts":              "2",
			"CostTaxBid":          1500.5,
			"Plantiff":            "Bank",
			"AttorneyForPlantiff": "Smith LLP",
			"Defendents":          "Doe\nJane",
			"PropertyAddress":     "1 Elm St\nSpringfield",
			"Municipality":        "Springfield",
			"ParcelTaxId":         "12-34",
			"Comments":            "none",
		}, 7, now)

		Expect(rec.ChildID).To(Equal(int64(7)))
		Expect(rec.Sale).To(Equal("S-1"))
		Expect(rec.CaseNumber).To(Equal("2024-CV-12"))
		Expect(rec.CostTaxBid).To(Equal("1500.5"))
		Expect(rec.Plaintiff).To(Equal("Bank"))
		Expect(rec.AttorneyForPlaintiff).To(Equal("Smith LLP"))
		Expect(rec.Defendant).To(Equal("Doe Jane"))
		Expect(rec.PropertyAddress).To(Equal("1 Elm St Springfield"))
		Expect(rec.ParcelTaxID).To(Equal("12-34"))
		Expect(rec.CreatedBy).To(Equal(models.DefaultCreatedBy))
		Expect(rec.CreatedAt).To(Equal(now))
		Expect(rec.ZillowLink).To(BeEmpty())
	})

	It("derives the listing link for single-tract properties", func() {
		rec := services.NormalizeProperty(services.RawProperty{
			"Tracts":          "1",
			"PropertyAddress": "123 Main St",
		}, 1, now)
		Expect(rec.ZillowLink).To(Equal("https://www.zillow.com/homes/123-Main-St_rb/"))
	})

	It("derives no link without an address", func() {
		Expect(services.ZillowLink("1", "")).To(BeEmpty())
		Expect(services.ZillowLink("1", "   ")).To(BeEmpty())
		Expect(services.ZillowLink("2", "123 Main St")).To(BeEmpty())
	})
})
