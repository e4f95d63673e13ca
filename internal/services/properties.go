package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/receiptsllc/sheriffsale/internal/models"
)

// MaxFieldLength is the number of characters kept from any extracted value.
const MaxFieldLength = 254

const zillowLinkTemplate = "https://www.zillow.com/homes/%s_rb/"

// Field names returned by property extractors.
const (
	FieldSale                 = "Sale"
	FieldCaseNumber           = "caseNum"
	FieldSaleType             = "SaleType"
	FieldStatus               = "Status"
	FieldTracts               = "Tracts"
	FieldCostTaxBid           = "CostTaxBid"
	FieldPlaintiff            = "Plantiff"
	FieldAttorneyForPlaintiff = "AttorneyForPlantiff"
	FieldDefendant            = "Defendents"
	FieldPropertyAddress      = "PropertyAddress"
	FieldMunicipality         = "Municipality"
	FieldParcelTaxID          = "ParcelTaxId"
	FieldComments             = "Comments"
	FieldAmountInDispute      = "AmountInDispute"
)

// ExtractedFields lists every field name an extractor is asked for.
var ExtractedFields = []string{
	FieldSale, FieldCaseNumber, FieldSaleType, FieldStatus, FieldTracts,
	FieldCostTaxBid, FieldPlaintiff, FieldAttorneyForPlaintiff, FieldDefendant,
	FieldPropertyAddress, FieldMunicipality, FieldParcelTaxID, FieldComments,
}

// RawProperty is one extracted property as field name to value. Values may be
// missing or nil.
type RawProperty map[string]any

// NormalizeProperty turns raw extractor output into a storable record: every
// value truncated to MaxFieldLength, missing values as "", and the listing
// link derived for single-tract properties.
func NormalizeProperty(raw RawProperty, childID int64, now time.Time) models.PropertyRecord {
	rec := models.PropertyRecord{
		ChildID:              childID,
		Sale:                 field(raw, FieldSale),
		CaseNumber:           field(raw, FieldCaseNumber),
		SaleType:             field(raw, FieldSaleType),
		Status:               field(raw, FieldStatus),
		Tracts:               field(raw, FieldTracts),
		CostTaxBid:           field(raw, FieldCostTaxBid),
		Plaintiff:            field(raw, FieldPlaintiff),
		AttorneyForPlaintiff: field(raw, FieldAttorneyForPlaintiff),
		Defendant:            oneLine(field(raw, FieldDefendant)),
		PropertyAddress:      oneLine(field(raw, FieldPropertyAddress)),
		Municipality:         field(raw, FieldMunicipality),
		ParcelTaxID:          field(raw, FieldParcelTaxID),
		Comments:             field(raw, FieldComments),
		AmountInDispute:      field(raw, FieldAmountInDispute),
		CreatedAt:            now,
		CreatedBy:            models.DefaultCreatedBy,
	}
	rec.ZillowLink = truncate(ZillowLink(rec.Tracts, rec.PropertyAddress))
	return rec
}

// ZillowLink builds the listing search URL for a single-tract property. It
// returns "" unless tracts is "1" and address is non-empty.
func ZillowLink(tracts, address string) string {
	address = strings.TrimSpace(address)
	if tracts != "1" || address == "" {
		return ""
	}
	return fmt.Sprintf(zillowLinkTemplate, strings.ReplaceAll(address, " ", "-"))
}

func field(raw RawProperty, key string) string {
	v, ok := raw[key]
	if !ok || v == nil {
		return ""
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case fmt.Stringer:
		s = t.String()
	default:
		s = fmt.Sprint(t)
	}
	return truncate(strings.TrimSpace(s))
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= MaxFieldLength {
		return s
	}
	return string(r[:MaxFieldLength])
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	return strings.ReplaceAll(s, "\n", " ")
}
