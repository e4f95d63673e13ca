package models

import "time"

// DefaultCreatedBy is stamped on every row written by the ingestion pipeline.
const DefaultCreatedBy = "SherifSale"

// MasterSaleDocument is one uploaded sheriff-sale PDF. It is written once per
// ingestion call and never modified afterwards.
type MasterSaleDocument struct {
	ID        int64     `db:"id" json:"id"`
	FileHash  string    `db:"file_hash" json:"file_hash"`
	FilePath  string    `db:"file_path" json:"file_path"`
	FileName  string    `db:"file_name" json:"file_name"`
	PageCount int       `db:"pages_size" json:"pages_size"`
	SaleDate  time.Time `db:"sheriff_sale_date" json:"sheriff_sale_date"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	CreatedBy string    `db:"created_by" json:"created_by"`
}

// ChildPageDocument is a single page split out of a master document. FileHash
// is unique across all children and is the dedup boundary for resubmissions.
type ChildPageDocument struct {
	ID        int64     `db:"id" json:"id"`
	MasterID  int64     `db:"sheriff_sale_master_id" json:"sheriff_sale_master_id"`
	FileHash  string    `db:"file_hash" json:"file_hash"`
	FilePath  string    `db:"file_path" json:"file_path"`
	FileName  string    `db:"file_name" json:"file_name"`
	SaleDate  time.Time `db:"sheriff_sale_date" json:"sheriff_sale_date"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	CreatedBy string    `db:"created_by" json:"created_by"`
}

// PropertyRecord is one property listed on a child page.
type PropertyRecord struct {
	ID                   int64  `db:"id" json:"id"`
	ChildID              int64  `db:"sheriff_sale_child_id" json:"sheriff_sale_child_id"`
	Sale                 string `db:"sale" json:"sale"`
	CaseNumber           string `db:"case_number" json:"case_number"`
	SaleType             string `db:"sale_type" json:"sale_type"`
	Status               string `db:"status" json:"status"`
	Tracts               string `db:"tracts" json:"tracts"`
	CostTaxBid           string `db:"cost_tax_bid" json:"cost_tax_bid"`
	Plaintiff            string `db:"plaintiff" json:"plaintiff"`
	AttorneyForPlaintiff string `db:"attorney_for_plaintiff" json:"attorney_for_plaintiff"`
	Defendant            string `db:"defendant" json:"defendant"`
	PropertyAddress      string `db:"property_address" json:"property_address"`
	Municipality         string `db:"municipality" json:"municipality"`
	ParcelTaxID          string `db:"parcel_tax_id" json:"parcel_tax_id"`
	Comments             string `db:"comments" json:"comments"`
	ZillowLink           string `db:"zillow_link" json:"zillow_link"`
	AmountInDispute      string `db:"amount_in_dispute" json:"amount_in_dispute"`

	// Populated by the enrichment job, empty after ingestion.
	PropertyEnrichment

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	CreatedBy string    `db:"created_by" json:"created_by"`
}

// PropertyEnrichment holds market-estimate and physical-characteristic data.
type PropertyEnrichment struct {
	Zestimate             string `db:"zestimate" json:"zestimate"`
	Zestibuck             string `db:"zestibuck" json:"zestibuck"`
	Events                string `db:"events" json:"events"`
	Schools               string `db:"schools" json:"schools"`
	YearBuilt             string `db:"year_built" json:"year_built"`
	LotSize               string `db:"lot_size" json:"lot_size"`
	SquareFootRange       string `db:"square_foot_range" json:"square_foot_range"`
	SquareFoot            string `db:"square_foot" json:"square_foot"`
	Bedrooms              string `db:"bedrooms" json:"bedrooms"`
	Bathrooms             string `db:"bathrooms" json:"bathrooms"`
	HomeType              string `db:"home_type" json:"home_type"`
	Heating               string `db:"heating" json:"heating"`
	Cooling               string `db:"cooling" json:"cooling"`
	Parking               string `db:"parking" json:"parking"`
	Exterior              string `db:"exterior" json:"exterior"`
	ParcelNum             string `db:"parcel_num" json:"parcel_num"`
	ConstructionMaterials string `db:"construction_materials" json:"construction_materials"`
	Roof                  string `db:"roof" json:"roof"`
	Street                string `db:"street" json:"street"`
	City                  string `db:"city" json:"city"`
	State                 string `db:"state" json:"state"`
	Zip                   string `db:"zip" json:"zip"`
	County                string `db:"county" json:"county"`
}
