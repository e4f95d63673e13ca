package db

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/receiptsllc/sheriffsale/internal/models"
	"github.com/receiptsllc/sheriffsale/internal/services"
)

// MemoryRepository keeps sale records in process memory. It enforces the same
// child hash uniqueness as the PostgreSQL schema and is used for local runs
// without a database and in tests.
type MemoryRepository struct {
	mu         sync.RWMutex
	nextID     int64
	masters    map[int64]models.MasterSaleDocument
	children   map[int64]models.ChildPageDocument
	byHash     map[string]int64
	properties map[int64][]models.PropertyRecord
}

var _ services.SaleRecordRepository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		masters:    make(map[int64]models.MasterSaleDocument),
		children:   make(map[int64]models.ChildPageDocument),
		byHash:     make(map[string]int64),
		properties: make(map[int64][]models.PropertyRecord),
	}
}

func (r *MemoryRepository) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *MemoryRepository) SaveMaster(ctx context.Context, doc *models.MasterSaleDocument) (int64, error) {
	if doc == nil {
		return 0, errors.New("nil master document")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.masters {
		if m.FileHash == doc.FileHash && m.FilePath == doc.FilePath {
			return 0, &services.PersistenceError{Op: "insert master", Err: errors.New("submission already recorded")}
		}
	}
	m := *doc
	m.ID = r.id()
	m.SaleDate = dateOnly(m.SaleDate)
	m.CreatedAt = createdAt(m.CreatedAt)
	m.CreatedBy = createdBy(m.CreatedBy)
	r.masters[m.ID] = m
	return m.ID, nil
}

func (r *MemoryRepository) SaveChild(ctx context.Context, doc *models.ChildPageDocument) (int64, error) {
	if doc == nil {
		return 0, errors.New("nil child document")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.masters[doc.MasterID]; !ok {
		return 0, &services.PersistenceError{Op: "insert child", Err: errors.New("unknown master")}
	}
	if _, ok := r.byHash[doc.FileHash]; ok {
		return 0, &services.DuplicateContentHashError{Hash: doc.FileHash}
	}
	c := *doc
	c.ID = r.id()
	c.SaleDate = dateOnly(c.SaleDate)
	c.CreatedAt = createdAt(c.CreatedAt)
	c.CreatedBy = createdBy(c.CreatedBy)
	r.children[c.ID] = c
	r.byHash[c.FileHash] = c.ID
	return c.ID, nil
}

func (r *MemoryRepository) UpdateChildSaleDateByHash(ctx context.Context, hash string, saleDate time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byHash[hash]
	if !ok {
		return false, nil
	}
	c := r.children[id]
	c.SaleDate = dateOnly(saleDate)
	r.children[id] = c
	return true, nil
}

func (r *MemoryRepository) SavePropertiesBatch(ctx context.Context, records []models.PropertyRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// Validate the whole batch before writing any of it.
	for _, rec := range records {
		if _, ok := r.children[rec.ChildID]; !ok {
			return &services.PersistenceError{Op: "insert property", Err: errors.New("unknown child")}
		}
	}
	for _, rec := range records {
		rec.ID = r.id()
		rec.CreatedAt = createdAt(rec.CreatedAt)
		rec.CreatedBy = createdBy(rec.CreatedBy)
		r.properties[rec.ChildID] = append(r.properties[rec.ChildID], rec)
	}
	return nil
}

func (r *MemoryRepository) GetSalesBetween(ctx context.Context, start, end time.Time) ([]models.ChildPageDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start, end = dateOnly(start), dateOnly(end)
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.ChildPageDocument
	for _, c := range r.children {
		if !c.SaleDate.Before(start) && !c.SaleDate.After(end) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SaleDate.Equal(out[j].SaleDate) {
			return out[i].SaleDate.Before(out[j].SaleDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepository) GetPropertiesBySaleID(ctx context.Context, childID int64) ([]models.PropertyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.PropertyRecord(nil), r.properties[childID]...), nil
}

// Masters returns every stored master document ordered by id.
func (r *MemoryRepository) Masters() []models.MasterSaleDocument {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.MasterSaleDocument, 0, len(r.masters))
	for _, m := range r.masters {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Children returns every stored child page ordered by id.
func (r *MemoryRepository) Children() []models.ChildPageDocument {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ChildPageDocument, 0, len(r.children))
	for _, c := range r.children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PropertyCount is the total number of stored property records.
func (r *MemoryRepository) PropertyCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, ps := range r.properties {
		n += len(ps)
	}
	return n
}
