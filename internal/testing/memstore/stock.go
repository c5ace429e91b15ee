package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/inventory"
)

type InventoryRepo struct{ s *Store }

// AddBatch stores a batch, assigning an id when zero.
func (r *InventoryRepo) AddBatch(b inventory.Batch) inventory.Batch {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if b.ID == 0 {
		b.ID = r.s.nextID()
	}
	r.s.st.batches[b.ID] = b
	return b
}

// SetOnHand overwrites the quantity of a (location, batch) row.
func (r *InventoryRepo) SetOnHand(locationID, batchID int64, qty decimal.Decimal) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := pair{locationID, batchID}
	row := r.s.st.stock[key]
	row.LocationID, row.BatchID, row.Quantity = locationID, batchID, qty
	row.Version++
	r.s.st.stock[key] = row
}

// Movements returns every movement ordered by id.
func (r *InventoryRepo) Movements() []inventory.StockMovement {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]inventory.StockMovement, 0, len(r.s.st.movements))
	for _, m := range r.s.st.movements {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PutMovement stores a movement as-is.
func (r *InventoryRepo) PutMovement(m inventory.StockMovement) inventory.StockMovement {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if m.ID == 0 {
		m.ID = r.s.nextID()
	}
	r.s.st.movements[m.ID] = m
	return m
}

func (r *InventoryRepo) GetBatch(ctx context.Context, id int64) (inventory.Batch, error) {
	if err := r.s.begin("Inventory.GetBatch"); err != nil {
		return inventory.Batch{}, err
	}
	defer r.s.mu.Unlock()
	b, ok := r.s.st.batches[id]
	if !ok {
		return inventory.Batch{}, inventory.ErrBatchNotFound
	}
	return b, nil
}

func (r *InventoryRepo) GetOnHand(ctx context.Context, locationID, batchID int64) (inventory.StoreInventory, error) {
	if err := r.s.begin("Inventory.GetOnHand"); err != nil {
		return inventory.StoreInventory{}, err
	}
	defer r.s.mu.Unlock()
	row, ok := r.s.st.stock[pair{locationID, batchID}]
	if !ok {
		return inventory.StoreInventory{LocationID: locationID, BatchID: batchID}, inventory.ErrStockNotFound
	}
	return row, nil
}

func (r *InventoryRepo) GetOnHandForUpdate(ctx context.Context, locationID, batchID int64) (inventory.StoreInventory, error) {
	return r.GetOnHand(ctx, locationID, batchID)
}

func (r *InventoryRepo) ApplyDelta(ctx context.Context, locationID, batchID int64, delta decimal.Decimal, at time.Time) (inventory.StoreInventory, error) {
	if err := r.s.begin("Inventory.ApplyDelta"); err != nil {
		return inventory.StoreInventory{}, err
	}
	defer r.s.mu.Unlock()
	key := pair{locationID, batchID}
	row := r.s.st.stock[key]
	row.LocationID, row.BatchID = locationID, batchID
	row.Quantity = row.Quantity.Add(delta)
	row.Version++
	row.UpdatedAt = at
	r.s.st.stock[key] = row
	return row, nil
}

func (r *InventoryRepo) InsertMovement(ctx context.Context, m inventory.StockMovement) (inventory.StockMovement, error) {
	if err := r.s.begin("Inventory.InsertMovement"); err != nil {
		return inventory.StockMovement{}, err
	}
	defer r.s.mu.Unlock()
	m.ID = r.s.nextID()
	r.s.st.movements[m.ID] = m
	return m, nil
}

func (r *InventoryRepo) LinkPair(ctx context.Context, movementID, pairedID int64) error {
	if err := r.s.begin("Inventory.LinkPair"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	m, ok := r.s.st.movements[movementID]
	if !ok {
		return inventory.ErrMovementNotFound
	}
	m.PairedMovementID = &pairedID
	r.s.st.movements[movementID] = m
	return nil
}

func (r *InventoryRepo) StampJournal(ctx context.Context, movementIDs []int64, entryID int64) error {
	if err := r.s.begin("Inventory.StampJournal"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	for _, id := range movementIDs {
		m, ok := r.s.st.movements[id]
		if !ok || m.JournalEntryID != nil {
			return fmt.Errorf("%w: %d", inventory.ErrMovementNotFound, id)
		}
		entry := entryID
		m.JournalEntryID = &entry
		r.s.st.movements[id] = m
	}
	return nil
}

func (r *InventoryRepo) ListMovements(ctx context.Context, f inventory.MovementFilter) ([]inventory.StockMovement, error) {
	if err := r.s.begin("Inventory.ListMovements"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	var out []inventory.StockMovement
	for _, m := range r.s.st.movements {
		switch {
		case f.LocationID != 0 && m.LocationID != f.LocationID,
			f.BatchID != 0 && m.BatchID != f.BatchID,
			f.ReferenceType != "" && m.ReferenceType != f.ReferenceType,
			f.ReferenceNumber != "" && m.ReferenceNumber != f.ReferenceNumber,
			f.JournalEntryID != 0 && (m.JournalEntryID == nil || *m.JournalEntryID != f.JournalEntryID):
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *InventoryRepo) Drift(ctx context.Context) ([]inventory.Drift, error) {
	if err := r.s.begin("Inventory.Drift"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	totals := map[pair]decimal.Decimal{}
	for _, m := range r.s.st.movements {
		key := pair{m.LocationID, m.BatchID}
		totals[key] = totals[key].Add(m.Quantity)
	}
	keys := map[pair]struct{}{}
	for k := range totals {
		keys[k] = struct{}{}
	}
	for k := range r.s.st.stock {
		keys[k] = struct{}{}
	}
	var out []inventory.Drift
	for k := range keys {
		onHand := r.s.st.stock[k].Quantity
		if !onHand.Equal(totals[k]) {
			out = append(out, inventory.Drift{LocationID: k[0], BatchID: k[1], OnHand: onHand, FromMovements: totals[k]})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LocationID != out[j].LocationID {
			return out[i].LocationID < out[j].LocationID
		}
		return out[i].BatchID < out[j].BatchID
	})
	return out, nil
}
