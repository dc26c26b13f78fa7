package itemledger

import (
	"context"
	"fmt"
	"time"

	"salesflow/internal/core/apperror"
	"salesflow/internal/core/features"
	"salesflow/internal/core/id"
	"salesflow/internal/domain/catalogs/item"
	"salesflow/pkg/logger"
)

// ItemReader resolves catalog items referenced by lines.
type ItemReader interface {
	GetByIDs(ctx context.Context, ids []id.ID) (map[id.ID]*item.Item, error)
}

// Service records document lines and keeps derived stock consistent with them.
// Transactions are managed by the caller (the sales service).
type Service struct {
	repo  Repository
	items ItemReader
	flags features.Provider
}

// NewService creates a new item ledger service.
func NewService(repo Repository, items ItemReader, flags features.Provider) *Service {
	return &Service{
		repo:  repo,
		items: items,
		flags: flags,
	}
}

// BuildLines validates inputs and turns them into ledger rows for owner
// without persisting anything. A failing line rejects the whole set.
func (s *Service) BuildLines(ctx context.Context, owner Owner, code UniqueCode, date time.Time, inputs []LineInput) ([]Transaction, error) {
	if len(inputs) == 0 {
		return nil, apperror.NewValidation("at least one line is required").
			WithDetail("field", "lines")
	}

	itemIDs := make([]id.ID, 0, len(inputs))
	seen := make(map[id.ID]struct{}, len(inputs))
	for i, in := range inputs {
		if err := validateLineInput(in); err != nil {
			return nil, withLine(err, i+1)
		}
		if _, ok := seen[in.ItemID]; !ok {
			seen[in.ItemID] = struct{}{}
			itemIDs = append(itemIDs, in.ItemID)
		}
	}

	items, err := s.items.GetByIDs(ctx, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}

	restrictMRP := s.flags.IsEnabled(ctx, features.FlagRestrictSellAboveMRP)
	restrictMSP := s.flags.IsEnabled(ctx, features.FlagRestrictSellBelowMSP)

	now := time.Now().UTC()
	lines := make([]Transaction, 0, len(inputs))
	for i, in := range inputs {
		lineNo := i + 1
		it, ok := items[in.ItemID]
		if !ok {
			return nil, apperror.NewNotFound("item", in.ItemID.String()).WithDetail("lineNo", lineNo)
		}

		if restrictMRP && it.AboveMRP(in.UnitPrice) {
			return nil, apperror.NewPriceRestriction(
				fmt.Sprintf("price %s exceeds maximum retail price %s", in.UnitPrice, it.MRP.String()),
			).WithDetail("lineNo", lineNo).WithDetail("itemId", it.ID)
		}
		if restrictMSP && it.BelowMSP(in.UnitPrice) {
			return nil, apperror.NewPriceRestriction(
				fmt.Sprintf("price %s is below minimum selling price %s", in.UnitPrice, it.MSP.String()),
			).WithDetail("lineNo", lineNo).WithDetail("itemId", it.ID)
		}

		amounts, err := ComputeAmounts(in)
		if err != nil {
			return nil, withLine(err, lineNo)
		}

		discountType := in.DiscountType
		if discountType == "" {
			discountType = DiscountPercentage
		}

		line := Transaction{
			ID:              id.New(),
			OwnerType:       owner.Type,
			OwnerID:         owner.ID,
			LineNo:          lineNo,
			ItemID:          in.ItemID,
			WarehouseID:     in.WarehouseID,
			Quantity:        in.Quantity,
			TrackingType:    it.TrackingType,
			UnitPrice:       in.UnitPrice,
			DiscountType:    discountType,
			Discount:        in.Discount,
			DiscountAmount:  amounts.DiscountAmount,
			TaxRate:         in.TaxRate,
			TaxAmount:       amounts.TaxAmount,
			ChargeAmount:    in.ChargeAmount,
			Total:           amounts.Total,
			UniqueCode:      code,
			TransactionDate: date,
			CreatedAt:       now,
		}

		if err := attachSubLedger(&line, in); err != nil {
			return nil, withLine(err, lineNo)
		}

		lines = append(lines, line)
	}

	return lines, nil
}

// SaveLines persists built lines and recomputes stock for the pairs they touch.
func (s *Service) SaveLines(ctx context.Context, lines []Transaction) error {
	if len(lines) == 0 {
		return nil
	}

	if err := s.repo.InsertLines(ctx, lines); err != nil {
		return fmt.Errorf("insert lines: %w", err)
	}

	if err := s.repo.RecalculateStock(ctx, keysOf(lines)); err != nil {
		return fmt.Errorf("recalculate stock: %w", err)
	}

	logger.Info(ctx, "recorded item transactions",
		"count", len(lines),
		"owner", lines[0].Owner().String(),
		"unique_code", lines[0].UniqueCode,
	)
	return nil
}

// RecordLines builds and saves lines in one step.
func (s *Service) RecordLines(ctx context.Context, owner Owner, code UniqueCode, date time.Time, inputs []LineInput) ([]Transaction, error) {
	lines, err := s.BuildLines(ctx, owner, code, date, inputs)
	if err != nil {
		return nil, err
	}
	if err := s.SaveLines(ctx, lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// ReplaceLines deletes every existing line of owner and stores lines instead.
// Stock is recomputed for the union of old and new pairs.
func (s *Service) ReplaceLines(ctx context.Context, owner Owner, lines []Transaction) error {
	oldKeys, err := s.repo.DeleteLines(ctx, owner)
	if err != nil {
		return fmt.Errorf("delete lines: %w", err)
	}

	if len(lines) > 0 {
		if err := s.repo.InsertLines(ctx, lines); err != nil {
			return fmt.Errorf("insert lines: %w", err)
		}
	}

	keys := mergeKeys(oldKeys, keysOf(lines))
	if err := s.repo.RecalculateStock(ctx, keys); err != nil {
		return fmt.Errorf("recalculate stock: %w", err)
	}

	logger.Info(ctx, "replaced item transactions",
		"owner", owner.String(),
		"removed_keys", len(oldKeys),
		"count", len(lines),
	)
	return nil
}

// TransitionUniqueCode flips every row of owner tagged from to the code to,
// then re-sums stock for the document's pairs. Calling it twice is harmless.
func (s *Service) TransitionUniqueCode(ctx context.Context, owner Owner, from, to UniqueCode) (int64, error) {
	if from == to {
		return 0, nil
	}

	flipped, err := s.repo.FlipUniqueCode(ctx, owner, from, to)
	if err != nil {
		return 0, fmt.Errorf("flip unique code: %w", err)
	}
	if flipped == 0 {
		return 0, nil
	}

	keys, err := s.repo.StockKeys(ctx, owner)
	if err != nil {
		return 0, fmt.Errorf("stock keys: %w", err)
	}
	if err := s.repo.RecalculateStock(ctx, keys); err != nil {
		return 0, fmt.Errorf("recalculate stock: %w", err)
	}

	logger.Info(ctx, "unique code transitioned",
		"owner", owner.String(),
		"from", from,
		"to", to,
		"lines", flipped,
	)
	return flipped, nil
}

// DeductLines marks the lines of owner as having left the warehouse.
func (s *Service) DeductLines(ctx context.Context, owner Owner) (int64, error) {
	return s.TransitionUniqueCode(ctx, owner, CodeSaleOrder, CodeSale)
}

// RestoreLines reverses a deduction: the goods count as on hand again.
func (s *Service) RestoreLines(ctx context.Context, owner Owner) (int64, error) {
	return s.TransitionUniqueCode(ctx, owner, CodeSale, CodeSaleOrder)
}

// CopyLines replicates the lines of from onto to with fresh identifiers and
// the given code. Quantities, prices, batches and serials are kept.
func (s *Service) CopyLines(ctx context.Context, from, to Owner, code UniqueCode, date time.Time) ([]Transaction, error) {
	src, err := s.repo.GetLines(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}

	now := time.Now().UTC()
	lines := make([]Transaction, 0, len(src))
	for _, l := range src {
		cp := l
		cp.ID = id.New()
		cp.OwnerType = to.Type
		cp.OwnerID = to.ID
		cp.UniqueCode = code
		cp.TransactionDate = date
		cp.CreatedAt = now

		if l.Batch != nil {
			b := *l.Batch
			b.ID = id.New()
			b.ItemTransactionID = cp.ID
			b.UniqueCode = code
			cp.Batch = &b
		}
		if len(l.Serials) > 0 {
			cp.Serials = make([]SerialTransaction, len(l.Serials))
			for i, sr := range l.Serials {
				cp.Serials[i] = SerialTransaction{
					ID:                id.New(),
					ItemTransactionID: cp.ID,
					SerialCode:        sr.SerialCode,
					UniqueCode:        code,
				}
			}
		}

		lines = append(lines, cp)
	}

	if err := s.SaveLines(ctx, lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// GetLines returns the lines of a document.
func (s *Service) GetLines(ctx context.Context, owner Owner) ([]Transaction, error) {
	return s.repo.GetLines(ctx, owner)
}

// GetStock returns on-hand quantity of an item in a warehouse.
func (s *Service) GetStock(ctx context.Context, itemID, warehouseID id.ID) (Stock, error) {
	return s.repo.GetStock(ctx, StockKey{ItemID: itemID, WarehouseID: warehouseID})
}

// Reconcile rebuilds every stock row that disagrees with the ledger and
// returns what was corrected.
func (s *Service) Reconcile(ctx context.Context) ([]StockDrift, error) {
	drift, err := s.repo.FindDrift(ctx)
	if err != nil {
		return nil, fmt.Errorf("find drift: %w", err)
	}
	if len(drift) == 0 {
		return nil, nil
	}

	keys := make([]StockKey, len(drift))
	for i, d := range drift {
		keys[i] = StockKey{ItemID: d.ItemID, WarehouseID: d.WarehouseID}
		logger.Warn(ctx, "stock drift detected",
			"item_id", d.ItemID,
			"warehouse_id", d.WarehouseID,
			"stored", d.Stored.String(),
			"ledger", d.Ledger.String(),
		)
	}

	if err := s.repo.RecalculateStock(ctx, keys); err != nil {
		return nil, fmt.Errorf("recalculate stock: %w", err)
	}
	return drift, nil
}

// --- helpers ---

func validateLineInput(in LineInput) error {
	if id.IsNil(in.ItemID) {
		return apperror.NewValidation("item is required").WithDetail("field", "itemId")
	}
	if id.IsNil(in.WarehouseID) {
		return apperror.NewValidation("warehouse is required").WithDetail("field", "warehouseId")
	}
	if in.Quantity.IsNegative() {
		return apperror.NewInvalidQuantity("quantity cannot be negative")
	}
	if in.Quantity.IsZero() {
		return apperror.NewInvalidQuantity("quantity must be greater than zero")
	}
	return nil
}

// attachSubLedger checks the batch/serial payload against the line's
// tracking type and attaches the resulting rows.
func attachSubLedger(line *Transaction, in LineInput) error {
	switch line.TrackingType {
	case item.TrackingBatch:
		if len(in.Serials) > 0 {
			return apperror.NewValidation("serial codes are not accepted for a batch-tracked item").
				WithDetail("field", "serials")
		}
		if len(in.Batches) != 1 {
			return apperror.NewCountMismatch("batch", 1, len(in.Batches))
		}
		b := in.Batches[0]
		if b.BatchNo == "" {
			return apperror.NewValidation("batch number is required").WithDetail("field", "batchNo")
		}
		qty := b.Quantity
		if qty.IsZero() {
			qty = line.Quantity
		}
		if qty != line.Quantity {
			return apperror.NewCountMismatch("batch", line.Quantity.String(), qty.String())
		}
		if b.MfgDate != nil && b.ExpDate != nil && b.ExpDate.Before(*b.MfgDate) {
			return apperror.NewValidation("expiry date is before manufacturing date").
				WithDetail("field", "expDate")
		}
		line.Batch = &BatchTransaction{
			ID:                id.New(),
			ItemTransactionID: line.ID,
			BatchNo:           b.BatchNo,
			MfgDate:           b.MfgDate,
			ExpDate:           b.ExpDate,
			Quantity:          qty,
			UniqueCode:        line.UniqueCode,
		}

	case item.TrackingSerial:
		if len(in.Batches) > 0 {
			return apperror.NewValidation("batches are not accepted for a serial-tracked item").
				WithDetail("field", "batches")
		}
		if !line.Quantity.IsWhole() {
			return apperror.NewInvalidQuantity("quantity of a serial-tracked item must be a whole number")
		}
		if int64(len(in.Serials)) != line.Quantity.Units() {
			return apperror.NewCountMismatch("serial", line.Quantity.Units(), len(in.Serials))
		}
		seen := make(map[string]struct{}, len(in.Serials))
		line.Serials = make([]SerialTransaction, 0, len(in.Serials))
		for _, code := range in.Serials {
			if code == "" {
				return apperror.NewValidation("serial code cannot be empty").WithDetail("field", "serials")
			}
			if _, dup := seen[code]; dup {
				return apperror.NewValidation("duplicate serial code").
					WithDetail("field", "serials").
					WithDetail("serialCode", code)
			}
			seen[code] = struct{}{}
			line.Serials = append(line.Serials, SerialTransaction{
				ID:                id.New(),
				ItemTransactionID: line.ID,
				SerialCode:        code,
				UniqueCode:        line.UniqueCode,
			})
		}

	default:
		if len(in.Batches) > 0 || len(in.Serials) > 0 {
			return apperror.NewValidation("item is not batch or serial tracked").
				WithDetail("field", "trackingType")
		}
	}
	return nil
}

func withLine(err error, lineNo int) error {
	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr.WithDetail("lineNo", lineNo)
	}
	return err
}

func keysOf(lines []Transaction) []StockKey {
	keys := make([]StockKey, len(lines))
	for i := range lines {
		keys[i] = lines[i].StockKey()
	}
	return mergeKeys(nil, keys)
}

// mergeKeys returns the distinct keys of a and b, in first-seen order.
func mergeKeys(a, b []StockKey) []StockKey {
	seen := make(map[StockKey]struct{}, len(a)+len(b))
	out := make([]StockKey, 0, len(a)+len(b))
	for _, list := range [][]StockKey{a, b} {
		for _, k := range list {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}
