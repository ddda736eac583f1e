package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/shopspring/decimal"

	"debtbook/internal/amqp"
	"debtbook/internal/core"
	"debtbook/internal/log"
	"debtbook/internal/metrics"
	"debtbook/internal/storage"
)

// EventPublisher is implemented by amqp.Client.
type EventPublisher interface {
	Publish(ctx context.Context, event amqp.LedgerEvent) error
}

// LedgerService is the API offered to callers of the ledger. Writes go to
// SQLite first; an event is published afterwards on a best-effort basis.
type LedgerService struct {
	store     *storage.SQLiteRepository
	publisher EventPublisher
	logger    *log.Logger
}

// NewLedgerService wires the store with an optional publisher. A nil
// publisher disables events.
func NewLedgerService(store *storage.SQLiteRepository, publisher EventPublisher, logger *log.Logger) *LedgerService {
	if logger == nil {
		logger = log.Nop()
	}
	return &LedgerService{
		store:     store,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentLedger),
	}
}

func (s *LedgerService) EnsureSchema(ctx context.Context) (storage.SchemaResult, error) {
	res, err := s.store.EnsureSchema(ctx)
	s.observe(ctx, log.OpEnsureSchema, err, nil)
	return res, err
}

// Admins

func (s *LedgerService) RegisterAdmin(ctx context.Context, id core.AdminID, name string) (core.Admin, error) {
	admin, err := s.store.RegisterAdmin(ctx, id, name)
	s.observe(ctx, log.OpRegisterAdmin, err, log.NewFields().With(log.FieldAdminID, int64(id)))
	if err != nil {
		return core.Admin{}, err
	}

	ev := amqp.NewLedgerEvent(amqp.KindAdminRegistered)
	ev.AdminID = int64(admin.ID)
	s.publish(ctx, ev)
	return admin, nil
}

func (s *LedgerService) GetAdmin(ctx context.Context, id core.AdminID) (core.Admin, error) {
	return s.store.GetAdmin(ctx, id)
}

func (s *LedgerService) ListAdmins(ctx context.Context) ([]core.Admin, error) {
	return s.store.ListAdmins(ctx)
}

// SetNickname stores the nickname. Setting the current value again succeeds
// without publishing anything.
func (s *LedgerService) SetNickname(ctx context.Context, id core.AdminID, nickname string) error {
	changed, err := s.store.SetNickname(ctx, id, nickname)
	s.observe(ctx, log.OpSetNickname, err, log.NewFields().With(log.FieldAdminID, int64(id)))
	if err != nil {
		return err
	}

	if changed {
		ev := amqp.NewLedgerEvent(amqp.KindNicknameSet)
		ev.AdminID = int64(id)
		s.publish(ctx, ev)
	}
	return nil
}

func (s *LedgerService) ClearNickname(ctx context.Context, id core.AdminID) error {
	changed, err := s.store.ClearNickname(ctx, id)
	s.observe(ctx, log.OpClearNickname, err, log.NewFields().With(log.FieldAdminID, int64(id)))
	if err != nil {
		return err
	}

	if changed {
		ev := amqp.NewLedgerEvent(amqp.KindNicknameCleared)
		ev.AdminID = int64(id)
		s.publish(ctx, ev)
	}
	return nil
}

// GetNickname returns the stored nickname; ok is false when there is none
// or the admin is unknown.
func (s *LedgerService) GetNickname(ctx context.Context, id core.AdminID) (nickname string, ok bool, err error) {
	return s.store.GetNickname(ctx, id)
}

// Products

// AddProduct creates a product priced in major units, e.g. 70 or 12.50.
func (s *LedgerService) AddProduct(ctx context.Context, name string, price decimal.Decimal) (core.ProductID, error) {
	money, err := core.MoneyFromDecimal(price)
	if err != nil {
		err = fmt.Errorf("add product %q: %w", name, err)
		s.observe(ctx, log.OpAddProduct, err, nil)
		return 0, err
	}

	product, err := s.store.AddProduct(ctx, name, money)
	s.observe(ctx, log.OpAddProduct, err, log.NewFields().With(log.FieldProductName, name))
	if err != nil {
		return 0, err
	}

	ev := amqp.NewLedgerEvent(amqp.KindProductAdded)
	ev.ProductID = int64(product.ID)
	ev.AmountCents = product.Price.Cents
	s.publish(ctx, ev)
	return product.ID, nil
}

func (s *LedgerService) GetProduct(ctx context.Context, id core.ProductID) (core.Product, error) {
	return s.store.GetProduct(ctx, id)
}

func (s *LedgerService) GetProductByName(ctx context.Context, name string) (core.Product, error) {
	return s.store.GetProductByName(ctx, name)
}

func (s *LedgerService) ListProducts(ctx context.Context) ([]core.Product, error) {
	return s.store.ListProducts(ctx)
}

func (s *LedgerService) UpdateProductPrice(ctx context.Context, id core.ProductID, price decimal.Decimal) (core.Product, error) {
	fields := log.NewFields().With(log.FieldProductID, int64(id))

	money, err := core.MoneyFromDecimal(price)
	if err != nil {
		err = fmt.Errorf("update price of product %d: %w", id, err)
		s.observe(ctx, log.OpUpdatePrice, err, fields)
		return core.Product{}, err
	}

	product, err := s.store.UpdateProductPrice(ctx, id, money)
	s.observe(ctx, log.OpUpdatePrice, err, fields)
	if err != nil {
		return core.Product{}, err
	}

	ev := amqp.NewLedgerEvent(amqp.KindProductPriceChanged)
	ev.ProductID = int64(id)
	ev.AmountCents = money.Cents
	s.publish(ctx, ev)
	return product, nil
}

func (s *LedgerService) DeleteProduct(ctx context.Context, id core.ProductID) error {
	err := s.store.DeleteProduct(ctx, id)
	s.observe(ctx, log.OpDeleteProduct, err, log.NewFields().With(log.FieldProductID, int64(id)))
	if err != nil {
		return err
	}

	ev := amqp.NewLedgerEvent(amqp.KindProductDeleted)
	ev.ProductID = int64(id)
	s.publish(ctx, ev)
	return nil
}

// Debts

func (s *LedgerService) RecordDebt(ctx context.Context, adminID core.AdminID, productID core.ProductID, quantity int) (core.DebtLineID, error) {
	line, err := s.store.RecordDebt(ctx, adminID, productID, quantity)
	s.observe(ctx, log.OpRecordDebt, err,
		log.NewFields().WithDebt(int64(adminID), int64(productID), quantity, line.Amount.Cents))
	if err != nil {
		return 0, err
	}

	ev := amqp.NewLedgerEvent(amqp.KindDebtRecorded)
	ev.AdminID = int64(line.AdminID)
	ev.ProductID = int64(line.ProductID)
	ev.DebtLineID = int64(line.ID)
	ev.AmountCents = line.Amount.Cents
	s.publish(ctx, ev)
	return line.ID, nil
}

func (s *LedgerService) ListDebtLines(ctx context.Context, adminID core.AdminID) ([]core.DebtLine, error) {
	return s.store.ListDebtLines(ctx, adminID)
}

// SettleAdmin clears the admin's debts and returns what was settled.
func (s *LedgerService) SettleAdmin(ctx context.Context, adminID core.AdminID) (core.Settlement, error) {
	settlement, err := s.store.SettleAdmin(ctx, adminID)
	s.observe(ctx, log.OpSettle, err, log.NewFields().With(log.FieldAdminID, int64(adminID)))
	if err != nil {
		return core.Settlement{}, err
	}

	if settlement.Lines > 0 {
		ev := amqp.NewLedgerEvent(amqp.KindDebtsSettled)
		ev.AdminID = int64(adminID)
		ev.AmountCents = settlement.Total.Cents
		s.publish(ctx, ev)
	}
	return settlement, nil
}

// Reports

func (s *LedgerService) TotalsByAdmin(ctx context.Context) (iter.Seq[core.AdminTotal], error) {
	seq, err := s.store.TotalsByAdmin(ctx)
	s.observeRead(ctx, err)
	return seq, err
}

func (s *LedgerService) TotalsByProduct(ctx context.Context) (iter.Seq[core.ProductTotal], error) {
	seq, err := s.store.TotalsByProduct(ctx)
	s.observeRead(ctx, err)
	return seq, err
}

func (s *LedgerService) DetailByAdmin(ctx context.Context) (iter.Seq[core.AdminDetail], error) {
	seq, err := s.store.DetailByAdmin(ctx)
	s.observeRead(ctx, err)
	return seq, err
}

func (s *LedgerService) GrandTotal(ctx context.Context) (core.Money, error) {
	total, err := s.store.GrandTotal(ctx)
	s.observeRead(ctx, err)
	return total, err
}

// Snapshot implements the report source used by report sinks.
func (s *LedgerService) Snapshot(ctx context.Context) (core.Report, error) {
	rep, err := s.store.Snapshot(ctx)
	s.observeRead(ctx, err)
	return rep, err
}

func (s *LedgerService) publish(ctx context.Context, ev amqp.LedgerEvent) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "No event publisher configured, skipping event", log.FieldEventKind, ev.Kind)
		return
	}

	if err := s.publisher.Publish(ctx, ev); err != nil {
		metrics.EventPublishFailures.Inc()
		// The write is committed; the worker's periodic resync repairs the sink.
		s.logger.LogError(ctx, "Failed to publish ledger event", err, string(ev.Kind), log.ErrorTypeNetwork,
			log.NewFields().With(log.FieldEventID, ev.ID.String()).With(log.FieldEventKind, ev.Kind))
	}
}

func (s *LedgerService) observe(ctx context.Context, op string, err error, fields log.LogFields) {
	metrics.LedgerOperations.WithLabelValues(op, metrics.Outcome(err)).Inc()
	if err == nil {
		return
	}
	if fields == nil {
		fields = log.NewFields()
	}

	if core.IsRecoverable(err) {
		fields.WithError(err).WithOperation(op).WithErrorType(ErrorType(err))
		s.logger.WarnContext(ctx, "Ledger operation rejected", fields.ToSlice()...)
		return
	}
	s.logger.LogError(ctx, "Ledger operation failed", err, op, ErrorType(err), fields)
}

func (s *LedgerService) observeRead(ctx context.Context, err error) {
	if err != nil {
		s.logger.LogError(ctx, "Report query failed", err, log.OpReport, ErrorType(err), nil)
	}
}

// ErrorType maps a ledger error to its log category.
func ErrorType(err error) string {
	var schemaErr *core.SchemaError
	switch {
	case errors.As(err, &schemaErr):
		return log.ErrorTypeSchema
	case errors.Is(err, core.ErrNotFound):
		return log.ErrorTypeNotFound
	case errors.Is(err, core.ErrDuplicateName), errors.Is(err, core.ErrProductInUse):
		return log.ErrorTypeConflict
	case core.IsRecoverable(err), errors.Is(err, core.ErrAmountOverflow):
		return log.ErrorTypeValidation
	case errors.Is(err, core.ErrStoreUnavailable):
		return log.ErrorTypeDatabase
	default:
		return log.ErrorTypeInternal
	}
}

// Close closes the store and, when it supports it, the publisher.
func (s *LedgerService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if closer, ok := s.publisher.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}

	return errors.Join(errs...)
}
