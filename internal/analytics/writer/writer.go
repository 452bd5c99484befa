package writer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/brickapparel/storefront-backend/internal/analytics/types"
	pkgbigquery "github.com/brickapparel/storefront-backend/pkg/bigquery"
	"github.com/brickapparel/storefront-backend/pkg/config"
)

const defaultBatchSize = 1

// Config names the fact tables and the insert retry policy.
type Config struct {
	OrderTable     string
	PaymentTable   string
	InventoryTable string
	// BatchSize is how many order or payment rows are held before an insert.
	// Inventory rows for one event always go out together.
	BatchSize   int
	RetryPolicy RetryPolicy
}

// ConfigFromEnv maps the BigQuery env config onto writer tables.
func ConfigFromEnv(cfg config.BigQueryConfig) Config {
	return Config{
		OrderTable:     cfg.OrderFactsTable,
		PaymentTable:   cfg.PaymentFactsTable,
		InventoryTable: cfg.InventoryFactsTable,
		BatchSize:      cfg.BatchSize,
	}
}

// BigQueryWriter inserts fact rows into their tables with retries.
type BigQueryWriter struct {
	client         pkgbigquery.RowInserter
	orderTable     string
	paymentTable   string
	inventoryTable string
	batchSize      int
	retry          RetryPolicy
	sleep          func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	pending map[string][]any
}

func New(client pkgbigquery.RowInserter, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	w := &BigQueryWriter{
		client:         client,
		orderTable:     strings.TrimSpace(cfg.OrderTable),
		paymentTable:   strings.TrimSpace(cfg.PaymentTable),
		inventoryTable: strings.TrimSpace(cfg.InventoryTable),
		batchSize:      cfg.BatchSize,
		retry:          cfg.RetryPolicy.withDefaults(),
		sleep:          sleepContext,
		pending:        map[string][]any{},
	}
	for _, t := range []struct{ kind, name string }{
		{"order", w.orderTable},
		{"payment", w.paymentTable},
		{"inventory", w.inventoryTable},
	} {
		if t.name == "" {
			return nil, fmt.Errorf("%s facts table is required", t.kind)
		}
	}
	if w.batchSize <= 0 {
		w.batchSize = defaultBatchSize
	}
	return w, nil
}

func (w *BigQueryWriter) InsertOrderFact(ctx context.Context, row types.OrderFactRow) error {
	return w.buffer(ctx, w.orderTable, &row)
}

func (w *BigQueryWriter) InsertPaymentFact(ctx context.Context, row types.PaymentFactRow) error {
	return w.buffer(ctx, w.paymentTable, &row)
}

func (w *BigQueryWriter) InsertInventoryFacts(ctx context.Context, rows []types.InventoryFactRow) error {
	batch := make([]any, len(rows))
	for i := range rows {
		batch[i] = &rows[i]
	}
	return w.insertWithRetry(ctx, w.inventoryTable, batch)
}

// Flush writes every buffered row. A failed table keeps its rows so the next
// flush tries them again.
func (w *BigQueryWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs error
	for _, table := range []string{w.orderTable, w.paymentTable} {
		errs = multierr.Append(errs, w.flushLocked(ctx, table))
	}
	return errs
}

func (w *BigQueryWriter) buffer(ctx context.Context, table string, row any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[table] = append(w.pending[table], row)
	if len(w.pending[table]) < w.batchSize {
		return nil
	}
	return w.flushLocked(ctx, table)
}

func (w *BigQueryWriter) flushLocked(ctx context.Context, table string) error {
	rows := w.pending[table]
	if len(rows) == 0 {
		return nil
	}
	if err := w.insertWithRetry(ctx, table, rows); err != nil {
		return err
	}
	delete(w.pending, table)
	return nil
}

func (w *BigQueryWriter) buffered(table string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending[table])
}
