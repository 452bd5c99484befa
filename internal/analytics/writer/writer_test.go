package writer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/brickapparel/storefront-backend/internal/analytics/types"
)

func TestNewWriterValidation(t *testing.T) {
	if _, err := New(nil, Config{}); err == nil {
		t.Fatal("expected error when client missing")
	}
	if _, err := New(&fakeInserter{}, Config{OrderTable: "orders", PaymentTable: " ", InventoryTable: "inv"}); err == nil {
		t.Fatal("expected error when payment table missing")
	}
	if _, err := New(&fakeInserter{}, Config{OrderTable: "orders", PaymentTable: "payments"}); err == nil {
		t.Fatal("expected error when inventory table missing")
	}
}

func TestEncodeJSON(t *testing.T) {
	nj, err := EncodeJSON(map[string]any{"sku": "ABC-S-RED"})
	if err != nil {
		t.Fatalf("unexpected error encoding json: %v", err)
	}
	if !nj.Valid {
		t.Fatal("expected json to be marked valid")
	}

	nj, err = EncodeJSON(nil)
	if err != nil || nj.Valid {
		t.Fatalf("expected invalid null json, got %+v err=%v", nj, err)
	}

	raw := json.RawMessage(`{"order_id":"o-1"}`)
	nj, err = EncodeJSON(raw)
	if err != nil {
		t.Fatalf("unexpected error encoding raw json: %v", err)
	}
	if nj.JSONVal != string(raw) {
		t.Fatalf("expected raw json passed through, got %s", nj.JSONVal)
	}
}

func TestWriterRetriesOnTransientError(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	fake.responses = []error{&googleapi.Error{Code: http.StatusServiceUnavailable}, nil}

	if err := writer.InsertPaymentFact(context.Background(), types.PaymentFactRow{EventID: "1"}); err != nil {
		t.Fatalf("unexpected error writing row: %v", err)
	}
	if len(fake.calls) != 2 {
		t.Fatalf("expected two insert attempts, got %d", len(fake.calls))
	}
	if fake.calls[1].table != "payment_facts" {
		t.Fatalf("expected payment table on retry, got %s", fake.calls[1].table)
	}
	if writer.buffered("payment_facts") != 0 {
		t.Fatal("expected buffer to be empty after success")
	}
}

func TestWriterStopsOnPermanentError(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	fake.responses = []error{&googleapi.Error{Code: http.StatusBadRequest}}

	if err := writer.InsertOrderFact(context.Background(), types.OrderFactRow{EventID: "1"}); err == nil {
		t.Fatal("expected error")
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected one attempt, got %d", len(fake.calls))
	}
}

func TestWriterGivesUpAfterMaxAttempts(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	transient := &googleapi.Error{Code: http.StatusTooManyRequests}
	fake.responses = []error{transient, transient, transient, transient}

	err := writer.InsertInventoryFacts(context.Background(), []types.InventoryFactRow{{EventID: "1", SKU: "X", Delta: -2}})
	if !errors.As(err, new(*googleapi.Error)) {
		t.Fatalf("expected wrapped api error, got %v", err)
	}
	if len(fake.calls) != defaultMaxAttempts {
		t.Fatalf("expected %d attempts, got %d", defaultMaxAttempts, len(fake.calls))
	}
}

func TestWriterBatchesOrderFacts(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	writer.batchSize = 2

	if err := writer.InsertOrderFact(context.Background(), types.OrderFactRow{EventID: "1"}); err != nil {
		t.Fatalf("unexpected error on first insert: %v", err)
	}
	if len(fake.calls) != 0 {
		t.Fatalf("expected no insert before batch full, got %d", len(fake.calls))
	}
	if err := writer.InsertOrderFact(context.Background(), types.OrderFactRow{EventID: "2"}); err != nil {
		t.Fatalf("unexpected error on second insert: %v", err)
	}
	if len(fake.calls) != 1 || fake.calls[0].rowCount != 2 {
		t.Fatalf("expected one two-row insert, got %+v", fake.calls)
	}
}

func TestWriterFlushWritesBothBuffers(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	writer.batchSize = 10
	_ = writer.InsertOrderFact(context.Background(), types.OrderFactRow{EventID: "1"})
	_ = writer.InsertPaymentFact(context.Background(), types.PaymentFactRow{EventID: "2"})

	if err := writer.Flush(context.Background()); err != nil {
		t.Fatalf("unexpected flush error: %v", err)
	}
	if len(fake.calls) != 2 {
		t.Fatalf("expected two inserts, got %d", len(fake.calls))
	}
	if writer.buffered("order_facts") != 0 || writer.buffered("payment_facts") != 0 {
		t.Fatal("expected buffers drained")
	}
}

func TestFailedFlushKeepsRows(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	writer.batchSize = 10
	fake.responses = []error{&googleapi.Error{Code: http.StatusBadRequest}}
	_ = writer.InsertOrderFact(context.Background(), types.OrderFactRow{EventID: "1"})

	if err := writer.Flush(context.Background()); err == nil {
		t.Fatal("expected flush error")
	}
	if writer.buffered("order_facts") != 1 {
		t.Fatal("rejected rows should stay buffered")
	}
	if err := writer.Flush(context.Background()); err != nil {
		t.Fatalf("second flush: %v", err)
	}
	if writer.buffered("order_facts") != 0 {
		t.Fatal("expected buffer drained after retry")
	}
}

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"unavailable api", &googleapi.Error{Code: http.StatusServiceUnavailable}, true},
		{"bad request", &googleapi.Error{Code: http.StatusBadRequest}, false},
		{"grpc unavailable", status.Error(codes.Unavailable, "down"), true},
		{"grpc invalid", status.Error(codes.InvalidArgument, "bad"), false},
		{"plain", errors.New("boom"), false},
		{"all rows transient", bigquery.PutMultiError{{Errors: bigquery.MultiError{&googleapi.Error{Code: http.StatusInternalServerError}}}}, true},
		{"one row permanent", bigquery.PutMultiError{
			{Errors: bigquery.MultiError{&googleapi.Error{Code: http.StatusInternalServerError}}},
			{Errors: bigquery.MultiError{&googleapi.Error{Code: http.StatusBadRequest}}},
		}, false},
	}
	for _, c := range cases {
		if got := retryable(c.err); got != c.want {
			t.Fatalf("%s: expected %v, got %v", c.name, c.want, got)
		}
	}
}

type insertCall struct {
	table    string
	rowCount int
}

type fakeInserter struct {
	responses []error
	calls     []insertCall
}

func (f *fakeInserter) InsertRows(_ context.Context, table string, rows []any) error {
	var err error
	if len(f.calls) < len(f.responses) {
		err = f.responses[len(f.calls)]
	}
	f.calls = append(f.calls, insertCall{table: table, rowCount: len(rows)})
	return err
}

func newWriterWithFakeInserter(t *testing.T) (*BigQueryWriter, *fakeInserter) {
	t.Helper()
	fake := &fakeInserter{}
	writer, err := New(fake, Config{
		OrderTable:     "order_facts",
		PaymentTable:   "payment_facts",
		InventoryTable: "inventory_facts",
	})
	if err != nil {
		t.Fatalf("construct writer: %v", err)
	}
	writer.sleep = func(context.Context, time.Duration) error { return nil }
	return writer, fake
}
