package db

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/brickapparel/storefront-backend/pkg/logger"
)

func newCapturingQueryLogger(threshold time.Duration) (gormlogger.Interface, *bytes.Buffer) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "db-test", Output: &buf})
	return newQueryLogger(logg, threshold), &buf
}

func TestQueryLoggerReportsSlowQueries(t *testing.T) {
	ql, buf := newCapturingQueryLogger(100 * time.Millisecond)
	stmt := func() (string, int64) { return "SELECT * FROM orders", 3 }

	ql.Trace(context.Background(), time.Now(), stmt, nil)
	if buf.Len() != 0 {
		t.Fatalf("fast query should not log, got %s", buf.String())
	}

	ql.Trace(context.Background(), time.Now().Add(-time.Second), stmt, nil)
	out := buf.String()
	if !strings.Contains(out, "slow query") || !strings.Contains(out, "SELECT * FROM orders") {
		t.Fatalf("expected slow query entry, got %s", out)
	}
}

func TestQueryLoggerSkipsRecordNotFound(t *testing.T) {
	ql, buf := newCapturingQueryLogger(0)
	stmt := func() (string, int64) { return "SELECT * FROM carts WHERE id = 1", 0 }

	ql.Trace(context.Background(), time.Now(), stmt, gorm.ErrRecordNotFound)
	if buf.Len() != 0 {
		t.Fatalf("not found should stay quiet, got %s", buf.String())
	}

	ql.Trace(context.Background(), time.Now(), stmt, errors.New("relation \"carts\" does not exist"))
	if !strings.Contains(buf.String(), "query failed") {
		t.Fatalf("expected query failure entry, got %s", buf.String())
	}
}

func TestQueryLoggerSilentMode(t *testing.T) {
	ql, buf := newCapturingQueryLogger(time.Nanosecond)
	silent := ql.LogMode(gormlogger.Silent)

	silent.Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) { return "SELECT 1", 1 }, errors.New("boom"))
	if buf.Len() != 0 {
		t.Fatalf("silent mode should not log, got %s", buf.String())
	}
}
