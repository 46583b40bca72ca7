package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilworks/blindbet/internal/domain"
	"github.com/veilworks/blindbet/internal/store/memory"
)

type capturedPut struct {
	path        string
	contentType string
	body        []byte
}

type fakeWriter struct {
	puts []capturedPut
}

func (w *fakeWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.puts = append(w.puts, capturedPut{path: path, contentType: contentType, body: body})
	return nil
}

func TestArchiveSettledExportsOnlyResolvedMarkets(t *testing.T) {
	ctx := context.Background()
	markets := memory.NewMarketStore()
	events := memory.NewEventStore()
	writer := &fakeWriter{}

	creator := common.HexToAddress("0x00000000000000000000000000000000000c4ea7")
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	id1, err := markets.Create(ctx, domain.Market{Question: "first?", Creator: creator})
	if err != nil {
		t.Fatalf("create market: %v", err)
	}
	if _, err := markets.Create(ctx, domain.Market{Question: "second?", Creator: creator}); err != nil {
		t.Fatalf("create market: %v", err)
	}
	if err := markets.SetResolved(ctx, id1, domain.OutcomeYes); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	for _, kind := range []domain.EventKind{
		domain.EventMarketCreated,
		domain.EventBetPlaced,
		domain.EventMarketResolved,
	} {
		if err := events.Append(ctx, domain.Event{Kind: kind, MarketID: id1, At: now}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := NewArchiver(markets, events, writer, time.Minute, logger)
	a.SetClock(func() time.Time { return now })

	n, err := a.ArchiveSettled(ctx)
	if err != nil {
		t.Fatalf("ArchiveSettled: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 archived market, got %d", n)
	}
	if len(writer.puts) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(writer.puts))
	}

	put := writer.puts[0]
	if put.path != "archive/markets/1.jsonl" {
		t.Fatalf("unexpected object key %q", put.path)
	}
	if put.contentType != "application/x-ndjson" {
		t.Fatalf("unexpected content type %q", put.contentType)
	}

	var lines [][]byte
	sc := bufio.NewScanner(bytes.NewReader(put.body))
	for sc.Scan() {
		lines = append(lines, append([]byte(nil), sc.Bytes()...))
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(lines) != 4 {
		t.Fatalf("expected header plus 3 events, got %d lines", len(lines))
	}

	var header map[string]any
	if err := json.Unmarshal(lines[0], &header); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if header["question"] != "first?" {
		t.Fatalf("unexpected question %v", header["question"])
	}
	if header["outcome"] != "yes" {
		t.Fatalf("unexpected outcome %v", header["outcome"])
	}
	if header["archived_at"] != now.Format(time.RFC3339) {
		t.Fatalf("unexpected archived_at %v", header["archived_at"])
	}
}

func TestArchiveSettledIsIdempotent(t *testing.T) {
	ctx := context.Background()
	markets := memory.NewMarketStore()
	events := memory.NewEventStore()
	writer := &fakeWriter{}

	id, err := markets.Create(ctx, domain.Market{Question: "again?"})
	if err != nil {
		t.Fatalf("create market: %v", err)
	}
	if err := markets.SetResolved(ctx, id, domain.OutcomeNo); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := NewArchiver(markets, events, writer, 0, logger)

	for i := 0; i < 2; i++ {
		if _, err := a.ArchiveSettled(ctx); err != nil {
			t.Fatalf("sweep %d: %v", i, err)
		}
	}
	if len(writer.puts) != 2 {
		t.Fatalf("expected 2 uploads, got %d", len(writer.puts))
	}
	if writer.puts[0].path != writer.puts[1].path {
		t.Fatalf("expected stable object key, got %q and %q", writer.puts[0].path, writer.puts[1].path)
	}
}
