package market

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilworks/blindbet/internal/bus"
	"github.com/veilworks/blindbet/internal/domain"
	"github.com/veilworks/blindbet/internal/enclave"
	"github.com/veilworks/blindbet/internal/store/memory"
)

var (
	treasury = common.HexToAddress("0x0000000000000000000000000000000000b149d0")
	creator  = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	stranger = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

type fixture struct {
	registry *Registry
	bets     *memory.BetStore
	events   *memory.EventStore
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := enclave.New(enclave.Config{Passphrase: "test-passphrase"}, logger)
	if err != nil {
		t.Fatalf("new enclave: %v", err)
	}

	f := &fixture{
		bets:   memory.NewBetStore(),
		events: memory.NewEventStore(),
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.registry = NewRegistry(
		memory.NewMarketStore(), f.bets, svc,
		bus.Fanout{bus.StoreSink{Store: f.events}}, treasury, logger,
	)
	f.registry.SetClock(func() time.Time { return f.now })
	return f
}

func TestCreateMarketValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		duration time.Duration
		delay    time.Duration
		want     error
	}{
		{"duration too short", 30 * time.Minute, 2 * time.Hour, domain.ErrInvalidDuration},
		{"duration too long", 31 * 24 * time.Hour, 2 * time.Hour, domain.ErrInvalidDuration},
		{"delay too short", 24 * time.Hour, 30 * time.Minute, domain.ErrInvalidDelay},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.registry.CreateMarket(ctx, creator, "q", tc.duration, tc.delay); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateMarketAssignsDenseIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id1, err := f.registry.CreateMarket(ctx, creator, "first", 24*time.Hour, 2*time.Hour)
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	id2, err := f.registry.CreateMarket(ctx, creator, "second", 24*time.Hour, 2*time.Hour)
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if id1 != 1 || id2 != 2 {
		t.Fatalf("expected ids 1 and 2, got %d and %d", id1, id2)
	}

	m, err := f.registry.Get(ctx, id1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m.Question != "first" || m.Creator != creator {
		t.Fatalf("unexpected market: %+v", m)
	}
	if !m.EndTime.Equal(f.now.Add(24 * time.Hour)) {
		t.Fatalf("unexpected end time: %v", m.EndTime)
	}
	if !m.ResolutionTime.Equal(f.now.Add(26 * time.Hour)) {
		t.Fatalf("unexpected resolution time: %v", m.ResolutionTime)
	}
	if m.Resolved || m.Outcome != domain.OutcomeUnresolved {
		t.Fatalf("expected unresolved market, got %+v", m)
	}

	// Both pool accumulators start as encrypted zeros.
	pools, err := f.bets.GetPools(ctx, id1)
	if err != nil {
		t.Fatalf("get pools: %v", err)
	}
	if pools.YesPool == domain.ZeroHandle || pools.NoPool == domain.ZeroHandle {
		t.Fatal("expected initialized pool handles")
	}
	if pools.YesCount != 0 || pools.NoCount != 0 {
		t.Fatalf("expected empty counters, got %+v", pools)
	}

	events := f.events.All()
	if len(events) != 2 || events[0].Kind != domain.EventMarketCreated {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestResolveMarketRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.registry.CreateMarket(ctx, creator, "q", 24*time.Hour, 2*time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := f.registry.ResolveMarket(ctx, creator, id, domain.OutcomeUnresolved); !errors.Is(err, domain.ErrInvalidOutcome) {
		t.Fatalf("expected ErrInvalidOutcome, got %v", err)
	}
	if err := f.registry.ResolveMarket(ctx, creator, 99, domain.OutcomeYes); !errors.Is(err, domain.ErrMarketNotFound) {
		t.Fatalf("expected ErrMarketNotFound, got %v", err)
	}
	if err := f.registry.ResolveMarket(ctx, stranger, id, domain.OutcomeYes); !errors.Is(err, domain.ErrNotCreator) {
		t.Fatalf("expected ErrNotCreator, got %v", err)
	}
	if err := f.registry.ResolveMarket(ctx, creator, id, domain.OutcomeYes); !errors.Is(err, domain.ErrTooEarly) {
		t.Fatalf("expected ErrTooEarly, got %v", err)
	}

	// At the resolution boundary the creator may resolve.
	f.now = f.now.Add(26 * time.Hour)
	if err := f.registry.ResolveMarket(ctx, creator, id, domain.OutcomeYes); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := f.registry.ResolveMarket(ctx, creator, id, domain.OutcomeNo); !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}

	m, _ := f.registry.Get(ctx, id)
	if !m.Resolved || m.Outcome != domain.OutcomeYes {
		t.Fatalf("expected resolved yes, got %+v", m)
	}
}

func TestActiveAndResolvablePredicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.registry.CreateMarket(ctx, creator, "q", 24*time.Hour, 2*time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if active, _ := f.registry.Active(ctx, id); !active {
		t.Fatal("expected market to be active")
	}
	if resolvable, _ := f.registry.Resolvable(ctx, id); resolvable {
		t.Fatal("expected market not yet resolvable")
	}

	// Betting closed, still waiting out the delay.
	f.now = f.now.Add(25 * time.Hour)
	if active, _ := f.registry.Active(ctx, id); active {
		t.Fatal("expected market inactive after end time")
	}
	if resolvable, _ := f.registry.Resolvable(ctx, id); resolvable {
		t.Fatal("expected market not resolvable during delay")
	}

	f.now = f.now.Add(time.Hour)
	if resolvable, _ := f.registry.Resolvable(ctx, id); !resolvable {
		t.Fatal("expected market resolvable after delay")
	}
}
