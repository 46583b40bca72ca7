package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/veilworks/blindbet/internal/domain"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func TestBetStoreOneBetPerUser(t *testing.T) {
	s := NewBetStore()
	ctx := context.Background()

	b := domain.Bet{MarketID: 1, User: alice, Amount: "h1", Prediction: domain.PredictionYes}
	if err := s.CreateBet(ctx, b); err != nil {
		t.Fatalf("create bet: %v", err)
	}
	if err := s.CreateBet(ctx, b); !errors.Is(err, domain.ErrAlreadyBet) {
		t.Fatalf("expected ErrAlreadyBet, got %v", err)
	}

	// Same user on a different market is a separate position.
	b.MarketID = 2
	if err := s.CreateBet(ctx, b); err != nil {
		t.Fatalf("create bet on second market: %v", err)
	}

	if _, err := s.GetBet(ctx, 1, bob); !errors.Is(err, domain.ErrBetNotFound) {
		t.Fatalf("expected ErrBetNotFound, got %v", err)
	}
}

func TestBetStoreMarkClaimedIsMonotone(t *testing.T) {
	s := NewBetStore()
	ctx := context.Background()

	if err := s.MarkClaimed(ctx, 1, alice); !errors.Is(err, domain.ErrBetNotFound) {
		t.Fatalf("expected ErrBetNotFound, got %v", err)
	}

	if err := s.CreateBet(ctx, domain.Bet{MarketID: 1, User: alice, Amount: "h1", Prediction: domain.PredictionYes}); err != nil {
		t.Fatalf("create bet: %v", err)
	}
	if err := s.MarkClaimed(ctx, 1, alice); err != nil {
		t.Fatalf("mark claimed: %v", err)
	}
	if err := s.MarkClaimed(ctx, 1, alice); !errors.Is(err, domain.ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}

	b, err := s.GetBet(ctx, 1, alice)
	if err != nil {
		t.Fatalf("get bet: %v", err)
	}
	if !b.Claimed {
		t.Fatal("expected bet to be claimed")
	}
}

func TestClaimStoreDeleteDetectsReplay(t *testing.T) {
	s := NewClaimStore()
	ctx := context.Background()

	c := domain.PendingClaim{
		RequestID: uuid.New(),
		MarketID:  1,
		User:      alice,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := s.Put(ctx, c); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.GetByBet(ctx, 1, alice)
	if err != nil {
		t.Fatalf("get by bet: %v", err)
	}
	if got.RequestID != c.RequestID {
		t.Fatalf("expected request id %v, got %v", c.RequestID, got.RequestID)
	}

	if err := s.Delete(ctx, c.RequestID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, c.RequestID); !errors.Is(err, domain.ErrClaimNotFound) {
		t.Fatalf("expected ErrClaimNotFound on second delete, got %v", err)
	}
}

func TestMarketStorePagination(t *testing.T) {
	s := NewMarketStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := s.Create(ctx, domain.Market{Question: "q"}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	page, err := s.List(ctx, domain.ListOpts{Limit: 2, Offset: 3})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].ID != 4 || page[1].ID != 5 {
		t.Fatalf("unexpected page: %+v", page)
	}

	empty, err := s.List(ctx, domain.ListOpts{Limit: 2, Offset: 10})
	if err != nil {
		t.Fatalf("list past end: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty page, got %+v", empty)
	}

	n, err := s.Count(ctx)
	if err != nil || n != 5 {
		t.Fatalf("expected count 5, got %d (%v)", n, err)
	}
}
