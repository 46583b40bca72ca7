package enclave

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/veilworks/blindbet/internal/domain"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := New(Config{Passphrase: "test-passphrase"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func mustOpen(t *testing.T, svc *Service, h domain.Handle) *big.Int {
	t.Helper()
	v, err := svc.openValue(h)
	if err != nil {
		t.Fatalf("open value: %v", err)
	}
	return v
}

func TestEncryptSealsValue(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	h, err := svc.Encrypt(ctx, big.NewInt(42), alice)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if h == domain.ZeroHandle {
		t.Fatal("expected non-zero handle")
	}
	if got := mustOpen(t, svc, h); got.Int64() != 42 {
		t.Fatalf("expected 42, got %v", got)
	}
}

func TestEncryptRejectsNegative(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Encrypt(context.Background(), big.NewInt(-1), alice); err == nil {
		t.Fatal("expected error for negative value")
	}
}

func TestArithmetic(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	a, _ := svc.Encrypt(ctx, big.NewInt(100), alice)
	b, _ := svc.Encrypt(ctx, big.NewInt(30), alice)

	sum, err := svc.Add(ctx, a, b)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := mustOpen(t, svc, sum); got.Int64() != 130 {
		t.Fatalf("add: expected 130, got %v", got)
	}

	diff, err := svc.Sub(ctx, a, b)
	if err != nil {
		t.Fatalf("sub: %v", err)
	}
	if got := mustOpen(t, svc, diff); got.Int64() != 70 {
		t.Fatalf("sub: expected 70, got %v", got)
	}

	// Subtraction clamps at zero rather than going negative.
	clamped, err := svc.Sub(ctx, b, a)
	if err != nil {
		t.Fatalf("sub clamp: %v", err)
	}
	if got := mustOpen(t, svc, clamped); got.Sign() != 0 {
		t.Fatalf("sub clamp: expected 0, got %v", got)
	}

	prod, err := svc.Mul(ctx, a, b)
	if err != nil {
		t.Fatalf("mul: %v", err)
	}
	if got := mustOpen(t, svc, prod); got.Int64() != 3000 {
		t.Fatalf("mul: expected 3000, got %v", got)
	}

	low, err := svc.Min(ctx, a, b)
	if err != nil {
		t.Fatalf("min: %v", err)
	}
	if got := mustOpen(t, svc, low); got.Int64() != 30 {
		t.Fatalf("min: expected 30, got %v", got)
	}
}

func TestCombineUnknownHandle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	a, _ := svc.Encrypt(ctx, big.NewInt(1), alice)
	if _, err := svc.Add(ctx, a, domain.Handle("no-such-handle")); !errors.Is(err, domain.ErrHandleNotFound) {
		t.Fatalf("expected ErrHandleNotFound, got %v", err)
	}
}

func TestGrantUnknownHandle(t *testing.T) {
	svc := newTestService(t)
	if err := svc.Grant(context.Background(), domain.Handle("missing"), alice); !errors.Is(err, domain.ErrHandleNotFound) {
		t.Fatalf("expected ErrHandleNotFound, got %v", err)
	}
}

func TestRequestDecryptionRequiresGrant(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	h, _ := svc.Encrypt(ctx, big.NewInt(7), alice)

	if _, err := svc.RequestDecryption(ctx, []domain.Handle{h}, bob); !errors.Is(err, domain.ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed, got %v", err)
	}

	if err := svc.Grant(ctx, h, bob); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := svc.RequestDecryption(ctx, []domain.Handle{h}, bob); err != nil {
		t.Fatalf("request after grant: %v", err)
	}
}

func TestOracleDeliversVerifiedResult(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	a, _ := svc.Encrypt(ctx, big.NewInt(123), alice)
	b, _ := svc.Encrypt(ctx, big.NewInt(456), alice)

	reqID, err := svc.RequestDecryption(ctx, []domain.Handle{a, b}, alice)
	if err != nil {
		t.Fatalf("request decryption: %v", err)
	}

	var got domain.DecryptResult
	oracle := NewOracle(svc, func(ctx context.Context, res domain.DecryptResult) error {
		got = res
		return nil
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if !oracle.DrainOnce(ctx) {
		t.Fatal("expected a queued request")
	}
	if oracle.DrainOnce(ctx) {
		t.Fatal("expected queue to be empty")
	}

	if got.RequestID != reqID {
		t.Fatalf("expected request id %v, got %v", reqID, got.RequestID)
	}
	if len(got.Plaintexts) != 2 || got.Plaintexts[0].Int64() != 123 || got.Plaintexts[1].Int64() != 456 {
		t.Fatalf("unexpected plaintexts: %v", got.Plaintexts)
	}
	if err := svc.CheckSignatures(got.RequestID, got.Plaintexts, got.Proof); err != nil {
		t.Fatalf("check signatures: %v", err)
	}
}

func TestCheckSignaturesRejectsTampering(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	h, _ := svc.Encrypt(ctx, big.NewInt(9), alice)
	if _, err := svc.RequestDecryption(ctx, []domain.Handle{h}, alice); err != nil {
		t.Fatalf("request decryption: %v", err)
	}

	var got domain.DecryptResult
	oracle := NewOracle(svc, func(ctx context.Context, res domain.DecryptResult) error {
		got = res
		return nil
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	oracle.DrainOnce(ctx)

	// Altered plaintext.
	if err := svc.CheckSignatures(got.RequestID, []*big.Int{big.NewInt(10)}, got.Proof); !errors.Is(err, domain.ErrBadProof) {
		t.Fatalf("expected ErrBadProof for altered plaintext, got %v", err)
	}

	// Altered request id.
	if err := svc.CheckSignatures(uuid.New(), got.Plaintexts, got.Proof); !errors.Is(err, domain.ErrBadProof) {
		t.Fatalf("expected ErrBadProof for altered request id, got %v", err)
	}

	// Truncated proof.
	if err := svc.CheckSignatures(got.RequestID, got.Plaintexts, got.Proof[:8]); !errors.Is(err, domain.ErrBadProof) {
		t.Fatalf("expected ErrBadProof for truncated proof, got %v", err)
	}
}
