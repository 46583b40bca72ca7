package token

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilworks/blindbet/internal/domain"
	"github.com/veilworks/blindbet/internal/enclave"
)

var (
	ledgerAddr = common.HexToAddress("0x00000000000000000000000000000000004ed6e5")
	alice      = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob        = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLedger(t *testing.T) (*Ledger, *enclave.Service) {
	t.Helper()
	svc, err := enclave.New(enclave.Config{Passphrase: "test-passphrase"}, discardLogger())
	if err != nil {
		t.Fatalf("new enclave: %v", err)
	}
	return New(svc, ledgerAddr, discardLogger()), svc
}

// decrypt runs one request through the oracle and returns the plaintext of h
// as seen by the given principal.
func decrypt(t *testing.T, svc *enclave.Service, h domain.Handle, who common.Address) *big.Int {
	t.Helper()
	ctx := context.Background()

	if _, err := svc.RequestDecryption(ctx, []domain.Handle{h}, who); err != nil {
		t.Fatalf("request decryption: %v", err)
	}

	var got domain.DecryptResult
	oracle := enclave.NewOracle(svc, func(ctx context.Context, res domain.DecryptResult) error {
		got = res
		return nil
	}, discardLogger())
	if !oracle.DrainOnce(ctx) {
		t.Fatal("expected a queued decrypt request")
	}
	if len(got.Plaintexts) != 1 {
		t.Fatalf("expected 1 plaintext, got %d", len(got.Plaintexts))
	}
	return got.Plaintexts[0]
}

func TestMintCredits(t *testing.T) {
	ledger, svc := newTestLedger(t)
	ctx := context.Background()

	if err := ledger.Mint(ctx, alice, big.NewInt(500)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Mint(ctx, alice, big.NewInt(250)); err != nil {
		t.Fatalf("second mint: %v", err)
	}

	bal, err := ledger.BalanceOf(ctx, alice)
	if err != nil {
		t.Fatalf("balance of: %v", err)
	}
	if got := decrypt(t, svc, bal, ledgerAddr); got.Int64() != 750 {
		t.Fatalf("expected balance 750, got %v", got)
	}
}

func TestTransferFromRequiresAllowance(t *testing.T) {
	ledger, svc := newTestLedger(t)
	ctx := context.Background()

	if err := ledger.Mint(ctx, alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	amount, err := svc.Encrypt(ctx, big.NewInt(50), alice)
	if err != nil {
		t.Fatalf("encrypt amount: %v", err)
	}

	if _, err := ledger.TransferFrom(ctx, alice, bob, amount, nil); !errors.Is(err, domain.ErrNoAllowance) {
		t.Fatalf("expected ErrNoAllowance, got %v", err)
	}

	// Expired allowance is as good as none.
	ledger.Approve(alice, bob, time.Now().Add(-time.Minute))
	if _, err := ledger.TransferFrom(ctx, alice, bob, amount, nil); !errors.Is(err, domain.ErrNoAllowance) {
		t.Fatalf("expected ErrNoAllowance for expired approval, got %v", err)
	}

	ledger.Approve(alice, bob, time.Now().Add(time.Hour))
	transferred, err := ledger.TransferFrom(ctx, alice, bob, amount, nil)
	if err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	if got := decrypt(t, svc, transferred, ledgerAddr); got.Int64() != 50 {
		t.Fatalf("expected transferred 50, got %v", got)
	}
}

func TestTransferCappedAtBalance(t *testing.T) {
	ledger, svc := newTestLedger(t)
	ctx := context.Background()

	if err := ledger.Mint(ctx, alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	ledger.Approve(alice, bob, time.Now().Add(time.Hour))

	// The submitted amount exaggerates the balance; only 100 can move.
	amount, err := svc.Encrypt(ctx, big.NewInt(250), alice)
	if err != nil {
		t.Fatalf("encrypt amount: %v", err)
	}
	transferred, err := ledger.TransferFrom(ctx, alice, bob, amount, nil)
	if err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	if got := decrypt(t, svc, transferred, ledgerAddr); got.Int64() != 100 {
		t.Fatalf("expected transferred 100, got %v", got)
	}

	aliceBal, _ := ledger.BalanceOf(ctx, alice)
	if got := decrypt(t, svc, aliceBal, ledgerAddr); got.Sign() != 0 {
		t.Fatalf("expected payer balance 0, got %v", got)
	}
	bobBal, _ := ledger.BalanceOf(ctx, bob)
	if got := decrypt(t, svc, bobBal, ledgerAddr); got.Int64() != 100 {
		t.Fatalf("expected payee balance 100, got %v", got)
	}
}

func TestTransferUnknownAmountHandle(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	if err := ledger.Mint(ctx, alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	ledger.Approve(alice, bob, time.Now().Add(time.Hour))

	if _, err := ledger.TransferFrom(ctx, alice, bob, domain.Handle("forged"), nil); !errors.Is(err, domain.ErrHandleNotFound) {
		t.Fatalf("expected ErrHandleNotFound for forged handle, got %v", err)
	}
}
