package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Handle is an opaque reference to an encrypted integer held by the
// confidential value service. Handles support homomorphic arithmetic without
// revealing their plaintext; decryption requires an ACL grant and goes
// through the asynchronous request/callback protocol.
type Handle string

// ZeroHandle is the empty handle, used before an accumulator is initialized.
const ZeroHandle Handle = ""

// DecryptResult carries the verified plaintexts delivered by a decrypt
// callback, in the order the handles were submitted.
type DecryptResult struct {
	RequestID  uuid.UUID
	Plaintexts []*big.Int
	Proof      []byte
}

// ConfidentialService is the external cryptographic service holding encrypted
// values. Arithmetic is homomorphic over opaque handles; plaintexts only
// leave the boundary through the proof-verified decrypt callback.
type ConfidentialService interface {
	// Encrypt seals a plaintext into a fresh handle owned by the caller.
	Encrypt(ctx context.Context, value *big.Int, owner common.Address) (Handle, error)

	// Add, Sub, Mul and Min produce a fresh handle holding the homomorphic
	// result. Sub clamps at zero.
	Add(ctx context.Context, a, b Handle) (Handle, error)
	Sub(ctx context.Context, a, b Handle) (Handle, error)
	Mul(ctx context.Context, a, b Handle) (Handle, error)
	Min(ctx context.Context, a, b Handle) (Handle, error)

	// Grant records an ACL entry allowing principal to request decryption of
	// the handle.
	Grant(ctx context.Context, h Handle, principal common.Address) error

	// RequestDecryption submits handles for asynchronous decryption and
	// returns the correlation id the eventual callback will carry. The
	// requester must hold a grant on every handle.
	RequestDecryption(ctx context.Context, handles []Handle, requester common.Address) (uuid.UUID, error)

	// CheckSignatures verifies a callback proof against the request id and
	// plaintexts. An error is fatal for that callback.
	CheckSignatures(requestID uuid.UUID, plaintexts []*big.Int, proof []byte) error
}

// TokenLedger is the external confidential token ledger. Balances are opaque
// handles; TransferFrom is gated by a time-bounded operator allowance the
// payer must have granted in advance. The handle returned by a transfer
// represents the amount actually moved and is the source of truth for it.
type TokenLedger interface {
	TransferFrom(ctx context.Context, payer, payee common.Address, amount Handle, proof []byte) (Handle, error)
	Transfer(ctx context.Context, payer, payee common.Address, amount Handle) (Handle, error)
	BalanceOf(ctx context.Context, account common.Address) (Handle, error)
}
