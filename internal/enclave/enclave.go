// Package enclave implements the confidential value service as an in-process
// boundary: opaque handles over AES-GCM sealed integers, per-handle ACL
// grants, homomorphic add/multiply, and the asynchronous decrypt
// request/callback protocol with HMAC proofs.
package enclave

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/veilworks/blindbet/internal/domain"
)

// Config holds enclave construction parameters.
type Config struct {
	// Passphrase protects the enclave master key.
	Passphrase string
	// QueueSize bounds the decrypt request queue. Defaults to 256.
	QueueSize int
}

// Service holds sealed values and ACL grants, and queues decrypt requests for
// the oracle worker. Safe for concurrent use.
type Service struct {
	sealer *sealer
	logger *slog.Logger

	mu     sync.Mutex
	values map[domain.Handle][]byte
	acl    map[domain.Handle]map[common.Address]struct{}

	requests chan decryptRequest
}

type decryptRequest struct {
	id      uuid.UUID
	handles []domain.Handle
}

// New creates a Service with a freshly derived master key.
func New(cfg Config, logger *slog.Logger) (*Service, error) {
	s, err := newSealer(cfg.Passphrase)
	if err != nil {
		return nil, err
	}
	queue := cfg.QueueSize
	if queue <= 0 {
		queue = 256
	}
	return &Service{
		sealer:   s,
		logger:   logger.With(slog.String("component", "enclave")),
		values:   make(map[domain.Handle][]byte),
		acl:      make(map[domain.Handle]map[common.Address]struct{}),
		requests: make(chan decryptRequest, queue),
	}, nil
}

// Encrypt seals value into a fresh handle and grants the owner access.
func (s *Service) Encrypt(ctx context.Context, value *big.Int, owner common.Address) (domain.Handle, error) {
	if value.Sign() < 0 {
		return domain.ZeroHandle, fmt.Errorf("enclave: negative value not representable")
	}
	blob, err := s.sealer.seal(value.Bytes())
	if err != nil {
		return domain.ZeroHandle, err
	}

	h := domain.Handle(uuid.NewString())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[h] = blob
	s.acl[h] = map[common.Address]struct{}{owner: {}}
	return h, nil
}

// Add returns a fresh handle holding a + b.
func (s *Service) Add(ctx context.Context, a, b domain.Handle) (domain.Handle, error) {
	return s.combine(a, b, func(x, y *big.Int) *big.Int {
		return new(big.Int).Add(x, y)
	})
}

// Sub returns a fresh handle holding a - b, clamped at zero.
func (s *Service) Sub(ctx context.Context, a, b domain.Handle) (domain.Handle, error) {
	return s.combine(a, b, func(x, y *big.Int) *big.Int {
		d := new(big.Int).Sub(x, y)
		if d.Sign() < 0 {
			d.SetInt64(0)
		}
		return d
	})
}

// Mul returns a fresh handle holding a * b.
func (s *Service) Mul(ctx context.Context, a, b domain.Handle) (domain.Handle, error) {
	return s.combine(a, b, func(x, y *big.Int) *big.Int {
		return new(big.Int).Mul(x, y)
	})
}

// Min returns a fresh handle holding the smaller of a and b.
func (s *Service) Min(ctx context.Context, a, b domain.Handle) (domain.Handle, error) {
	return s.combine(a, b, func(x, y *big.Int) *big.Int {
		if x.Cmp(y) <= 0 {
			return new(big.Int).Set(x)
		}
		return new(big.Int).Set(y)
	})
}

func (s *Service) combine(a, b domain.Handle, op func(x, y *big.Int) *big.Int) (domain.Handle, error) {
	x, err := s.openValue(a)
	if err != nil {
		return domain.ZeroHandle, err
	}
	y, err := s.openValue(b)
	if err != nil {
		return domain.ZeroHandle, err
	}

	blob, err := s.sealer.seal(op(x, y).Bytes())
	if err != nil {
		return domain.ZeroHandle, err
	}

	h := domain.Handle(uuid.NewString())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[h] = blob
	s.acl[h] = make(map[common.Address]struct{})
	return h, nil
}

// Grant allows principal to request decryption of the handle.
func (s *Service) Grant(ctx context.Context, h domain.Handle, principal common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[h]; !ok {
		return domain.ErrHandleNotFound
	}
	s.acl[h][principal] = struct{}{}
	return nil
}

// RequestDecryption queues handles for asynchronous decryption. The requester
// must hold a grant on every handle. The eventual callback carries the
// returned correlation id.
func (s *Service) RequestDecryption(ctx context.Context, handles []domain.Handle, requester common.Address) (uuid.UUID, error) {
	s.mu.Lock()
	for _, h := range handles {
		if _, ok := s.values[h]; !ok {
			s.mu.Unlock()
			return uuid.Nil, domain.ErrHandleNotFound
		}
		if _, ok := s.acl[h][requester]; !ok {
			s.mu.Unlock()
			return uuid.Nil, domain.ErrNotAllowed
		}
	}
	s.mu.Unlock()

	id := uuid.New()
	select {
	case s.requests <- decryptRequest{id: id, handles: handles}:
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}

	s.logger.DebugContext(ctx, "decrypt request queued",
		slog.String("request_id", id.String()),
		slog.Int("handles", len(handles)),
	)
	return id, nil
}

// CheckSignatures verifies a decrypt callback proof.
func (s *Service) CheckSignatures(requestID uuid.UUID, plaintexts []*big.Int, proof []byte) error {
	if !verifyDecrypt(s.sealer.signingKey, requestID, plaintexts, proof) {
		return domain.ErrBadProof
	}
	return nil
}

// openValue decrypts the sealed value behind a handle.
func (s *Service) openValue(h domain.Handle) (*big.Int, error) {
	s.mu.Lock()
	blob, ok := s.values[h]
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrHandleNotFound
	}
	raw, err := s.sealer.open(blob)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}
