package enclave

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/veilworks/blindbet/internal/domain"
)

// CallbackFunc receives a verified decrypt result. It is invoked once per
// completed request, with no ordering or latency guarantee relative to the
// submitting call.
type CallbackFunc func(ctx context.Context, res domain.DecryptResult) error

// Oracle drains the service's decrypt queue, produces plaintexts and proofs,
// and delivers them to the registered callback. It models the external
// decryption oracle: delivery is asynchronous and a failing callback is
// logged and dropped, never retried.
type Oracle struct {
	svc      *Service
	callback CallbackFunc
	logger   *slog.Logger
}

// NewOracle creates an Oracle delivering results to callback.
func NewOracle(svc *Service, callback CallbackFunc, logger *slog.Logger) *Oracle {
	return &Oracle{
		svc:      svc,
		callback: callback,
		logger:   logger.With(slog.String("component", "oracle")),
	}
}

// Run processes decrypt requests until the context is cancelled.
func (o *Oracle) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-o.svc.requests:
			o.deliver(ctx, req)
		}
	}
}

// DrainOnce synchronously processes at most one queued request. Intended for
// deterministic tests and the in-memory mode.
func (o *Oracle) DrainOnce(ctx context.Context) bool {
	select {
	case req := <-o.svc.requests:
		o.deliver(ctx, req)
		return true
	default:
		return false
	}
}

func (o *Oracle) deliver(ctx context.Context, req decryptRequest) {
	plaintexts := make([]*big.Int, 0, len(req.handles))
	for _, h := range req.handles {
		v, err := o.svc.openValue(h)
		if err != nil {
			o.logger.ErrorContext(ctx, "decrypt failed, dropping request",
				slog.String("request_id", req.id.String()),
				slog.String("error", err.Error()),
			)
			return
		}
		plaintexts = append(plaintexts, v)
	}

	res := domain.DecryptResult{
		RequestID:  req.id,
		Plaintexts: plaintexts,
		Proof:      signDecrypt(o.svc.sealer.signingKey, req.id, plaintexts),
	}

	if err := o.callback(ctx, res); err != nil {
		o.logger.ErrorContext(ctx, "decrypt callback failed",
			slog.String("request_id", req.id.String()),
			slog.String("error", err.Error()),
		)
	}
}
