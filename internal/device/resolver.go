package device

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sweeney/bed-scheduler/internal/logic"
	"github.com/sweeney/bed-scheduler/internal/profile"
	"github.com/sweeney/bed-scheduler/internal/retry"
)

// Resolver fetches live heating status and never fails: any error degrades
// to logic.DefaultStatus.
type Resolver struct {
	client  Client
	invoker *retry.Invoker
	logger  *zap.Logger

	// OnFallback, if set, is called whenever a side degrades to the default.
	OnFallback func(side Side, err error)
}

// NewResolver creates a Resolver. Status fetches are retried by invoker.
func NewResolver(client Client, invoker *retry.Invoker, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{client: client, invoker: invoker, logger: logger}
}

func (r *Resolver) fetch(ctx context.Context, cred profile.Credential, side Side) ([]SideStatus, error) {
	return retry.Value(ctx, r.invoker, "status "+string(side), func(ctx context.Context) ([]SideStatus, error) {
		return r.client.HeatingStatus(ctx, cred, side)
	})
}

func (r *Resolver) fallback(side Side, err error) logic.HeatingStatus {
	r.logger.Warn("using default heating status",
		zap.String("side", string(side)),
		zap.Error(err),
	)
	if r.OnFallback != nil {
		r.OnFallback(side, err)
	}
	return logic.DefaultStatus
}

// Resolve returns the status of a single physical side.
func (r *Resolver) Resolve(ctx context.Context, cred profile.Credential, side Side) logic.HeatingStatus {
	statuses, err := r.fetch(ctx, cred, side)
	if err != nil {
		return r.fallback(side, err)
	}
	if len(statuses) != 1 || statuses[0].Side != side {
		return r.fallback(side, fmt.Errorf("%w: %d results for %s", ErrUnexpectedStatusShape, len(statuses), side))
	}
	return statuses[0].HeatingStatus
}

// ResolveAll returns the status of both sides from a single fetch. A side
// missing from the response, or reported twice, gets the default.
func (r *Resolver) ResolveAll(ctx context.Context, cred profile.Credential) map[Side]logic.HeatingStatus {
	out := map[Side]logic.HeatingStatus{
		SideLeft:  logic.DefaultStatus,
		SideRight: logic.DefaultStatus,
	}

	statuses, err := r.fetch(ctx, cred, SideBoth)
	if err != nil {
		r.fallback(SideBoth, err)
		return out
	}

	seen := make(map[Side]int)
	for _, st := range statuses {
		seen[st.Side]++
		if _, ok := out[st.Side]; ok {
			out[st.Side] = st.HeatingStatus
		}
	}
	for _, side := range []Side{SideLeft, SideRight} {
		if n := seen[side]; n != 1 {
			out[side] = r.fallback(side, fmt.Errorf("%w: %d results for %s", ErrUnexpectedStatusShape, n, side))
		}
	}
	return out
}
