package device

import (
	"context"

	"go.uber.org/zap"

	"github.com/sweeney/bed-scheduler/internal/logic"
	"github.com/sweeney/bed-scheduler/internal/profile"
	"github.com/sweeney/bed-scheduler/internal/retry"
)

// TargetFor converts a command into a write target. Leave-unchanged has no
// target.
func TargetFor(cmd logic.Command) *Target {
	switch cmd.Kind {
	case logic.KindSetLevel:
		return &Target{Level: cmd.Level}
	case logic.KindTurnOff:
		return &Target{Off: true}
	default:
		return nil
	}
}

// BuildUpdate combines the commands for both physical sides into one write.
func BuildUpdate(right, left logic.Command) Update {
	return Update{Right: TargetFor(right), Left: TargetFor(left)}
}

// Orchestrator is the only write path to a device. Each call issues at most
// one combined request covering both sides.
type Orchestrator struct {
	client  Client
	invoker *retry.Invoker
	logger  *zap.Logger
}

// NewOrchestrator creates an Orchestrator. Writes are retried by invoker.
func NewOrchestrator(client Client, invoker *retry.Invoker, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{client: client, invoker: invoker, logger: logger}
}

// SetBothSides writes the right and left commands in a single request.
// When both are leave-unchanged nothing is sent. The returned Update is what
// was (or would have been) written.
func (o *Orchestrator) SetBothSides(ctx context.Context, cred profile.Credential, right, left logic.Command) (Update, error) {
	u := BuildUpdate(right, left)
	if u.Empty() {
		o.logger.Debug("no side changes, skipping write")
		return u, nil
	}

	err := o.invoker.Do(ctx, "set sides", func(ctx context.Context) error {
		return o.client.SetSides(ctx, cred, u)
	})
	if err != nil {
		return u, err
	}
	o.logger.Info("device updated",
		zap.Stringer("right", right),
		zap.Stringer("left", left),
	)
	return u, nil
}

// Apply maps role commands onto physical sides and writes them. A role
// absent from commands is left unchanged.
func (o *Orchestrator) Apply(ctx context.Context, cred profile.Credential, commands map[Role]logic.Command) (Update, error) {
	var right, left logic.Command
	for role, cmd := range commands {
		switch role.Side() {
		case SideRight:
			right = cmd
		case SideLeft:
			left = cmd
		}
	}
	return o.SetBothSides(ctx, cred, right, left)
}
