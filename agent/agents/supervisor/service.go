package supervisor

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/omniflowhq/omniflow/agent/contract"
	nodex "github.com/omniflowhq/omniflow/agent/nodes/supervisor"
	statex "github.com/omniflowhq/omniflow/agent/state"
	synthx "github.com/omniflowhq/omniflow/agent/synthesis"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidSession = nodex.ErrInvalidSession
)

// Config carries the tunable vocabularies; zero values fall back to the
// defaults used in production.
type Config struct {
	Gate nodex.GateConfig
}

// Supervisor owns one compiled turn graph and runs every customer turn
// through it. It is safe for concurrent use across sessions; turns within
// one session are expected to arrive sequentially.
type Supervisor struct {
	store     statex.Store
	resolvers contractx.Registry
	guard     *synthx.Guard
	publisher contractx.TracePublisher
	gate      *nodex.Gate
	gateCfg   nodex.GateConfig

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	now func() time.Time
}

func New(
	store statex.Store,
	resolvers contractx.Registry,
	guard *synthx.Guard,
	publisher contractx.TracePublisher,
	cfg Config,
) (*Supervisor, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if resolvers == nil {
		return nil, errors.New("resolver registry is required")
	}
	if guard == nil {
		return nil, errors.New("synthesis guard is required")
	}

	gateCfg := cfg.Gate
	if len(gateCfg.YesTokens) == 0 || len(gateCfg.NoTokens) == 0 {
		defaults := nodex.DefaultGateConfig()
		if len(gateCfg.YesTokens) == 0 {
			gateCfg.YesTokens = defaults.YesTokens
		}
		if len(gateCfg.NoTokens) == 0 {
			gateCfg.NoTokens = defaults.NoTokens
		}
		if len(gateCfg.Aliases) == 0 {
			gateCfg.Aliases = defaults.Aliases
		}
	}

	s := &Supervisor{
		store:     store,
		resolvers: resolvers,
		guard:     guard,
		publisher: publisher,
		gate:      nodex.NewGate(gateCfg),
		gateCfg:   gateCfg,
		now:       time.Now,
	}

	graphRunner, err := s.compileTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	s.graphRunner = graphRunner

	return s, nil
}

// RunTurn processes one customer message and returns the turn result.
func (s *Supervisor) RunTurn(ctx context.Context, sessionID string, input contractx.TurnInput) (contractx.TurnResult, error) {
	out, err := s.graphRunner.Invoke(ctx, nodex.GraphInput{
		SessionID: sessionID,
		Input:     input,
	})
	if err != nil {
		return contractx.TurnResult{}, err
	}
	return out.Result, nil
}
