package nodes

import (
	"context"

	"github.com/floweave/floweave"
)

// ManualTrigger starts a run with the payload the caller supplied. It has
// no configuration and performs no I/O.
type ManualTrigger struct{}

func (ManualTrigger) Execute(_ context.Context, call Call) (Output, error) {
	return Output{floweave.PortMain: call.Trigger}, nil
}
