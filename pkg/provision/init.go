package provision

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nodeforge/nodeforge/pkg/config"
	"github.com/nodeforge/nodeforge/pkg/kv"
	"github.com/nodeforge/nodeforge/pkg/procedure"
)

// Init records the cluster's network plan into the cache. It finishes
// persistently: initializing a workspace twice is a mistake, so a
// second run reports already-completed instead of overwriting the
// plan.
type Init struct {
	cfg *config.Config
}

// NewInit creates the init procedure.
func NewInit(cfg *config.Config) *Init {
	return &Init{cfg: cfg}
}

const initStateRecordNetwork procedure.StateID = "record-network"

type initState struct{}

func (initState) StateID() procedure.StateID { return initStateRecordNetwork }

// Name implements procedure.Procedure.
func (p *Init) Name() string { return ProcedureInit }

// States implements procedure.Procedure.
func (p *Init) States() []procedure.StateID {
	return []procedure.StateID{initStateRecordNetwork}
}

// InitialState implements procedure.Procedure.
func (p *Init) InitialState() procedure.State { return initState{} }

// DecodeState implements procedure.Procedure.
func (p *Init) DecodeState(id procedure.StateID, payload []byte) (procedure.State, error) {
	if id != initStateRecordNetwork {
		return nil, fmt.Errorf("unknown init state %q", id)
	}
	var s initState
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, err
	}
	return s, nil
}

// Run implements procedure.Procedure.
func (p *Init) Run(_ context.Context, step *procedure.Step) (procedure.Halt, error) {
	net := p.cfg.Network
	values := map[string]kv.Value{
		"network/cidr":          kv.Scalar(net.CIDR),
		"network/start_address": kv.Scalar(net.StartAddress),
		"network/gateway":       kv.Scalar(net.Gateway),
		"cluster/name":          kv.Scalar(p.cfg.Cluster.Name),
	}
	for rel, value := range values {
		if err := step.SetValue(rel, value); err != nil {
			return procedure.Halt{}, err
		}
	}

	nodes := make(kv.List, len(p.cfg.Nodes))
	for i, node := range p.cfg.Nodes {
		nodes[i] = kv.List{kv.Scalar(node.Name), kv.Scalar(node.Address), kv.Scalar(node.Role)}
	}
	if err := step.SetValue("cluster/nodes", nodes); err != nil {
		return procedure.Halt{}, err
	}

	return procedure.PersistentFinish(), nil
}
