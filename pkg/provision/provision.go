// Package provision contains the concrete provisioning procedures:
// workspace initialization, admin user creation, OS image download
// and node deployment. Each is a procedure.Procedure whose states
// checkpoint through the engine, so any of them can be interrupted
// and resumed.
package provision

import (
	"fmt"

	"github.com/nodeforge/nodeforge/pkg/config"
	"github.com/nodeforge/nodeforge/pkg/procedure"
)

// Params carries everything a procedure constructor needs.
type Params struct {
	// Config is the loaded cluster configuration.
	Config *config.Config

	// Node selects the target node for node-scoped procedures.
	Node string
}

// New constructs the named procedure. Unknown names list the known
// ones in the error.
func New(name string, params Params) (procedure.Procedure, error) {
	switch name {
	case ProcedureInit:
		return NewInit(params.Config), nil
	case ProcedureCreateUser:
		return NewCreateUser(params.Config), nil
	case ProcedureDownloadImage:
		return NewDownloadImage(params.Config), nil
	case ProcedureDeployNode:
		if params.Node == "" {
			return nil, fmt.Errorf("procedure %s requires --node", name)
		}
		node, ok := params.Config.Node(params.Node)
		if !ok {
			return nil, fmt.Errorf("node %q is not in the configuration", params.Node)
		}
		return NewDeployNode(params.Config, node), nil
	default:
		return nil, fmt.Errorf("unknown procedure %q (known: %s, %s, %s, %s)",
			name, ProcedureInit, ProcedureCreateUser, ProcedureDownloadImage, ProcedureDeployNode)
	}
}

// Procedure names.
const (
	ProcedureInit          = "init"
	ProcedureCreateUser    = "create-user"
	ProcedureDownloadImage = "download-image"
	ProcedureDeployNode    = "deploy-node"
)
