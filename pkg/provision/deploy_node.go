package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/nodeforge/nodeforge/pkg/config"
	"github.com/nodeforge/nodeforge/pkg/kv"
	"github.com/nodeforge/nodeforge/pkg/procedure"
	"github.com/nodeforge/nodeforge/pkg/transports/ssh"
	"github.com/nodeforge/nodeforge/pkg/workspace"
)

// DeployNode provisions one node over SSH: uploads the admin public
// key, creates the admin user, and applies the node's network
// settings. Each state is a separate checkpoint, so an unreachable
// node mid-deploy resumes at the failing state, not from scratch.
type DeployNode struct {
	cfg  *config.Config
	node *config.Node

	// dial is swappable for tests.
	dial func(ctx context.Context, sshCfg *ssh.Config) (remote, error)
}

// remote is the slice of the SSH client deploy-node uses.
type remote interface {
	Run(ctx context.Context, command string) (*ssh.Result, error)
	Upload(ctx context.Context, localPath, remotePath string) error
	Close() error
}

// NewDeployNode creates the deploy-node procedure for one node.
func NewDeployNode(cfg *config.Config, node *config.Node) *DeployNode {
	return &DeployNode{
		cfg:  cfg,
		node: node,
		dial: func(ctx context.Context, sshCfg *ssh.Config) (remote, error) {
			return ssh.Connect(ctx, sshCfg)
		},
	}
}

const (
	deployStateUploadKey  procedure.StateID = "upload-key"
	deployStateCreateUser procedure.StateID = "create-user"
	deployStateConfigure  procedure.StateID = "configure"
)

type deployPayload struct {
	Node string `json:"node"`
}

type uploadKeyState struct{ deployPayload }

func (uploadKeyState) StateID() procedure.StateID { return deployStateUploadKey }

type deployCreateUserState struct{ deployPayload }

func (deployCreateUserState) StateID() procedure.StateID { return deployStateCreateUser }

type configureState struct{ deployPayload }

func (configureState) StateID() procedure.StateID { return deployStateConfigure }

// Name implements procedure.Procedure. Deploys of different nodes are
// different procedures, so their records never collide.
func (p *DeployNode) Name() string {
	return ProcedureDeployNode + "/" + p.node.Name
}

// States implements procedure.Procedure.
func (p *DeployNode) States() []procedure.StateID {
	return []procedure.StateID{deployStateUploadKey, deployStateCreateUser, deployStateConfigure}
}

// InitialState implements procedure.Procedure.
func (p *DeployNode) InitialState() procedure.State {
	return uploadKeyState{deployPayload{Node: p.node.Name}}
}

// DecodeState implements procedure.Procedure.
func (p *DeployNode) DecodeState(id procedure.StateID, payload []byte) (procedure.State, error) {
	var data deployPayload
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, err
	}
	switch id {
	case deployStateUploadKey:
		return uploadKeyState{data}, nil
	case deployStateCreateUser:
		return deployCreateUserState{data}, nil
	case deployStateConfigure:
		return configureState{data}, nil
	default:
		return nil, fmt.Errorf("unknown deploy-node state %q", id)
	}
}

// Run implements procedure.Procedure.
func (p *DeployNode) Run(ctx context.Context, step *procedure.Step) (procedure.Halt, error) {
	conn, err := p.connect(ctx, step)
	if err != nil {
		return procedure.Halt{}, err
	}
	defer conn.Close()

	switch step.State().(type) {
	case uploadKeyState:
		if err := p.uploadKey(ctx, step, conn); err != nil {
			return procedure.Halt{}, err
		}
		return procedure.Yield(deployCreateUserState{deployPayload{Node: p.node.Name}}), nil

	case deployCreateUserState:
		if err := p.createAdminUser(ctx, conn); err != nil {
			return procedure.Halt{}, err
		}
		return procedure.Yield(configureState{deployPayload{Node: p.node.Name}}), nil

	case configureState:
		if err := p.configureNetwork(ctx, conn); err != nil {
			return procedure.Halt{}, err
		}
		if err := step.SetValue("deployed", kv.Scalar("true")); err != nil {
			return procedure.Halt{}, err
		}
		return procedure.Finish(), nil

	default:
		return procedure.Halt{}, fmt.Errorf("unexpected state %T", step.State())
	}
}

// connect dials the node using the admin credentials created by the
// create-user procedure.
func (p *DeployNode) connect(ctx context.Context, step *procedure.Step) (remote, error) {
	keyKey := kv.Key(ProcedureCreateUser).Join(KeyAdminPrivate)
	ws := step.Workspace()
	if _, ok := ws.GetFile(keyKey); !ok {
		return nil, step.Errorf("admin key is not cached; run %q first", ProcedureCreateUser)
	}
	validity, err := ws.ValidateFile(keyKey)
	if err != nil {
		return nil, err
	}
	if validity != workspace.Valid {
		return nil, step.Errorf("admin key cache entry is %s; re-run %q", validity, ProcedureCreateUser)
	}

	return p.dial(ctx, &ssh.Config{
		Host:           p.node.Address,
		User:           p.cfg.Cluster.AdminUser,
		PrivateKeyPath: ws.ResolvePath(keyKey),
	})
}

func (p *DeployNode) uploadKey(ctx context.Context, step *procedure.Step, conn remote) error {
	pubKey := kv.Key(ProcedureCreateUser).Join(KeyAdminPublic)
	localPub := step.Workspace().ResolvePath(pubKey)
	if _, err := os.Stat(localPub); err != nil {
		return step.Errorf("admin public key missing: %v", err)
	}

	remotePath := fmt.Sprintf("/home/%s/.ssh/authorized_keys.d/nodeforge", p.cfg.Cluster.AdminUser)
	if err := conn.Upload(ctx, localPub, remotePath); err != nil {
		return err
	}
	_, err := conn.Run(ctx, fmt.Sprintf("cat %s >> ~/.ssh/authorized_keys", shellQuote(remotePath)))
	return err
}

func (p *DeployNode) createAdminUser(ctx context.Context, conn remote) error {
	user := p.cfg.Cluster.AdminUser
	commands := []string{
		fmt.Sprintf("sudo useradd --create-home --groups sudo %s || id %s", shellQuote(user), shellQuote(user)),
		fmt.Sprintf("sudo passwd --lock %s", shellQuote(user)),
	}
	for _, cmd := range commands {
		if _, err := conn.Run(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (p *DeployNode) configureNetwork(ctx context.Context, conn remote) error {
	cmd := fmt.Sprintf("sudo hostnamectl set-hostname %s", shellQuote(p.node.Name))
	if _, err := conn.Run(ctx, cmd); err != nil {
		return err
	}
	return nil
}

// shellQuote single-quotes an argument for the remote shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
