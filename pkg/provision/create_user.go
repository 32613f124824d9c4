package provision

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"

	"github.com/nodeforge/nodeforge/pkg/config"
	"github.com/nodeforge/nodeforge/pkg/kv"
	"github.com/nodeforge/nodeforge/pkg/procedure"
)

// Relative cache keys for the admin credentials.
const (
	KeyAdminPrivate = "ssh/key"
	KeyAdminPublic  = "ssh/key.pub"
)

// CreateUser generates the administrative user's SSH credentials and
// records them as cached files, so every later procedure (and every
// later invocation) deploys the same keypair.
type CreateUser struct {
	cfg *config.Config
}

// NewCreateUser creates the create-user procedure.
func NewCreateUser(cfg *config.Config) *CreateUser {
	return &CreateUser{cfg: cfg}
}

const (
	createUserStateGenerateKeys procedure.StateID = "generate-keys"
	createUserStateRecordUser   procedure.StateID = "record-user"
)

type generateKeysState struct{}

func (generateKeysState) StateID() procedure.StateID { return createUserStateGenerateKeys }

type recordUserState struct {
	// Username travels in the payload so a resume after the keys were
	// generated does not depend on the config still being present.
	Username string `json:"username"`
}

func (recordUserState) StateID() procedure.StateID { return createUserStateRecordUser }

// Name implements procedure.Procedure.
func (p *CreateUser) Name() string { return ProcedureCreateUser }

// States implements procedure.Procedure.
func (p *CreateUser) States() []procedure.StateID {
	return []procedure.StateID{createUserStateGenerateKeys, createUserStateRecordUser}
}

// InitialState implements procedure.Procedure.
func (p *CreateUser) InitialState() procedure.State { return generateKeysState{} }

// DecodeState implements procedure.Procedure.
func (p *CreateUser) DecodeState(id procedure.StateID, payload []byte) (procedure.State, error) {
	switch id {
	case createUserStateGenerateKeys:
		var s generateKeysState
		if err := json.Unmarshal(payload, &s); err != nil {
			return nil, err
		}
		return s, nil
	case createUserStateRecordUser:
		var s recordUserState
		if err := json.Unmarshal(payload, &s); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown create-user state %q", id)
	}
}

// Run implements procedure.Procedure.
func (p *CreateUser) Run(ctx context.Context, step *procedure.Step) (procedure.Halt, error) {
	switch s := step.State().(type) {
	case generateKeysState:
		if err := p.generateKeys(ctx, step); err != nil {
			return procedure.Halt{}, err
		}
		return procedure.Yield(recordUserState{Username: p.cfg.Cluster.AdminUser}), nil

	case recordUserState:
		if err := step.SetValue("username", kv.Scalar(s.Username)); err != nil {
			return procedure.Halt{}, err
		}
		return procedure.Finish(), nil

	default:
		return procedure.Halt{}, fmt.Errorf("unexpected state %T", s)
	}
}

func (p *CreateUser) generateKeys(ctx context.Context, step *procedure.Step) error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate ed25519 key: %w", err)
	}

	pemBlock, err := ssh.MarshalPrivateKey(priv, p.cfg.Cluster.AdminUser)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return fmt.Errorf("convert public key: %w", err)
	}

	if err := step.FillFile(ctx, KeyAdminPrivate, func(_ context.Context, f *os.File, _ string, _ bool) error {
		return pem.Encode(f, pemBlock)
	}); err != nil {
		return err
	}
	keyPath, err := step.RealPath(KeyAdminPrivate)
	if err != nil {
		return err
	}
	if err := os.Chmod(keyPath, 0o600); err != nil {
		return fmt.Errorf("restrict private key permissions: %w", err)
	}

	return step.FillFile(ctx, KeyAdminPublic, func(_ context.Context, f *os.File, _ string, _ bool) error {
		_, err := f.Write(ssh.MarshalAuthorizedKey(sshPub))
		return err
	})
}
