package provision

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nodeforge/nodeforge/pkg/kv"
	"github.com/nodeforge/nodeforge/pkg/procedure"
	"github.com/nodeforge/nodeforge/pkg/transports/ssh"
	"github.com/nodeforge/nodeforge/pkg/workspace"
)

// fakeRemote records commands and uploads, optionally failing any
// command containing failOn
type fakeRemote struct {
	commands []string
	uploads  []string
	failOn   string
	dials    int
	closes   int
}

func (f *fakeRemote) Run(_ context.Context, command string) (*ssh.Result, error) {
	if f.failOn != "" && strings.Contains(command, f.failOn) {
		return nil, errors.New("remote command failed")
	}
	f.commands = append(f.commands, command)
	return &ssh.Result{Command: command}, nil
}

func (f *fakeRemote) Upload(_ context.Context, localPath, remotePath string) error {
	f.uploads = append(f.uploads, localPath+" -> "+remotePath)
	return nil
}

func (f *fakeRemote) Close() error {
	f.closes++
	return nil
}

// deployFixture prepares a workspace with cached admin credentials and
// a deploy-node procedure dialing the fake remote
func deployFixture(t *testing.T) (*DeployNode, *fakeRemote, *workspace.Workspace) {
	t.Helper()

	cfg := testConfig()
	ws := openTestWorkspace(t)
	if err := runProcedure(t, ws, NewCreateUser(cfg)); err != nil {
		t.Fatalf("seed credentials: %v", err)
	}

	conn := &fakeRemote{}
	node, _ := cfg.Node("node1")
	proc := NewDeployNode(cfg, node)
	proc.dial = func(_ context.Context, sshCfg *ssh.Config) (remote, error) {
		conn.dials++
		if sshCfg.Host != "10.42.0.10" || sshCfg.User != "admin" {
			t.Errorf("dialed %s as %s", sshCfg.Host, sshCfg.User)
		}
		return conn, nil
	}
	return proc, conn, ws
}

// TestDeployNode tests the full three-state deploy against a fake
// remote
func TestDeployNode(t *testing.T) {
	proc, conn, ws := deployFixture(t)

	if err := runProcedure(t, ws, proc); err != nil {
		t.Fatalf("deploy: %v", err)
	}

	if len(conn.uploads) != 1 || !strings.Contains(conn.uploads[0], "authorized_keys.d/nodeforge") {
		t.Errorf("uploads = %v", conn.uploads)
	}

	joined := strings.Join(conn.commands, "\n")
	for _, want := range []string{
		"cat '/home/admin/.ssh/authorized_keys.d/nodeforge' >> ~/.ssh/authorized_keys",
		"useradd --create-home --groups sudo 'admin'",
		"passwd --lock 'admin'",
		"hostnamectl set-hostname 'node1'",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("command %q not executed; got:\n%s", want, joined)
		}
	}

	// One dial and close per state: every checkpoint reconnects.
	if conn.dials != 3 || conn.closes != 3 {
		t.Errorf("dials = %d, closes = %d, want 3 each", conn.dials, conn.closes)
	}

	value, ok, err := ws.GetValue("deploy-node/node1/deployed")
	if err != nil || !ok {
		t.Fatalf("deployed marker missing: %v", err)
	}
	if !value.Equal(kv.Scalar("true")) {
		t.Errorf("deployed = %v", value)
	}
	if _, exists, _ := procedure.LoadRecord(ws, proc.Name()); exists {
		t.Error("record survived the finished deploy")
	}
}

// TestDeployNodeResumesAtFailedState tests that a mid-deploy failure
// resumes at the failing state without repeating earlier ones
func TestDeployNodeResumesAtFailedState(t *testing.T) {
	proc, conn, ws := deployFixture(t)
	conn.failOn = "useradd"

	if err := runProcedure(t, ws, proc); err == nil {
		t.Fatal("deploy with a failing remote succeeded")
	}

	rec, exists, err := procedure.LoadRecord(ws, proc.Name())
	if err != nil || !exists {
		t.Fatalf("record missing after interruption: %v", err)
	}
	if rec.StateID != "create-user" {
		t.Errorf("checkpointed state = %s, want create-user", rec.StateID)
	}

	conn.failOn = ""
	uploadsBefore := len(conn.uploads)
	if err := runProcedure(t, ws, proc); err != nil {
		t.Fatalf("resumed deploy: %v", err)
	}

	if len(conn.uploads) != uploadsBefore {
		t.Error("resume repeated the key upload")
	}
	if _, exists, _ := procedure.LoadRecord(ws, proc.Name()); exists {
		t.Error("record survived the finished resume")
	}
}

// TestDeployNodeRequiresCredentials tests the guard against deploying
// before create-user has cached the admin key
func TestDeployNodeRequiresCredentials(t *testing.T) {
	cfg := testConfig()
	ws := openTestWorkspace(t)
	node, _ := cfg.Node("node1")
	proc := NewDeployNode(cfg, node)
	proc.dial = func(context.Context, *ssh.Config) (remote, error) {
		t.Fatal("dialed without cached credentials")
		return nil, nil
	}

	err := runProcedure(t, ws, proc)
	if err == nil {
		t.Fatal("deploy without credentials succeeded")
	}
	if !strings.Contains(err.Error(), ProcedureCreateUser) {
		t.Errorf("error does not point at create-user: %v", err)
	}
}

// TestDeployNodesIsolatedRecords tests that deploys of different
// nodes keep separate records
func TestDeployNodesIsolatedRecords(t *testing.T) {
	cfg := testConfig()
	ws := openTestWorkspace(t)
	if err := runProcedure(t, ws, NewCreateUser(cfg)); err != nil {
		t.Fatalf("seed credentials: %v", err)
	}

	node1, _ := cfg.Node("node1")
	node2, _ := cfg.Node("node2")
	p1 := NewDeployNode(cfg, node1)
	p2 := NewDeployNode(cfg, node2)
	if p1.Name() == p2.Name() {
		t.Fatal("deploys of different nodes share a name")
	}

	conn := &fakeRemote{failOn: "hostnamectl"}
	p1.dial = func(context.Context, *ssh.Config) (remote, error) { return conn, nil }

	if err := runProcedure(t, ws, p1); err == nil {
		t.Fatal("deploy with a failing remote succeeded")
	}
	if _, exists, _ := procedure.LoadRecord(ws, p1.Name()); !exists {
		t.Error("node1 record missing")
	}
	if _, exists, _ := procedure.LoadRecord(ws, p2.Name()); exists {
		t.Error("node1's interruption leaked into node2's record")
	}
}
