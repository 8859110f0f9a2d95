package runtime

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/shellboxhq/shellbox/types"
)

// mockClient is a mock Docker client that implements the CommonAPIClient
// interface. We embed the interface inside the struct so we only have to
// implement (mock) the methods the runtime actually calls.
//
// See:
// https://eli.thegreenplace.net/2020/embedding-in-go-part-3-interfaces-in-structs/
type mockClient struct {
	client.CommonAPIClient

	serverVersion string

	config        dockercontainer.Config
	hostConfig    dockercontainer.HostConfig
	platform      v1.Platform
	containerName string

	execCmd    []string
	execOutput string

	started   []string
	stopped   []string
	restarted []string
	removed   []string
}

func (m *mockClient) ServerVersion(ctx context.Context) (dockertypes.Version, error) {
	return dockertypes.Version{Version: m.serverVersion, APIVersion: "1.41"}, nil
}

func (m *mockClient) ContainerCreate(ctx context.Context, config *dockercontainer.Config, hostConfig *dockercontainer.HostConfig, networkingConfig *network.NetworkingConfig, platform *v1.Platform, containerName string) (dockercontainer.ContainerCreateCreatedBody, error) {
	m.config = *config
	m.hostConfig = *hostConfig
	m.platform = *platform
	m.containerName = containerName

	return dockercontainer.ContainerCreateCreatedBody{ID: "testContainer"}, nil
}

func (m *mockClient) ContainerStart(ctx context.Context, container string, options dockertypes.ContainerStartOptions) error {
	m.started = append(m.started, container)
	return nil
}

func (m *mockClient) ContainerStop(ctx context.Context, container string, timeout *time.Duration) error {
	m.stopped = append(m.stopped, container)
	return nil
}

func (m *mockClient) ContainerRestart(ctx context.Context, container string, timeout *time.Duration) error {
	m.restarted = append(m.restarted, container)
	return nil
}

func (m *mockClient) ContainerRemove(ctx context.Context, container string, options dockertypes.ContainerRemoveOptions) error {
	m.removed = append(m.removed, container)
	return nil
}

func (m *mockClient) ContainerExecCreate(ctx context.Context, container string, config dockertypes.ExecConfig) (dockertypes.IDResponse, error) {
	m.execCmd = config.Cmd
	return dockertypes.IDResponse{ID: "testExec"}, nil
}

func (m *mockClient) ContainerExecAttach(ctx context.Context, execID string, config dockertypes.ExecStartCheck) (dockertypes.HijackedResponse, error) {
	conn, other := net.Pipe()
	other.Close()
	return dockertypes.HijackedResponse{
		Conn:   conn,
		Reader: bufio.NewReader(strings.NewReader(m.execOutput)),
	}, nil
}

func TestCreateConsole(t *testing.T) {
	mock := &mockClient{}
	rt := NewWithClient(mock)

	id, err := rt.Create(context.Background(), "ubuntu-tmate:22.04", "alice#1234", 3)
	if err != nil {
		t.Fatalf("failed to create console: %s", err)
	}
	if id != "testContainer" {
		t.Errorf("expected console ID testContainer, got %s", id)
	}

	if mock.config.Image != "ubuntu-tmate:22.04" {
		t.Errorf("expected image ubuntu-tmate:22.04, got %s", mock.config.Image)
	}
	if len(mock.config.Entrypoint) != 1 || mock.config.Entrypoint[0] != "/sbin/init" {
		t.Errorf("expected /sbin/init entrypoint, got %v", mock.config.Entrypoint)
	}
	if !mock.hostConfig.Privileged {
		t.Error("expected a privileged container")
	}
	if len(mock.hostConfig.CapAdd) != 1 || mock.hostConfig.CapAdd[0] != "ALL" {
		t.Errorf("expected CapAdd ALL, got %v", mock.hostConfig.CapAdd)
	}
	if want := int64(3 * 1024 * 1024 * 1024); mock.hostConfig.Resources.Memory != want {
		t.Errorf("expected memory limit %d, got %d", want, mock.hostConfig.Resources.Memory)
	}
	if mock.platform.Architecture != "amd64" || mock.platform.OS != "linux" {
		t.Errorf("expected linux/amd64 platform, got %s/%s", mock.platform.OS, mock.platform.Architecture)
	}

	// Create also starts the container.
	if len(mock.started) != 1 || mock.started[0] != "testContainer" {
		t.Errorf("expected the created container to be started, got %v", mock.started)
	}

	// The hash in the owner handle is replaced in the container name, and a
	// random suffix is appended.
	if !strings.HasPrefix(mock.containerName, "alice-1234-") {
		t.Errorf("expected sanitized container name with suffix, got %q", mock.containerName)
	}
}

func TestLifecycleOperations(t *testing.T) {
	mock := &mockClient{}
	rt := NewWithClient(mock)
	ctx := context.Background()
	id := types.ConsoleID("c1")

	if err := rt.Start(ctx, id); err != nil {
		t.Fatalf("start failed: %s", err)
	}
	if err := rt.Stop(ctx, id); err != nil {
		t.Fatalf("stop failed: %s", err)
	}
	if err := rt.Restart(ctx, id); err != nil {
		t.Fatalf("restart failed: %s", err)
	}
	if err := rt.Destroy(ctx, id); err != nil {
		t.Fatalf("destroy failed: %s", err)
	}

	if len(mock.started) != 1 || len(mock.stopped) != 1 || len(mock.restarted) != 1 || len(mock.removed) != 1 {
		t.Errorf("unexpected call counts: started=%v stopped=%v restarted=%v removed=%v",
			mock.started, mock.stopped, mock.restarted, mock.removed)
	}
	if mock.removed[0] != "c1" {
		t.Errorf("expected c1 removed, got %v", mock.removed)
	}
}

func TestExecLineStream(t *testing.T) {
	mock := &mockClient{
		execOutput: "Tip: some banner\nssh session: alice@host -p 2222\n",
	}
	rt := NewWithClient(mock)

	lines, err := rt.ExecLineStream(context.Background(), "c1", []string{"tmate", "-F"})
	if err != nil {
		t.Fatalf("failed to start exec stream: %s", err)
	}

	var got []string
	for line := range lines {
		got = append(got, line)
	}
	want := []string{"Tip: some banner", "ssh session: alice@host -p 2222"}
	if len(got) != len(want) {
		t.Fatalf("expected %d lines, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	if len(mock.execCmd) != 2 || mock.execCmd[0] != "tmate" || mock.execCmd[1] != "-F" {
		t.Errorf("expected exec cmd [tmate -F], got %v", mock.execCmd)
	}
}

func TestContainerNameSanitization(t *testing.T) {
	name := ContainerName("weird user!@#$%^&*()")
	base := name[:strings.LastIndex(name, "-")]
	if containerNameRe.MatchString(base) {
		t.Errorf("container name %q still contains disallowed characters", name)
	}

	// Two names for the same owner must differ.
	if ContainerName("alice") == ContainerName("alice") {
		t.Error("expected distinct container names for the same owner")
	}
}
