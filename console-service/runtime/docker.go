package runtime // import "github.com/shellboxhq/shellbox/console-service/runtime"

import (
	"bufio"
	"context"
	"net/http"
	"path/filepath"
	"regexp"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/strslice"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/go-connections/tlsconfig"
	dockerunits "github.com/docker/go-units"
	goversion "github.com/hashicorp/go-version"
	"github.com/lithammer/shortuuid/v3"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	logger "github.com/shellboxhq/shellbox/shellboxlogger"
	"github.com/shellboxhq/shellbox/types"
	"github.com/shellboxhq/shellbox/utils"
)

// MinServerVersion is the oldest engine we accept. Older daemons predate the
// API behaviors the exec attach path relies on.
const MinServerVersion = "20.10.0"

// Container names may only contain these characters; everything else in the
// owner handle is replaced.
var containerNameRe = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// stopTimeout bounds how long the engine waits for a console's init to exit
// before killing it.
var stopTimeout = 30 * time.Second

// dockerRuntime implements Runtime on top of the Docker Engine API.
type dockerRuntime struct {
	client dockerclient.CommonAPIClient
}

// Options configures the connection to the engine. Zero values mean the local
// socket with no TLS.
type Options struct {
	// Host is the daemon address (e.g. "tcp://10.0.0.5:2376"). Empty means
	// the environment default, normally the local Unix socket.
	Host string

	// CertPath is a directory holding ca.pem, cert.pem and key.pem for a
	// TLS-guarded remote daemon. Empty disables TLS.
	CertPath string
}

// New connects to the engine, negotiates the API version, and verifies the
// server is at least MinServerVersion.
func New(ctx context.Context, opts Options) (Runtime, error) {
	clientOpts := []dockerclient.Opt{dockerclient.WithAPIVersionNegotiation()}
	if opts.Host != "" {
		clientOpts = append(clientOpts, dockerclient.WithHost(opts.Host))
	}
	if opts.CertPath != "" {
		tlsc, err := tlsconfig.Client(tlsconfig.Options{
			CAFile:   filepath.Join(opts.CertPath, "ca.pem"),
			CertFile: filepath.Join(opts.CertPath, "cert.pem"),
			KeyFile:  filepath.Join(opts.CertPath, "key.pem"),
		})
		if err != nil {
			return nil, utils.MakeError("couldn't load TLS material from %s: %s", opts.CertPath, err)
		}
		clientOpts = append(clientOpts, dockerclient.WithHTTPClient(&http.Client{
			Transport: &http.Transport{TLSClientConfig: tlsc},
		}))
	}

	client, err := dockerclient.NewClientWithOpts(clientOpts...)
	if err != nil {
		return nil, utils.MakeError("error creating new Docker client: %s", err)
	}

	rt := &dockerRuntime{client: client}
	if err := rt.checkServerVersion(ctx); err != nil {
		return nil, err
	}
	return rt, nil
}

// NewWithClient wraps an existing engine client. Used by tests and anywhere a
// pre-configured client already exists.
func NewWithClient(client dockerclient.CommonAPIClient) Runtime {
	return &dockerRuntime{client: client}
}

// checkServerVersion rejects daemons older than MinServerVersion.
func (d *dockerRuntime) checkServerVersion(ctx context.Context) error {
	server, err := d.client.ServerVersion(ctx)
	if err != nil {
		return utils.MakeError("couldn't get Docker server version: %s", err)
	}

	got, err := goversion.NewVersion(server.Version)
	if err != nil {
		return utils.MakeError("couldn't parse Docker server version %q: %s", server.Version, err)
	}
	min := goversion.Must(goversion.NewVersion(MinServerVersion))
	if got.LessThan(min) {
		return utils.MakeError("Docker server version %s is older than the minimum supported %s", server.Version, MinServerVersion)
	}

	logger.Infof("Connected to Docker server version %s (API %s).", server.Version, server.APIVersion)
	return nil
}

// ContainerName builds the engine-side name for a console: the owner handle
// with every disallowed character replaced, plus a short random suffix so an
// owner's consoles never collide.
func ContainerName(owner types.Owner) string {
	return utils.Sprintf("%s-%s", containerNameRe.ReplaceAllString(string(owner), "-"), shortuuid.New())
}

func (d *dockerRuntime) Create(ctx context.Context, image string, owner types.Owner, memoryGB int) (types.ConsoleID, error) {
	memory, err := dockerunits.RAMInBytes(utils.Sprintf("%dg", memoryGB))
	if err != nil {
		return "", &CommandError{Op: "create", Detail: utils.MakeError("bad memory size %dg: %s", memoryGB, err)}
	}

	// Consoles run a full init so users get a normal interactive system, and
	// run privileged with all capabilities because the whole point is handing
	// the user a root shell in an isolated box.
	config := dockercontainer.Config{
		Image:      image,
		Entrypoint: strslice.StrSlice{"/sbin/init"},
		Tty:        true,
	}
	hostConfig := dockercontainer.HostConfig{
		Privileged: true,
		CapAdd:     strslice.StrSlice{"ALL"},
		Resources: dockercontainer.Resources{
			Memory: memory,
		},
	}

	body, err := d.client.ContainerCreate(ctx, &config, &hostConfig, nil, &v1.Platform{Architecture: "amd64", OS: "linux"}, ContainerName(owner))
	if err != nil {
		return "", &CommandError{Op: "create", Detail: err}
	}
	id := types.ConsoleID(body.ID)

	if err := d.client.ContainerStart(ctx, string(id), dockertypes.ContainerStartOptions{}); err != nil {
		// The container exists but won't run; leave teardown to the caller's
		// rollback so the failure handling lives in one place.
		return id, &CommandError{Op: "start", Detail: err}
	}

	return id, nil
}

func (d *dockerRuntime) Start(ctx context.Context, id types.ConsoleID) error {
	if err := d.client.ContainerStart(ctx, string(id), dockertypes.ContainerStartOptions{}); err != nil {
		return &CommandError{Op: "start", Detail: err}
	}
	return nil
}

func (d *dockerRuntime) Stop(ctx context.Context, id types.ConsoleID) error {
	timeout := stopTimeout
	if err := d.client.ContainerStop(ctx, string(id), &timeout); err != nil {
		return &CommandError{Op: "stop", Detail: err}
	}
	return nil
}

func (d *dockerRuntime) Restart(ctx context.Context, id types.ConsoleID) error {
	timeout := stopTimeout
	if err := d.client.ContainerRestart(ctx, string(id), &timeout); err != nil {
		return &CommandError{Op: "restart", Detail: err}
	}
	return nil
}

func (d *dockerRuntime) Destroy(ctx context.Context, id types.ConsoleID) error {
	err := d.client.ContainerRemove(ctx, string(id), dockertypes.ContainerRemoveOptions{Force: true})
	if err != nil {
		return &CommandError{Op: "destroy", Detail: err}
	}
	return nil
}

func (d *dockerRuntime) ExecLineStream(ctx context.Context, id types.ConsoleID, cmd []string) (<-chan string, error) {
	exec, err := d.client.ContainerExecCreate(ctx, string(id), dockertypes.ExecConfig{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
		// A TTY keeps the output stream raw instead of multiplexed, so we
		// can scan it line by line directly.
		Tty: true,
	})
	if err != nil {
		return nil, &CommandError{Op: "exec", Detail: err}
	}

	attach, err := d.client.ContainerExecAttach(ctx, exec.ID, dockertypes.ExecStartCheck{Tty: true})
	if err != nil {
		return nil, &CommandError{Op: "exec", Detail: err}
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		defer attach.Close()

		scanner := bufio.NewScanner(attach.Reader)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			logger.Warningf("Error reading exec output from console %s: %s", id, err)
		}
	}()

	return lines, nil
}

// IsNotFound reports whether an error means the container no longer exists.
// Cleanup paths use this to converge on "already gone is success".
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	cmdErr, ok := err.(*CommandError)
	if ok {
		err = cmdErr.Detail
	}
	return dockerclient.IsErrNotFound(err)
}
