package toxiproxy

import (
	"context"
	"fmt"
	"net"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Container is a Toxiproxy container. Proxies are configured through its HTTP API, see HTTPAddress.
type Container struct {
	testcontainers.Container
}

const (
	defaultHTTPPort = "8474/tcp"
	defaultImage    = "ghcr.io/shopify/toxiproxy:2.7.0"
)

// RunContainer starts a Toxiproxy container and waits until its HTTP API responds.
func RunContainer(ctx context.Context, opts ...testcontainers.ContainerCustomizer) (*Container, error) {
	// Some settings (e.g. Image) may be overridden by providing an option argument to this function.
	req := testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        defaultImage,
			ExposedPorts: []string{defaultHTTPPort},
			WaitingFor:   wait.ForHTTP("/version").WithPort(defaultHTTPPort),
		},
		Started: true,
	}

	for _, opt := range opts {
		opt.Customize(&req)
	}

	container, err := testcontainers.GenericContainer(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to start toxiproxy container: %w", err)
	}

	return &Container{Container: container}, nil
}

// WithProxyPorts exposes the container ports proxies listen on, so that they can be reached from the Docker host.
func WithProxyPorts(ports ...string) testcontainers.CustomizeRequestOption {
	return func(req *testcontainers.GenericContainerRequest) {
		req.ExposedPorts = append(req.ExposedPorts, ports...)
	}
}

// HTTPAddress returns the address of the Toxiproxy HTTP API in the format "http://ip:port".
func (c *Container) HTTPAddress(ctx context.Context) (string, error) {
	return c.PortEndpoint(ctx, defaultHTTPPort, "http")
}

// MappedAddress returns the "host:port" address on the Docker host that forwards to the given container port.
func (c *Container) MappedAddress(ctx context.Context, containerPort nat.Port) (string, error) {
	hostPort, err := c.PortEndpoint(ctx, containerPort, "")
	if err != nil {
		return "", err
	}
	host, port, err := net.SplitHostPort(hostPort)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(host, port), nil
}
