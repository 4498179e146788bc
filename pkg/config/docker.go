package config

import (
	"os"
	"sync"
)

// DefaultDockerHostGateway is the hostname Docker Desktop gives the host
// machine. Override it with DOCKER_HOST_GATEWAY (e.g. 172.17.0.1 on Linux).
const DefaultDockerHostGateway = "host.docker.internal"

const dockerEnvFile = "/.dockerenv"

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker reports whether /.dockerenv exists. The result is cached.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat(dockerEnvFile)
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker maps loopback database hosts to the Docker host
// gateway when the process runs in a container, so a database server on the
// host machine stays reachable. Other hosts are returned unchanged.
func ResolveHostForDocker(host string) string {
	return resolveHost(host, IsRunningInDocker(), os.Getenv("DOCKER_HOST_GATEWAY"))
}

func resolveHost(host string, inDocker bool, gateway string) string {
	if !inDocker || !isLoopback(host) {
		return host
	}
	if gateway == "" {
		return DefaultDockerHostGateway
	}
	return gateway
}

func isLoopback(host string) bool {
	switch host {
	case "localhost", "127.0.0.1", "::1", "[::1]":
		return true
	}
	return false
}
