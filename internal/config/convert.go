package config

import "github.com/danmuck/tetherctl/internal/transport"

// Convert maps an inventory entry onto the transport's endpoint identity.
func Convert(ep EndpointConfig) transport.Endpoint {
	port := ep.Port
	if port == 0 {
		port = 22
	}
	return transport.Endpoint{
		Host:           ep.Host,
		Port:           port,
		User:           ep.User,
		KeyFile:        ep.KeyFile,
		KnownHostsFile: ep.KnownHostsFile,
	}
}
