package main

import (
	"strings"

	"github.com/nats-io/nats.go"
)

func configureNatsConnection(cfg Globals) (*nats.Conn, error) {
	if cfg.Check || !cfg.wantsNats() {
		return nil, nil
	}

	opts := []nats.Option{
		nats.Name(cfg.NatsConnectionName),
		nats.Timeout(cfg.NatsTimeout),
	}

	if cfg.NatsCredentialsFile != "" {
		opts = append(opts, nats.UserCredentials(cfg.NatsCredentialsFile))
	}

	if cfg.NatsUserNkey != "" {
		opt, err := nats.NkeyOptionFromSeed(cfg.NatsUserNkey)
		if err != nil {
			return nil, err
		}
		opts = append(opts, opt)
	}

	if cfg.NatsTLSCert != "" && cfg.NatsTLSKey != "" {
		opts = append(opts, nats.ClientCert(cfg.NatsTLSCert, cfg.NatsTLSKey))
	}

	if cfg.NatsTLSCA != "" {
		opts = append(opts, nats.RootCAs(cfg.NatsTLSCA))
	}

	if cfg.NatsTLSFirst {
		opts = append(opts, nats.TLSHandshakeFirst())
	}

	if cfg.NatsUser != "" && cfg.NatsUserPassword == "" {
		opts = append(opts, nats.Token(cfg.NatsUser))
	} else if cfg.NatsUser != "" {
		opts = append(opts, nats.UserInfo(cfg.NatsUser, cfg.NatsUserPassword))
	}

	servers := cfg.NatsServers
	if len(servers) == 0 {
		servers = []string{nats.DefaultURL}
	}

	return nats.Connect(strings.Join(servers, ","), opts...)
}
