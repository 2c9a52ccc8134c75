package main

import (
	"time"

	"github.com/alecthomas/kong"
)

type Globals struct {
	GlobalLogger  `prefix:"logger." group:"Logger Configuration"`
	GlobalNats    `prefix:"nats." group:"NATS Configuration"`
	GlobalMetrics `prefix:"otel." group:"OpenTelemetry Configuration"`

	HostId  string           `name:"host-id" help:"Identity used in subjects; a fresh nkey public key when empty"`
	Config  kong.ConfigFlag  `help:"Configuration file to load" placeholder:"./accessorhost.json"`
	Version kong.VersionFlag `help:"Print version information"`
	Check   bool             `name:"check" help:"Print the current values of all options without running a command"`
}

type GlobalLogger struct {
	Target          []string `name:"target" default:"std" help:"Logger output targets" enum:"std,file,nats"`
	LogLevel        string   `name:"level" default:"info" short:"l" help:"Set log level" enum:"fatal,error,warn,info,debug,trace"`
	LogJSON         bool     `name:"json" default:"false" help:"Enable JSON formatted logs"`
	LogColor        bool     `name:"color" default:"false" help:"Enable colorized logs"`
	LogShortLevels  bool     `name:"short" default:"false" help:"Use abbreviated log levels; DEBUG -> DBG"`
	LogTimeFormat   string   `name:"timefmt" default:"DateTime" help:"Time format for log messages" enum:"DateTime,TimeOnly,DateOnly,Stamp,RFC822,RFC3339"`
	LogWithPid      bool     `name:"with-pid" default:"false" help:"Include process ID in log messages"`
	LogGroupOnRight bool     `name:"group-on-right" default:"false" help:"Place log group on the right"`
	LogHideConsole  bool     `name:"hide-console" default:"false" help:"Hide console output of accessor scripts"`
}

type GlobalNats struct {
	NatsServers         []string      `name:"servers" short:"s" help:"NATS servers to connect to" placeholder:"nats://127.0.0.1:4222"`
	NatsUserNkey        string        `name:"nkey" help:"User NKEY file for single-key auth"`
	NatsUser            string        `name:"user" help:"User for credentials" placeholder:"user"`
	NatsUserPassword    string        `name:"password" help:"Password for user credentials" placeholder:"password"`
	NatsConnectionName  string        `name:"conn-name" help:"Connection name to use" default:"accessorhost-${versionOnly}"`
	NatsCredentialsFile string        `name:"creds-file" help:"Path to the NATS credentials file" type:"existingfile" placeholder:"/etc/accessorhost/ngs.creds"`
	NatsTimeout         time.Duration `name:"timeout" help:"Timeout for NATS operations" default:"5s"`
	NatsTLSCert         string        `name:"tlscert" help:"Path to the NATS TLS certificate" type:"existingfile" placeholder:"/etc/accessorhost/tls.crt"`
	NatsTLSKey          string        `name:"tlskey" help:"Path to the NATS TLS key" type:"existingfile" placeholder:"/etc/accessorhost/tls.key"`
	NatsTLSCA           string        `name:"tlsca" help:"Path to the NATS TLS root CA" type:"existingfile" placeholder:"/etc/accessorhost/ca.crt"`
	NatsTLSFirst        bool          `name:"tlsfirst" help:"Enable TLS first" default:"false"`
}

type GlobalMetrics struct {
	MetricsEnabled  bool   `name:"metrics" default:"false" help:"Enable OpenTelemetry metrics"`
	MetricsExporter string `name:"metrics-exporter" default:"prometheus" help:"Metrics exporter" enum:"prometheus,file"`
	MetricsPort     int    `name:"metrics-port" default:"8085" help:"Port the prometheus exporter listens on"`
	TracesEnabled   bool   `name:"traces" default:"false" help:"Enable OpenTelemetry traces"`
	TracesExporter  string `name:"traces-exporter" default:"file" help:"Traces exporter" enum:"file,grpc,http"`
	ExporterUrl     string `name:"exporter-url" default:"127.0.0.1:14532" help:"OTLP collector address"`
}

// wantsNats reports whether the given flags need a NATS connection.
func (g Globals) wantsNats() bool {
	if len(g.NatsServers) > 0 {
		return true
	}
	for _, t := range g.Target {
		if t == "nats" {
			return true
		}
	}
	return false
}
