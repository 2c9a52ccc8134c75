// Package idgen hands out the ids the host gives to itself, bus
// subscriptions and input handlers.
package idgen

import (
	"github.com/nats-io/nuid"
)

type Generator interface {
	Generate() string
}

type NuidGen struct {
	nuid *nuid.NUID
}

func NewNuidGen() *NuidGen {
	return &NuidGen{
		nuid: nuid.New(),
	}
}

// Generate is not safe for concurrent use, like the NUID it wraps.
func (n *NuidGen) Generate() string {
	return n.nuid.Next()
}

// Next returns an id from the process-wide, locked generator.
func Next() string {
	return nuid.Next()
}
