// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package executor

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	quoteRequestCount *prometheus.CounterVec
	relayCount        *prometheus.CounterVec
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := Metrics{
		quoteRequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quote_request_count",
				Help: "Number of relay quotes requested per destination chain",
			},
			[]string{"destination_chain_id"},
		),
		relayCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_count",
				Help: "Number of relay attempts by terminal status",
			},
			[]string{"source_chain_id", "status"},
		),
	}

	registerer.MustRegister(m.quoteRequestCount)
	registerer.MustRegister(m.relayCount)

	return &m
}
