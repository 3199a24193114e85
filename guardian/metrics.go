// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package guardian

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	observedMessageCount *prometheus.CounterVec
	signedMessageCount   *prometheus.CounterVec
	pendingFinalityCount *prometheus.GaugeVec
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := Metrics{
		observedMessageCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "observed_message_count",
				Help: "Number of published messages observed on watched chains",
			},
			[]string{"source_chain_id"},
		),
		signedMessageCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signed_message_count",
				Help: "Number of messages attested with a quorum signature",
			},
			[]string{"source_chain_id"},
		),
		pendingFinalityCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pending_finality_count",
				Help: "Number of observed messages waiting for their publication block to finalize",
			},
			[]string{"source_chain_id"},
		),
	}

	registerer.MustRegister(m.observedMessageCount)
	registerer.MustRegister(m.signedMessageCount)
	registerer.MustRegister(m.pendingFinalityCount)

	return &m
}
