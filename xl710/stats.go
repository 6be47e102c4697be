// xl710 transmit/receive data-path core
// https://github.com/ethermark/i40e
//
// Copyright (c) Ethermark Systems
// https://ethermark.dev
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xl710

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// ringStats is a custom prometheus.Collector over one Trqpair's
// counters. The counters themselves live as plain atomic fields on
// RxData/TxRing so the hot path never touches a prometheus type; this
// collector only reads them at scrape time.
type ringStats struct {
	pair *Trqpair

	rxDelivered *prometheus.Desc
	rxErrors    *prometheus.Desc
	rxFree      *prometheus.Desc
	rxLoaned    *prometheus.Desc
	txSent      *prometheus.Desc
	txFree      *prometheus.Desc
	txBlocked   *prometheus.Desc
}

func newRingStats(p *Trqpair) *ringStats {
	return &ringStats{
		pair:        p,
		rxDelivered: prometheus.NewDesc("xl710_rx_delivered_total", "Frames delivered upstream from the receive ring.", nil, nil),
		rxErrors:    prometheus.NewDesc("xl710_rx_errors_total", "Receive descriptors discarded for a fatal device-reported error.", nil, nil),
		rxFree:      prometheus.NewDesc("xl710_rx_free_slots", "Receive control blocks currently available in the free pool.", nil, nil),
		rxLoaned:    prometheus.NewDesc("xl710_rx_loaned_slots", "Receive control blocks currently loaned upstream as zero-copy frames.", nil, nil),
		txSent:      prometheus.NewDesc("xl710_tx_sent_total", "Frames admitted onto the transmit ring.", nil, nil),
		txFree:      prometheus.NewDesc("xl710_tx_free_descriptors", "Transmit descriptors currently available for admission.", nil, nil),
		txBlocked:   prometheus.NewDesc("xl710_tx_blocked", "1 if the transmit ring is currently refusing admission for lack of descriptors.", nil, nil),
	}
}

func (s *ringStats) Describe(ch chan<- *prometheus.Desc) {
	ch <- s.rxDelivered
	ch <- s.rxErrors
	ch <- s.rxFree
	ch <- s.rxLoaned
	ch <- s.txSent
	ch <- s.txFree
	ch <- s.txBlocked
}

func (s *ringStats) Collect(ch chan<- prometheus.Metric) {
	rx := s.pair.Rx
	tx := s.pair.Tx

	ch <- prometheus.MustNewConstMetric(s.rxDelivered, prometheus.CounterValue, float64(atomic.LoadUint64(&rx.delivered)))
	ch <- prometheus.MustNewConstMetric(s.rxErrors, prometheus.CounterValue, float64(atomic.LoadUint64(&rx.errors)))
	ch <- prometheus.MustNewConstMetric(s.rxFree, prometheus.GaugeValue, float64(rx.free.len()))
	ch <- prometheus.MustNewConstMetric(s.rxLoaned, prometheus.GaugeValue, float64(rx.outstandingLoans()))

	tx.mu.Lock()
	sent := tx.sent
	free := tx.free
	blocked := tx.blocked
	tx.mu.Unlock()

	ch <- prometheus.MustNewConstMetric(s.txSent, prometheus.CounterValue, float64(sent))
	ch <- prometheus.MustNewConstMetric(s.txFree, prometheus.GaugeValue, float64(free))
	blockedVal := 0.0
	if blocked {
		blockedVal = 1.0
	}
	ch <- prometheus.MustNewConstMetric(s.txBlocked, prometheus.GaugeValue, blockedVal)
}

// Collector exposes the pair's prometheus.Collector for registration
// with a caller-owned registry.
func (p *Trqpair) Collector() prometheus.Collector {
	return p.stats
}
