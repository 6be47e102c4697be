// xl710 transmit/receive data-path core
// https://github.com/ethermark/i40e
//
// Copyright (c) Ethermark Systems
// https://ethermark.dev
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xl710

import "go.uber.org/zap"

// NewLogger builds the package's default production logger: JSON
// encoded, info level and above. Callers embedding this core in a
// larger driver normally construct their own *zap.Logger and pass it
// into NewTrqpair instead; this constructor exists for cmd/xl710sim and
// for tests that want real log output without a caller-supplied
// logger.
func NewLogger() (*zap.Logger, error) {
	return zap.NewProduction()
}

func fieldRing(name string) zap.Field {
	return zap.String("ring", name)
}

func fieldFrameLen(n int) zap.Field {
	return zap.Int("frame_len", n)
}

func fieldDescIndex(i int) zap.Field {
	return zap.Int("desc_index", i)
}
