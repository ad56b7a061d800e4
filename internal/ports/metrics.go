package ports

import (
	"github.com/bnema/imsim/internal/domain"
	"github.com/bnema/imsim/internal/wire"
)

type Metrics interface {
	FrameSent(cmd wire.Command)
	FrameReceived(cmd wire.Command)
	DecodeFailed(cmd wire.Command)
	SessionsByStatus(counts map[domain.Status]int)
}

type NopMetrics struct{}

func (NopMetrics) FrameSent(wire.Command)                 {}
func (NopMetrics) FrameReceived(wire.Command)             {}
func (NopMetrics) DecodeFailed(wire.Command)              {}
func (NopMetrics) SessionsByStatus(map[domain.Status]int) {}
