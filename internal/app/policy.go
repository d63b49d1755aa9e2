package app

import (
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
)

// Policy decides what happens to a member whose send buffer is full.
type Policy interface {
	OnBackPressure(room domain.RoomCode, member core.MemberSession) BackpressureAction
}

// SimplePolicy kicks slow members. The client reconnects and rebuilds its peer list.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(room domain.RoomCode, member core.MemberSession) BackpressureAction {
	return KickMember
}
