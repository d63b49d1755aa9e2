package core

import (
	"github.com/dkeye/Consult/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

func (p *PublishResult) Merge(o PublishResult) {
	p.SendTo += o.SendTo
	p.Dropped = append(p.Dropped, o.Dropped...)
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	SID  SessionID   `json:"sid"`
	Name string      `json:"name"`
	Role domain.Role `json:"role"`
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Code() domain.RoomCode
	MemberCount() int
	MembersSnapshot() []MemberDTO
	Member(sid SessionID) (MemberSession, bool)

	AddMember(sid SessionID, ms MemberSession)
	RemoveMember(sid SessionID) (MemberSession, bool)
	Broadcast(from SessionID, data Frame) PublishResult
}

type RoomInfo struct {
	Code        domain.RoomCode `json:"code"`
	MemberCount int             `json:"member_count"`
	Members     []MemberDTO     `json:"members"`
}

type RoomManager interface {
	GetOrCreate(code domain.RoomCode) RoomService
	Get(code domain.RoomCode) (RoomService, bool)
	List() []RoomInfo
	StopRoom(code domain.RoomCode)
}
