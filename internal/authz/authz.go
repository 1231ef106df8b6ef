// Package authz maps the fixed set of roles to the operations they may
// perform. Every service method checks a capability before touching state.
package authz

import (
	"fmt"

	"github.com/supportdesk/backend/internal/errs"
	"github.com/supportdesk/backend/internal/models"
)

type Capability string

const (
	ChatCreate          Capability = "chat.create"
	ChatList            Capability = "chat.list"
	ChatReadMessages    Capability = "chat.read_messages"
	ChatMarkRead        Capability = "chat.mark_read"
	ChatEscalate        Capability = "chat.escalate"
	ChatClose           Capability = "chat.close"
	MessageSendClient   Capability = "message.send_client"
	MessageSendOperator Capability = "message.send_operator"
	NoteAdd             Capability = "note.add"
	NoteList            Capability = "note.list"
	RatingAdd           Capability = "rating.add"
	RatingListOwn       Capability = "rating.list_own"
	RatingListAny       Capability = "rating.list_any"
	StaffList           Capability = "staff.list"
	UsersManage         Capability = "users.manage"
)

// Principal is the caller identity resolved from a session token. The zero
// value is an anonymous guest.
type Principal struct {
	UserID int64
	Role   models.Role
}

var Guest = Principal{}

func (p Principal) IsGuest() bool { return p.UserID == 0 }

func (p Principal) String() string {
	if p.IsGuest() {
		return "guest"
	}
	return fmt.Sprintf("%s#%d", p.Role, p.UserID)
}

type capSet map[Capability]struct{}

func set(caps ...Capability) capSet {
	s := make(capSet, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

var (
	customerCaps = set(ChatCreate, ChatReadMessages, MessageSendClient)

	operatorCaps = set(
		ChatList, ChatReadMessages, ChatMarkRead, ChatEscalate, ChatClose,
		MessageSendOperator, NoteAdd, NoteList, RatingListOwn, StaffList,
	)

	okkCaps = set(
		ChatList, ChatReadMessages, ChatMarkRead, NoteList,
		RatingAdd, RatingListOwn, RatingListAny, StaffList,
	)

	adminCaps = set(
		ChatCreate, ChatList, ChatReadMessages, ChatMarkRead, ChatEscalate, ChatClose,
		MessageSendClient, MessageSendOperator, NoteAdd, NoteList,
		RatingAdd, RatingListOwn, RatingListAny, StaffList, UsersManage,
	)
)

func capsFor(p Principal) capSet {
	if p.IsGuest() {
		return customerCaps
	}
	switch p.Role {
	case models.RoleClient:
		return customerCaps
	case models.RoleOperator:
		return operatorCaps
	case models.RoleOKK:
		return okkCaps
	case models.RoleAdmin:
		return adminCaps
	}
	return nil
}

func (p Principal) Can(c Capability) bool {
	_, ok := capsFor(p)[c]
	return ok
}

// Require returns errs.ErrForbidden unless p holds c.
func Require(p Principal, c Capability) error {
	if p.Can(c) {
		return nil
	}
	return fmt.Errorf("%s requires %s: %w", p, c, errs.ErrForbidden)
}

// Self resolves an identity field that must belong to the caller: an
// omitted value defaults to the caller, a different value is rejected.
func Self(p Principal, claimed *int64) (int64, error) {
	if p.IsGuest() {
		return 0, fmt.Errorf("identity required: %w", errs.ErrForbidden)
	}
	if claimed == nil || *claimed == 0 {
		return p.UserID, nil
	}
	if *claimed != p.UserID {
		return 0, fmt.Errorf("%s cannot act as user %d: %w", p, *claimed, errs.ErrForbidden)
	}
	return p.UserID, nil
}
