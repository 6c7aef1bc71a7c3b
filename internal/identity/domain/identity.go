package domain

import (
	"strings"

	"github.com/google/uuid"
)

// anonPrefix marks device-local pseudo-user ids. Authenticated ids come from
// the auth provider and never carry it.
const anonPrefix = "anon-"

// ID identifies the owner of a cart and its orders: either a locally
// generated anonymous id, stable until cleared, or a server-verified user id.
type ID string

// NewAnonymous generates a fresh anonymous identity.
func NewAnonymous() ID {
	return ID(anonPrefix + uuid.NewString())
}

func (id ID) Anonymous() bool {
	return strings.HasPrefix(string(id), anonPrefix)
}

func (id ID) Authenticated() bool {
	return id != "" && !id.Anonymous()
}

// Event is an identity transition. Fired exactly once per transition, before
// any consumer reads state under the new identity.
type Event string

const (
	EventLogin  Event = "login"
	EventLogout Event = "logout"
)
