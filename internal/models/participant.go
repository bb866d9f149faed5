package models

import (
	"fmt"
	"strings"
)

type ParticipantKind string

const (
	KindUser   ParticipantKind = "user"
	KindClient ParticipantKind = "client"
	// KindSystem only ever appears as a message sender.
	KindSystem ParticipantKind = "system"
)

// Participant is either an internal user or an external client. The kind tag
// makes the two identities mutually exclusive.
type Participant struct {
	Kind ParticipantKind `json:"kind"`
	ID   string          `json:"id"`
}

var SystemSender = Participant{Kind: KindSystem}

func User(id string) Participant   { return Participant{Kind: KindUser, ID: id} }
func Client(id string) Participant { return Participant{Kind: KindClient, ID: id} }

// Valid reports whether p names a user or a client with a non-empty id.
func (p Participant) Valid() bool {
	return (p.Kind == KindUser || p.Kind == KindClient) && p.ID != ""
}

func (p Participant) IsUser() bool   { return p.Kind == KindUser }
func (p Participant) IsClient() bool { return p.Kind == KindClient }
func (p Participant) IsSystem() bool { return p.Kind == KindSystem }

// Key is the stable string form "kind:id" used for channel names and logs.
func (p Participant) Key() string {
	return string(p.Kind) + ":" + p.ID
}

func (p Participant) String() string { return p.Key() }

func ParseParticipant(key string) (Participant, error) {
	kind, id, ok := strings.Cut(key, ":")
	if !ok {
		return Participant{}, fmt.Errorf("malformed participant %q", key)
	}
	p := Participant{Kind: ParticipantKind(kind), ID: id}
	if !p.Valid() {
		return Participant{}, fmt.Errorf("invalid participant %q", key)
	}
	return p, nil
}
