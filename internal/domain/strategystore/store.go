// Package strategystore defines the strategy document model, the attachment
// role and lifecycle vocabularies, and the persistence contract.
package strategystore

import (
	"context"
	"errors"
	"strings"

	"github.com/vibetrade/studio/internal/domain/slots"
)

// ErrNotFound is returned when the referenced strategy does not exist.
var ErrNotFound = errors.New("strategy not found")

// Attachment roles. Sizing and risk are expressed inside entry cards, not as
// standalone roles.
const (
	RoleEntry   = "entry"
	RoleGate    = "gate"
	RoleExit    = "exit"
	RoleOverlay = "overlay"
)

// Strategy lifecycle statuses.
const (
	StatusDraft   = "draft"
	StatusReady   = "ready"
	StatusRunning = "running"
	StatusPaused  = "paused"
	StatusStopped = "stopped"
	StatusError   = "error"
)

// ValidRole reports whether role is one of the four attachment roles.
func ValidRole(role string) bool {
	switch role {
	case RoleEntry, RoleGate, RoleExit, RoleOverlay:
		return true
	default:
		return false
	}
}

// ValidStatus reports whether status is a known lifecycle state.
func ValidStatus(status string) bool {
	switch status {
	case StatusDraft, StatusReady, StatusRunning, StatusPaused, StatusStopped, StatusError:
		return true
	default:
		return false
	}
}

// InferRole derives the attachment role from an archetype type id such as
// "entry.trend_pullback". It returns "" when the kind prefix is not a role.
func InferRole(typeID string) string {
	kind, _, found := strings.Cut(typeID, ".")
	if !found {
		return ""
	}
	if ValidRole(kind) {
		return kind
	}
	return ""
}

// Attachment links a card into a strategy under a role. CardRevisionID pins
// the card's updated_at stamp when FollowLatest is false.
type Attachment struct {
	CardID         string     `json:"card_id"`
	Role           string     `json:"role"`
	Enabled        bool       `json:"enabled"`
	Overrides      slots.Tree `json:"overrides,omitempty"`
	FollowLatest   bool       `json:"follow_latest"`
	CardRevisionID string     `json:"card_revision_id,omitempty"`
}

// Strategy is the composition root: an owner's named collection of card
// attachments over a symbol universe.
type Strategy struct {
	ID          string       `json:"id"`
	OwnerID     string       `json:"owner_id"`
	ThreadID    string       `json:"thread_id,omitempty"`
	Name        string       `json:"name"`
	Status      string       `json:"status"`
	Universe    []string     `json:"universe"`
	Attachments []Attachment `json:"attachments"`
	Version     int          `json:"version"`
	CreatedAt   string       `json:"created_at"`
	UpdatedAt   string       `json:"updated_at"`
}

// Clone returns a deep copy of the strategy.
func (s *Strategy) Clone() *Strategy {
	if s == nil {
		return nil
	}
	out := *s
	out.Universe = append([]string(nil), s.Universe...)
	out.Attachments = make([]Attachment, len(s.Attachments))
	for i, att := range s.Attachments {
		att.Overrides = slots.Clone(att.Overrides)
		out.Attachments[i] = att
	}
	return &out
}

// Attachment returns the attachment for cardID, if present.
func (s *Strategy) Attachment(cardID string) (*Attachment, bool) {
	for i := range s.Attachments {
		if s.Attachments[i].CardID == cardID {
			return &s.Attachments[i], true
		}
	}
	return nil, false
}

// Store persists strategy documents. Implementations assign ids on Create and
// bump Version plus UpdatedAt on every Update.
type Store interface {
	Create(ctx context.Context, strategy *Strategy) (*Strategy, error)
	Get(ctx context.Context, id string) (*Strategy, error)
	Update(ctx context.Context, strategy *Strategy) (*Strategy, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Strategy, error)
	FindByOwner(ctx context.Context, ownerID string) ([]*Strategy, error)
	FindByThread(ctx context.Context, threadID string) (*Strategy, error)
}
