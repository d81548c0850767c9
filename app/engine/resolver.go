package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/peyk/models"
	"github.com/amirphl/peyk/repository"
)

// Target is one recipient in a frozen campaign run
type Target struct {
	Address string
	Name    string
}

// Resolution errors
var (
	ErrGroupNotFound   = errors.New("target contact group not found")
	ErrGroupIDRequired = errors.New("contact group identifier missing from target spec")
	ErrTargetsEmpty    = errors.New("target resolution produced no recipients")
	ErrUnknownTarget   = errors.New("unknown target kind")
	ErrRosterRequired  = errors.New("no chat roster configured for chat_group targets")
	ErrChatJIDRequired = errors.New("chat group identifier missing from target spec")
)

// ChatRoster lists the participants of an external chat group. The gateway
// transport provides this for chat_group campaigns.
type ChatRoster interface {
	Participants(ctx context.Context, chatGroupJID string) ([]Target, error)
}

// TargetResolver turns a target spec into the ordered recipient list of one
// run. Resolution happens once per run; the result is frozen afterwards.
type TargetResolver interface {
	Resolve(ctx context.Context, spec models.TargetSpec) ([]Target, error)
}

// ResolverImpl resolves targets from the local contact store and, for chat
// groups, the gateway roster
type ResolverImpl struct {
	contactRepo repository.ContactRepository
	groupRepo   repository.ContactGroupRepository
	roster      ChatRoster
}

// NewResolver creates a target resolver. roster may be nil when chat_group
// campaigns are not used.
func NewResolver(contactRepo repository.ContactRepository, groupRepo repository.ContactGroupRepository, roster ChatRoster) TargetResolver {
	return &ResolverImpl{
		contactRepo: contactRepo,
		groupRepo:   groupRepo,
		roster:      roster,
	}
}

// Resolve produces the ordered, de-duplicated recipient list for a spec.
// Ordering is stable: membership order for groups, store order for
// all_contacts, roster order for chat groups. Invalid contacts are skipped.
func (r *ResolverImpl) Resolve(ctx context.Context, spec models.TargetSpec) ([]Target, error) {
	switch spec.Kind {
	case models.TargetKindContactGroup:
		if spec.GroupID == nil {
			return nil, ErrGroupIDRequired
		}
		group, err := r.groupRepo.ByID(ctx, *spec.GroupID)
		if err != nil {
			return nil, fmt.Errorf("failed to load target group: %w", err)
		}
		if group == nil {
			return nil, ErrGroupNotFound
		}

		contacts, err := r.contactRepo.ListByGroup(ctx, *spec.GroupID)
		if err != nil {
			return nil, fmt.Errorf("failed to list group contacts: %w", err)
		}
		return dedupe(fromContacts(contacts)), nil

	case models.TargetKindAllContacts:
		contacts, err := r.contactRepo.ListAllLocal(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list contacts: %w", err)
		}
		return dedupe(fromContacts(contacts)), nil

	case models.TargetKindChatGroup:
		if r.roster == nil {
			return nil, ErrRosterRequired
		}
		if spec.ChatGroupJID == nil {
			return nil, ErrChatJIDRequired
		}
		participants, err := r.roster.Participants(ctx, *spec.ChatGroupJID)
		if err != nil {
			return nil, fmt.Errorf("failed to list chat group participants: %w", err)
		}
		return dedupe(participants), nil

	default:
		return nil, ErrUnknownTarget
	}
}

func fromContacts(contacts []*models.Contact) []Target {
	targets := make([]Target, 0, len(contacts))
	for _, c := range contacts {
		if !c.IsValid {
			continue
		}
		t := Target{Address: c.Address}
		if c.DisplayName != nil {
			t.Name = *c.DisplayName
		}
		targets = append(targets, t)
	}
	return targets
}

// dedupe removes repeated addresses keeping the first occurrence
func dedupe(targets []Target) []Target {
	seen := make(map[string]struct{}, len(targets))
	out := targets[:0]
	for _, t := range targets {
		if _, ok := seen[t.Address]; ok {
			continue
		}
		seen[t.Address] = struct{}{}
		out = append(out, t)
	}
	return out
}
