package xmtp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"xmtp-agents/gm-agent/pkg/xmtp/gateway"
)

// Preferences exposes inbox state lookups.
type Preferences struct {
	client *Client
}

// InboxState returns this client's inbox state. refresh forces a network fetch.
func (p *Preferences) InboxState(ctx context.Context, refresh bool) (InboxState, error) {
	c := p.client
	if !refresh {
		c.mu.RLock()
		cached := c.inboxState
		c.mu.RUnlock()
		if cached != nil {
			return *cached, nil
		}
	}

	dto, err := c.gw.GetInbox(ctx, c.inboxID)
	if errors.Is(err, gateway.ErrNotFound) {
		return InboxState{}, ErrNotRegistered
	}
	if err != nil {
		return InboxState{}, fmt.Errorf("xmtp: inbox state: %w", err)
	}
	st := inboxStateFromDTO(dto)
	c.setInboxState(&st)
	return st, nil
}

// InboxStateFromInboxIDs fetches the state of each inbox. Unknown inboxes are omitted.
func (p *Preferences) InboxStateFromInboxIDs(ctx context.Context, inboxIDs []string) ([]InboxState, error) {
	out := make([]InboxState, 0, len(inboxIDs))
	for _, id := range inboxIDs {
		dto, err := p.client.gw.GetInbox(ctx, id)
		if errors.Is(err, gateway.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("xmtp: inbox state %s: %w", id, err)
		}
		out = append(out, inboxStateFromDTO(dto))
	}
	return out, nil
}

func inboxStateFromDTO(d gateway.InboxStateDTO) InboxState {
	st := InboxState{
		InboxID:            d.InboxID,
		RecoveryIdentifier: identifierFromDTO(d.RecoveryIdentifier),
	}
	for _, id := range d.Identifiers {
		st.Identifiers = append(st.Identifiers, identifierFromDTO(id))
	}
	for _, inst := range d.Installations {
		i := Installation{ID: inst.ID}
		if inst.ClientTimestampNs > 0 {
			i.ClientTimestamp = time.Unix(0, inst.ClientTimestampNs).UTC()
		}
		st.Installations = append(st.Installations, i)
	}
	return st
}

func identifierFromDTO(d gateway.IdentifierDTO) Identifier {
	return Identifier{Identifier: d.Identifier, Kind: IdentifierKind(d.IdentifierKind)}
}

func identifierToDTO(id Identifier) gateway.IdentifierDTO {
	return gateway.IdentifierDTO{Identifier: id.Identifier, IdentifierKind: int(id.Kind)}
}
