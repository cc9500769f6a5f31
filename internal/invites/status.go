package invites

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/super0605/naxum-api/internal/phone"
)

// MaxCheckStatusPhones caps one check-status batch. The client sends a
// device contact book, which can be large but not unbounded.
const MaxCheckStatusPhones = 500

// ErrTooManyPhones is returned when a check-status batch exceeds the cap
var ErrTooManyPhones = errors.New("too many phone numbers in one request")

// CheckStatuses resolves the best-known standing of each phone relative
// to the caller: MEMBER when a registered user matches, otherwise the
// most recent invitation the caller sent to that number, otherwise
// NOT_INVITED. canInvite is true only for NOT_INVITED and DECLINED.
func (s *Service) CheckStatuses(ctx context.Context, callerID uuid.UUID, phones []string) ([]ContactStatus, error) {
	if len(phones) > MaxCheckStatusPhones {
		return nil, ErrTooManyPhones
	}

	memberNorms, memberSuffixes, err := s.lookupMemberPhones(ctx, phones)
	if err != nil {
		return nil, err
	}

	sent, err := s.ListSent(ctx, callerID)
	if err != nil {
		return nil, err
	}

	statuses := make([]ContactStatus, 0, len(phones))
	for _, raw := range phones {
		statuses = append(statuses, resolveStatus(raw, memberNorms, memberSuffixes, sent))
	}
	return statuses, nil
}

// lookupMemberPhones batches the user lookup for a whole contact list.
// Matching is strict: normalized equality or national-suffix equality
// when both sides carry a full national number.
func (s *Service) lookupMemberPhones(ctx context.Context, phones []string) (map[string]bool, map[string]bool, error) {
	norms := make([]string, 0, len(phones))
	suffixes := make([]string, 0, len(phones))
	for _, raw := range phones {
		n := phone.Normalize(raw)
		if n == "" {
			continue
		}
		norms = append(norms, n)
		if len(n) >= 10 {
			suffixes = append(suffixes, phone.Suffix(n))
		}
	}
	if len(norms) == 0 {
		return map[string]bool{}, map[string]bool{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT phone_normalized, phone_suffix, length(phone_normalized) >= 10
		FROM users
		WHERE phone_normalized = ANY($1)
		   OR (length(phone_normalized) >= 10 AND phone_suffix = ANY($2))
	`, norms, suffixes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up member phones: %w", err)
	}
	defer rows.Close()

	memberNorms := make(map[string]bool)
	memberSuffixes := make(map[string]bool)
	for rows.Next() {
		var norm, suffix string
		var fullNational bool
		if err := rows.Scan(&norm, &suffix, &fullNational); err != nil {
			return nil, nil, fmt.Errorf("failed to scan member phone: %w", err)
		}
		memberNorms[norm] = true
		if fullNational {
			memberSuffixes[suffix] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating member phones: %w", err)
	}

	return memberNorms, memberSuffixes, nil
}

func resolveStatus(raw string, memberNorms, memberSuffixes map[string]bool, sent []Invitation) ContactStatus {
	norm := phone.Normalize(raw)
	if norm == "" {
		return ContactStatus{Phone: raw, Status: ContactNotInvited, CanInvite: false}
	}

	if memberNorms[norm] || (len(norm) >= 10 && memberSuffixes[phone.Suffix(norm)]) {
		return ContactStatus{Phone: raw, Status: ContactMember, CanInvite: false}
	}

	// sent is ordered newest first; the first match is the most recent
	// invitation to this contact.
	for _, inv := range sent {
		if phone.Match(inv.InviteePhone, raw) {
			return ContactStatus{
				Phone:     raw,
				Status:    string(inv.Status),
				CanInvite: inv.Status == StatusDeclined,
			}
		}
	}

	return ContactStatus{Phone: raw, Status: ContactNotInvited, CanInvite: true}
}
