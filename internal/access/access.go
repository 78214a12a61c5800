// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package access implements the Access Control Service: it resolves "which
// documents may user U read/write" into predicates that the vector
// indexes apply as a metadata filter, and answers single-document
// permission checks. The relational store applies no predicate.
package access

import (
	"context"
	"sync"

	"github.com/northbound/hiverag/internal/errs"
)

// Level is a totally ordered permission capability. Admin implies write
// implies read — a single ordered enum keeps the level arithmetic trivial
// and the audit story clear.
type Level int

const (
	LevelNone Level = iota
	LevelRead
	LevelWrite
	LevelAdmin
)

func (l Level) String() string {
	switch l {
	case LevelRead:
		return "read"
	case LevelWrite:
		return "write"
	case LevelAdmin:
		return "admin"
	default:
		return "none"
	}
}

func ParseLevel(s string) Level {
	switch s {
	case "admin":
		return LevelAdmin
	case "write":
		return LevelWrite
	case "read":
		return LevelRead
	default:
		return LevelNone
	}
}

// Visibility governs a document's default reachability before explicit
// grants are considered.
type Visibility string

const (
	VisibilityPrivate      Visibility = "private"
	VisibilityShared       Visibility = "shared"
	VisibilityTeam         Visibility = "team"
	VisibilityOrganization Visibility = "organization"
	VisibilityPublic       Visibility = "public"
)

// GranteeKind identifies what kind of principal a DocumentPermission grant
// targets.
type GranteeKind string

const (
	GranteeUser         GranteeKind = "user"
	GranteeTeam         GranteeKind = "team"
	GranteeOrganization GranteeKind = "organization"
)

// Grant is a single (grantee, kind, level) permission row, mirroring
// DocumentPermission (§3).
type Grant struct {
	Principal string
	Kind      GranteeKind
	Level     Level
}

// DocumentMeta is the slice of document state the access service needs to
// evaluate a predicate or a single-document check, without pulling in the
// store package (which itself depends on access for Level/Visibility).
type DocumentMeta struct {
	ID         string
	OwnerID    string
	Visibility Visibility
	Grants     []Grant
}

// Membership answers "is user U a member of team/org G" for group grants.
// The engine's host supplies a concrete implementation (team/org
// membership is out of this engine's scope per §1). Service stores the
// Membership it is given but does not consult it: group grants match only
// through the group ids passed to PredicateFor, and Check and Share
// evaluate without any group ids, so group grants never match there.
type Membership interface {
	IsMember(ctx context.Context, userID string, kind GranteeKind, group string) (bool, error)
}

// Predicate is a store/index-agnostic description of "documents readable
// (or better) by this user", built from the union-of-conditions semantics
// in §4.2. It carries the fields the pre-filter needs to translate into
// whatever a given backend speaks — a SQL WHERE fragment, a qdrant filter,
// or the in-memory equivalent — and Allows evaluates the same condition
// directly for the post-filter re-check.
type Predicate struct {
	UserID        string
	RequiredLevel Level
	// MemberOf is the set of team/org ids the user belongs to, resolved once
	// per request and reused for the lifetime of a single query's retrieval
	// loop (§5 — permissions are cached per request, never across requests).
	MemberOf []string
}

// Allows reports whether doc's permission snapshot satisfies p. This is the
// single source of truth shared by the pre-filter (pushed to the store/
// index) and the post-filter (re-checked per §4.10 after retrieval).
func (p Predicate) Allows(doc DocumentMeta) bool {
	if doc.OwnerID == p.UserID {
		return true
	}
	if doc.Visibility == VisibilityPublic && p.RequiredLevel <= LevelRead {
		return true
	}
	for _, g := range doc.Grants {
		if g.Level < p.RequiredLevel {
			continue
		}
		switch g.Kind {
		case GranteeUser:
			if g.Principal == p.UserID {
				return true
			}
		case GranteeTeam, GranteeOrganization:
			for _, m := range p.MemberOf {
				if m == g.Principal {
					return true
				}
			}
		}
	}
	return false
}

// EffectiveLevel returns the maximum level userID holds on doc: the
// maximum of owner-implicit-admin, direct grant, group grant, and
// (if public) read.
func EffectiveLevel(userID string, memberOf []string, doc DocumentMeta) Level {
	if doc.OwnerID == userID {
		return LevelAdmin
	}
	best := LevelNone
	if doc.Visibility == VisibilityPublic && LevelRead > best {
		best = LevelRead
	}
	member := make(map[string]bool, len(memberOf))
	for _, m := range memberOf {
		member[m] = true
	}
	for _, g := range doc.Grants {
		switch g.Kind {
		case GranteeUser:
			if g.Principal == userID && g.Level > best {
				best = g.Level
			}
		case GranteeTeam, GranteeOrganization:
			if member[g.Principal] && g.Level > best {
				best = g.Level
			}
		}
	}
	return best
}

// requestCache holds the per-request MemberOf resolution so a single
// query's retrieval loop never re-resolves group membership (§5).
type requestCache struct {
	mu       sync.RWMutex
	memberOf map[string][]string
}

func newRequestCache() *requestCache {
	return &requestCache{memberOf: make(map[string][]string)}
}

// Service is the Access Control Service described in §4.2.
type Service struct {
	membership Membership
	docs       DocumentLookup
	perms      PermissionWriter
	caches     sync.Map // requestID -> *requestCache
}

// DocumentLookup is the narrow read-path the Service needs from the
// Document Store to answer check() and to resolve a document's grant set.
// It is satisfied by internal/store.Store.
type DocumentLookup interface {
	DocumentMeta(ctx context.Context, documentID string) (DocumentMeta, error)
}

// PermissionWriter is the narrow write-path the Service needs to mutate
// grants for share(). It is satisfied by internal/store.PermissionStore.
type PermissionWriter interface {
	Grant(ctx context.Context, documentID, principal string, kind GranteeKind, level Level) error
}

func NewService(membership Membership, docs DocumentLookup, perms PermissionWriter) *Service {
	return &Service{membership: membership, docs: docs, perms: perms}
}

// Share grants a principal a permission level on a document, authorized by
// byUser (§4.2: share(doc_id, grantee, kind, level, by_user)). byUser must
// hold admin on the document or the grant is refused.
func (s *Service) Share(ctx context.Context, documentID, grantee string, kind GranteeKind, level Level, byUser string) error {
	doc, err := s.docs.DocumentMeta(ctx, documentID)
	if err != nil {
		return err
	}
	if EffectiveLevel(byUser, nil, doc) < LevelAdmin {
		return errs.NotAuthorizedf("access", "user %s does not hold admin on document %s", byUser, documentID)
	}
	return s.perms.Grant(ctx, documentID, grantee, kind, level)
}

// PredicateFor builds the Predicate for a request, resolving group
// membership once and caching it under requestID for the request's
// lifetime. Call ReleaseRequest when the request completes.
func (s *Service) PredicateFor(ctx context.Context, requestID, userID string, required Level, knownGroups []string) Predicate {
	cacheVal, _ := s.caches.LoadOrStore(requestID, newRequestCache())
	cache := cacheVal.(*requestCache)

	cache.mu.RLock()
	memberOf, ok := cache.memberOf[userID]
	cache.mu.RUnlock()
	if !ok {
		memberOf = knownGroups
		cache.mu.Lock()
		cache.memberOf[userID] = memberOf
		cache.mu.Unlock()
	}

	return Predicate{UserID: userID, RequiredLevel: required, MemberOf: memberOf}
}

// ReleaseRequest drops the per-request cache entry. Callers must invoke
// this once the query or ingestion request completes.
func (s *Service) ReleaseRequest(requestID string) {
	s.caches.Delete(requestID)
}

// Check answers a single-document permission question.
func (s *Service) Check(ctx context.Context, userID, documentID string, required Level) (bool, error) {
	doc, err := s.docs.DocumentMeta(ctx, documentID)
	if err != nil {
		return false, err
	}
	p := Predicate{UserID: userID, RequiredLevel: required}
	return p.Allows(doc), nil
}
