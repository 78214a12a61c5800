// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDocs struct {
	docs map[string]DocumentMeta
}

func (f *fakeDocs) DocumentMeta(ctx context.Context, id string) (DocumentMeta, error) {
	d, ok := f.docs[id]
	if !ok {
		return DocumentMeta{}, assert.AnError
	}
	return d, nil
}

type fakePerms struct {
	grants []Grant
}

func (f *fakePerms) Grant(ctx context.Context, documentID, principal string, kind GranteeKind, level Level) error {
	f.grants = append(f.grants, Grant{Principal: principal, Kind: kind, Level: level})
	return nil
}

func TestPredicate_Allows_Owner(t *testing.T) {
	p := Predicate{UserID: "alice", RequiredLevel: LevelAdmin}
	assert.True(t, p.Allows(DocumentMeta{OwnerID: "alice"}))
}

func TestPredicate_Allows_PublicDocumentReadOnly(t *testing.T) {
	p := Predicate{UserID: "bob", RequiredLevel: LevelRead}
	assert.True(t, p.Allows(DocumentMeta{OwnerID: "alice", Visibility: VisibilityPublic}))

	pWrite := Predicate{UserID: "bob", RequiredLevel: LevelWrite}
	assert.False(t, pWrite.Allows(DocumentMeta{OwnerID: "alice", Visibility: VisibilityPublic}))
}

func TestPredicate_Allows_DirectGrant(t *testing.T) {
	doc := DocumentMeta{OwnerID: "alice", Grants: []Grant{{Principal: "bob", Kind: GranteeUser, Level: LevelWrite}}}
	assert.True(t, Predicate{UserID: "bob", RequiredLevel: LevelRead}.Allows(doc))
	assert.True(t, Predicate{UserID: "bob", RequiredLevel: LevelWrite}.Allows(doc))
	assert.False(t, Predicate{UserID: "bob", RequiredLevel: LevelAdmin}.Allows(doc))
}

func TestPredicate_Allows_TeamGrantRequiresMembership(t *testing.T) {
	doc := DocumentMeta{OwnerID: "alice", Grants: []Grant{{Principal: "team-x", Kind: GranteeTeam, Level: LevelRead}}}
	assert.False(t, Predicate{UserID: "bob", RequiredLevel: LevelRead}.Allows(doc))
	assert.True(t, Predicate{UserID: "bob", RequiredLevel: LevelRead, MemberOf: []string{"team-x"}}.Allows(doc))
}

func TestPredicate_Allows_NoMatchDenies(t *testing.T) {
	doc := DocumentMeta{OwnerID: "alice", Visibility: VisibilityPrivate}
	assert.False(t, Predicate{UserID: "mallory", RequiredLevel: LevelRead}.Allows(doc))
}

func TestEffectiveLevel(t *testing.T) {
	doc := DocumentMeta{
		OwnerID: "alice",
		Grants:  []Grant{{Principal: "bob", Kind: GranteeUser, Level: LevelWrite}},
	}
	assert.Equal(t, LevelAdmin, EffectiveLevel("alice", nil, doc))
	assert.Equal(t, LevelWrite, EffectiveLevel("bob", nil, doc))
	assert.Equal(t, LevelNone, EffectiveLevel("mallory", nil, doc))
}

func TestService_Share_RequiresAdmin(t *testing.T) {
	docs := &fakeDocs{docs: map[string]DocumentMeta{
		"doc-1": {ID: "doc-1", OwnerID: "alice", Grants: []Grant{{Principal: "bob", Kind: GranteeUser, Level: LevelWrite}}},
	}}
	perms := &fakePerms{}
	svc := NewService(nil, docs, perms)

	err := svc.Share(context.Background(), "doc-1", "carol", GranteeUser, LevelRead, "bob")
	require.Error(t, err)
	assert.Empty(t, perms.grants)
}

func TestService_Share_OwnerCanGrant(t *testing.T) {
	docs := &fakeDocs{docs: map[string]DocumentMeta{
		"doc-1": {ID: "doc-1", OwnerID: "alice"},
	}}
	perms := &fakePerms{}
	svc := NewService(nil, docs, perms)

	err := svc.Share(context.Background(), "doc-1", "carol", GranteeUser, LevelRead, "alice")
	require.NoError(t, err)
	require.Len(t, perms.grants, 1)
	assert.Equal(t, "carol", perms.grants[0].Principal)
	assert.Equal(t, LevelRead, perms.grants[0].Level)
}

func TestService_PredicateFor_CachesMemberOfPerRequest(t *testing.T) {
	svc := NewService(nil, &fakeDocs{docs: map[string]DocumentMeta{}}, &fakePerms{})

	p1 := svc.PredicateFor(context.Background(), "req-1", "alice", LevelRead, []string{"team-x"})
	assert.Equal(t, []string{"team-x"}, p1.MemberOf)

	// Same request id, different knownGroups supplied: cached value wins.
	p2 := svc.PredicateFor(context.Background(), "req-1", "alice", LevelRead, []string{"team-y"})
	assert.Equal(t, []string{"team-x"}, p2.MemberOf)

	svc.ReleaseRequest("req-1")
	p3 := svc.PredicateFor(context.Background(), "req-1", "alice", LevelRead, []string{"team-y"})
	assert.Equal(t, []string{"team-y"}, p3.MemberOf)
}

func TestService_Check(t *testing.T) {
	docs := &fakeDocs{docs: map[string]DocumentMeta{
		"doc-1": {ID: "doc-1", OwnerID: "alice", Visibility: VisibilityPrivate},
	}}
	svc := NewService(nil, docs, &fakePerms{})

	ok, err := svc.Check(context.Background(), "alice", "doc-1", LevelAdmin)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Check(context.Background(), "mallory", "doc-1", LevelRead)
	require.NoError(t, err)
	assert.False(t, ok)
}
