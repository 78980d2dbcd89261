// SPDX-FileCopyrightText: Copyright 2026 Diamond Light Source Ltd.
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diamondlightsource/hebi-launcher/pkg/errors"
)

func TestEligible(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		record Record
		want   bool
	}{
		{"ordinary staff member", Record{UID: 12345, IsStaff: true}, true},
		{"not staff", Record{UID: 12345}, false},
		{"root uid", Record{UID: 0, IsUIDRoot: true, IsStaff: true}, false},
		{"sysadmin", Record{UID: 12345, IsStaff: true, IsSysadmin: true}, false},
		{"functional account", Record{UID: 12345, IsStaff: true, IsFunctional: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.record.Eligible())
		})
	}
}

// fakeLDAP answers searches from a canned filter -> entry table. Methods
// outside Bind/Search/Close are never reached in these tests.
type fakeLDAP struct {
	ldap.Client
	results map[string]*ldap.SearchResult
	bindErr error
}

func (f *fakeLDAP) UnauthenticatedBind(string) error { return f.bindErr }
func (*fakeLDAP) Close() error                       { return nil }

func (f *fakeLDAP) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	res, ok := f.results[req.Filter]
	if !ok {
		return &ldap.SearchResult{}, nil
	}
	return res, nil
}

func entry(attr string, values ...string) *ldap.SearchResult {
	return &ldap.SearchResult{
		Entries: []*ldap.Entry{
			ldap.NewEntry("cn=whatever", map[string][]string{attr: values}),
		},
	}
}

func fakeDirectory(client ldap.Client, dialErr error) *LDAPDirectory {
	d := NewLDAPDirectory("ldap://ldap.diamond.ac.uk")
	d.dial = func(string) (ldap.Client, error) { return client, dialErr }
	return d
}

func TestLookup(t *testing.T) {
	t.Parallel()

	client := &fakeLDAP{results: map[string]*ldap.SearchResult{
		"(uid=abc12345)":          entry(attrUIDNumber, "54321"),
		"(cn=dls_staff)":          entry(attrMemberUID, "xyz1", "abc12345", "xyz2"),
		"(cn=dls_sysadmin)":       entry(attrMemberUID, "xyz1"),
		"(cn=functional_accounts)": entry(attrMemberUID, "gda2"),
	}}

	record, err := fakeDirectory(client, nil).Lookup(context.Background(), "abc12345")
	require.NoError(t, err)

	assert.Equal(t, 54321, record.UID)
	assert.False(t, record.IsUIDRoot)
	assert.True(t, record.IsStaff)
	assert.False(t, record.IsSysadmin)
	assert.False(t, record.IsFunctional)
	assert.True(t, record.Eligible())
}

func TestLookupRootUID(t *testing.T) {
	t.Parallel()

	client := &fakeLDAP{results: map[string]*ldap.SearchResult{
		"(uid=root)":               entry(attrUIDNumber, "0"),
		"(cn=dls_staff)":           entry(attrMemberUID, "root"),
		"(cn=dls_sysadmin)":        entry(attrMemberUID),
		"(cn=functional_accounts)": entry(attrMemberUID),
	}}

	record, err := fakeDirectory(client, nil).Lookup(context.Background(), "root")
	require.NoError(t, err)

	assert.True(t, record.IsUIDRoot)
	assert.False(t, record.Eligible())
}

func TestLookupUnknownUser(t *testing.T) {
	t.Parallel()

	client := &fakeLDAP{results: map[string]*ldap.SearchResult{}}

	_, err := fakeDirectory(client, nil).Lookup(context.Background(), "nobody")
	require.Error(t, err)
	assert.True(t, errors.IsDirectory(err))
}

func TestLookupBindFailure(t *testing.T) {
	t.Parallel()

	client := &fakeLDAP{bindErr: assert.AnError}

	_, err := fakeDirectory(client, nil).Lookup(context.Background(), "abc12345")
	require.Error(t, err)
	assert.True(t, errors.IsDirectory(err))
}

func TestLookupDialFailure(t *testing.T) {
	t.Parallel()

	_, err := fakeDirectory(nil, assert.AnError).Lookup(context.Background(), "abc12345")
	require.Error(t, err)
	assert.True(t, errors.IsDirectory(err))
}
