// SPDX-FileCopyrightText: Copyright 2026 Diamond Light Source Ltd.
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/go-ldap/ldap/v3"

	"github.com/diamondlightsource/hebi-launcher/pkg/errors"
)

const (
	peopleDN = "ou=people,dc=diamond,dc=ac,dc=uk"
	groupDN  = "ou=group,dc=diamond,dc=ac,dc=uk"

	attrUIDNumber = "uidNumber"
	attrMemberUID = "memberUid"
)

// LDAPDirectory implements Directory against an LDAP server. Each lookup
// dials, binds anonymously, runs its searches and closes the connection,
// so a record is always a fresh snapshot.
type LDAPDirectory struct {
	serverURL string
	dial      func(url string) (ldap.Client, error)
}

// NewLDAPDirectory creates a directory client for the given server URL.
func NewLDAPDirectory(serverURL string) *LDAPDirectory {
	return &LDAPDirectory{
		serverURL: serverURL,
		dial: func(url string) (ldap.Client, error) {
			return ldap.DialURL(url)
		},
	}
}

// Lookup returns the directory record for a FedID.
func (d *LDAPDirectory) Lookup(ctx context.Context, fedid string) (*Record, error) {
	conn, err := d.dial(d.serverURL)
	if err != nil {
		return nil, errors.NewDirectoryError("failed to dial ldap server", err)
	}
	defer conn.Close()

	if err := conn.UnauthenticatedBind(""); err != nil {
		return nil, errors.NewDirectoryError("failed ldap server bind", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	uid, err := d.lookupUID(conn, fedid)
	if err != nil {
		return nil, err
	}

	record := &Record{
		UID:       uid,
		IsUIDRoot: uid == 0,
	}

	for _, group := range []struct {
		name   string
		member *bool
	}{
		{groupStaff, &record.IsStaff},
		{groupSysadmin, &record.IsSysadmin},
		{groupFunctional, &record.IsFunctional},
	} {
		member, err := d.isGroupMember(conn, group.name, fedid)
		if err != nil {
			return nil, err
		}
		*group.member = member
	}

	return record, nil
}

func (d *LDAPDirectory) lookupUID(conn ldap.Client, fedid string) (int, error) {
	req := ldap.NewSearchRequest(
		peopleDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		fmt.Sprintf("(uid=%s)", ldap.EscapeFilter(fedid)),
		[]string{attrUIDNumber},
		nil,
	)

	res, err := conn.Search(req)
	if err != nil {
		return 0, errors.NewDirectoryError("uid search failed for "+fedid, err)
	}
	if len(res.Entries) == 0 {
		return 0, errors.NewDirectoryError("no directory entry for "+fedid, nil)
	}

	uid, err := strconv.Atoi(res.Entries[0].GetAttributeValue(attrUIDNumber))
	if err != nil {
		return 0, errors.NewDirectoryError("malformed uidNumber for "+fedid, err)
	}
	return uid, nil
}

func (d *LDAPDirectory) isGroupMember(conn ldap.Client, group, fedid string) (bool, error) {
	req := ldap.NewSearchRequest(
		groupDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		fmt.Sprintf("(cn=%s)", ldap.EscapeFilter(group)),
		[]string{attrMemberUID},
		nil,
	)

	res, err := conn.Search(req)
	if err != nil {
		return false, errors.NewDirectoryError("group search failed for "+group, err)
	}
	if len(res.Entries) == 0 {
		return false, errors.NewDirectoryError("group not found: "+group, nil)
	}

	return slices.Contains(res.Entries[0].GetAttributeValues(attrMemberUID), fedid), nil
}
