// SPDX-FileCopyrightText: Copyright 2026 Diamond Light Source Ltd.
// SPDX-License-Identifier: Apache-2.0

// Package directory answers the launcher's questions about users: their
// numeric UID and the group memberships that decide whether a session may
// be launched for them. Lookups go straight to LDAP on every call; records
// are snapshots and are never cached.
package directory

import (
	"context"
)

//go:generate mockgen -destination=mocks/mock_directory.go -package=mocks -source=directory.go Directory

// Group names consulted for eligibility.
const (
	groupStaff      = "dls_staff"
	groupSysadmin   = "dls_sysadmin"
	groupFunctional = "functional_accounts"
)

// Record is the snapshot of a user returned by a directory lookup.
type Record struct {
	// UID is the user's numeric identifier.
	UID int `json:"uid"`

	// IsUIDRoot is true when the UID is 0.
	IsUIDRoot bool `json:"is_uid_root"`

	// IsStaff is true when the user is a member of dls_staff.
	IsStaff bool `json:"is_dls_staff_member"`

	// IsSysadmin is true when the user is a member of dls_sysadmin.
	IsSysadmin bool `json:"is_dls_sysadmin_member"`

	// IsFunctional is true when the user is a functional account.
	IsFunctional bool `json:"is_functional_accounts_member"`
}

// Eligible reports whether a session may be launched for this user:
// staff members only, never root, never sysadmins, never functional
// accounts.
func (r *Record) Eligible() bool {
	return r.IsStaff && !r.IsUIDRoot && !r.IsSysadmin && !r.IsFunctional
}

// Directory looks up users.
type Directory interface {
	// Lookup returns the directory record for a FedID.
	Lookup(ctx context.Context, fedid string) (*Record, error)
}
