package activedirectory

import (
	"strconv"
	"time"
)

// userAccountControl flags.
const (
	UACAccountDisabled      int64 = 0x00000002
	UACLockout              int64 = 0x00000010
	UACPasswordNotRequired  int64 = 0x00000020
	UACPasswordCantChange   int64 = 0x00000040
	UACNormalAccount        int64 = 0x00000200
	UACPasswordNeverExpires int64 = 0x00010000
	UACSmartCardRequired    int64 = 0x00040000
	UACPasswordExpired      int64 = 0x00800000
)

// groupType flags.
const (
	GroupTypeGlobal      int64 = 0x00000002
	GroupTypeDomainLocal int64 = 0x00000004
	GroupTypeUniversal   int64 = 0x00000008
	GroupTypeSecurity    int64 = 0x80000000
)

// fileTimeEpoch is 1970-01-01 in 100ns intervals since 1601-01-01.
const fileTimeEpoch = 116444736000000000

// neverExpires is the accountExpires value for accounts that never expire.
const neverExpires = 9223372036854775807

const generalizedTimeLayout = "20060102150405.0Z"

// ParseFileTime converts an Active Directory integer timestamp
// (pwdLastSet, lockoutTime, lastLogon, accountExpires). Zero, "never" and
// pre-1970 values report false.
func ParseFileTime(value string) (time.Time, bool) {
	ticks, err := strconv.ParseInt(value, 10, 64)
	if err != nil || ticks <= fileTimeEpoch || ticks == neverExpires {
		return time.Time{}, false
	}
	return time.Unix(0, (ticks-fileTimeEpoch)*100).UTC(), true
}

// ParseGeneralizedTime converts whenCreated and whenChanged values.
func ParseGeneralizedTime(value string) (time.Time, bool) {
	t, err := time.Parse(generalizedTimeLayout, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (o *Object) intValue(name string) (int64, bool) {
	v, err := strconv.ParseInt(o.Get(name), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// AccountControl returns userAccountControl if it was projected.
func (u *User) AccountControl() (int64, bool) {
	return u.intValue("userAccountControl")
}

// Disabled reports whether the account is disabled.
func (u *User) Disabled() bool {
	uac, ok := u.AccountControl()
	return ok && uac&UACAccountDisabled != 0
}

// PasswordNeverExpires reports the DONT_EXPIRE_PASSWORD flag.
func (u *User) PasswordNeverExpires() bool {
	uac, ok := u.AccountControl()
	return ok && uac&UACPasswordNeverExpires != 0
}

// LockedOut reports a non-zero lockoutTime.
func (u *User) LockedOut() bool {
	_, ok := ParseFileTime(u.Get("lockoutTime"))
	return ok
}

// PasswordLastSet returns pwdLastSet. It reports false when the password
// must change at next logon.
func (u *User) PasswordLastSet() (time.Time, bool) {
	return ParseFileTime(u.Get("pwdLastSet"))
}

// Created returns whenCreated.
func (u *User) Created() (time.Time, bool) {
	return ParseGeneralizedTime(u.Get("whenCreated"))
}

// Scope returns Global, DomainLocal, Universal or "" when groupType was not
// projected.
func (g *Group) Scope() string {
	gt, ok := g.intValue("groupType")
	switch {
	case !ok:
		return ""
	case gt&GroupTypeGlobal != 0:
		return "Global"
	case gt&GroupTypeDomainLocal != 0:
		return "DomainLocal"
	case gt&GroupTypeUniversal != 0:
		return "Universal"
	default:
		return ""
	}
}

// Security reports whether the group is a security group.
func (g *Group) Security() bool {
	gt, ok := g.intValue("groupType")
	return ok && gt&GroupTypeSecurity != 0
}
