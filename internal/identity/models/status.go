package models

// Status is the lifecycle state of an identity.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusActive    Status = "Active"
	StatusSuspended Status = "Suspended"
	StatusInactive  Status = "Inactive"
	StatusArchived  Status = "Archived"
)

// Statuses lists every lifecycle state in display order.
var Statuses = []Status{StatusPending, StatusActive, StatusSuspended, StatusInactive, StatusArchived}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusSuspended, StatusInactive, StatusArchived:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusArchived
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus returns the status named by s and whether it is known.
func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	return st, st.IsValid()
}

// Type is the kind of university member an identity represents.
type Type string

const (
	TypeStudent Type = "Student"
	TypePhD     Type = "PhD"
	TypeFaculty Type = "Faculty"
	TypeStaff   Type = "Staff"
)

// Types lists every identity type.
var Types = []Type{TypeStudent, TypePhD, TypeFaculty, TypeStaff}

var typePrefixes = map[Type]string{
	TypeStudent: "STU",
	TypePhD:     "PHD",
	TypeFaculty: "FAC",
	TypeStaff:   "STF",
}

func (t Type) IsValid() bool {
	_, ok := typePrefixes[t]
	return ok
}

// Prefix is the key prefix for identities of this type.
func (t Type) Prefix() string {
	return typePrefixes[t]
}
