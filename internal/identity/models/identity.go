package models

import (
	"errors"
	"fmt"
	"time"

	"uniid/pkg/platform/sentinel"
)

// Store-level uniqueness facts. Both wrap sentinel.ErrAlreadyUsed.
var (
	ErrDuplicateKey   = fmt.Errorf("identity key: %w", sentinel.ErrAlreadyUsed)
	ErrDuplicateEmail = fmt.Errorf("identity email: %w", sentinel.ErrAlreadyUsed)
)

// IsDuplicateKey reports whether err is a key collision on insert.
func IsDuplicateKey(err error) bool {
	return errors.Is(err, ErrDuplicateKey)
}

// IsDuplicateEmail reports whether err is an email collision on insert.
func IsDuplicateEmail(err error) bool {
	return errors.Is(err, ErrDuplicateEmail)
}

// Identity is one person tracked by the university.
//
// Invariants:
//   - ID is assigned once at creation and never changes
//   - Email is unique across all identities, compared case-insensitively
//   - Status is always one of the five lifecycle states
//   - StatusChangedAt changes if and only if Status changes
//   - Archived identities are never updated
type Identity struct {
	ID              string     `json:"id"`
	Type            Type       `json:"type"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	DOB             string     `json:"dob"`
	PlaceOfBirth    string     `json:"place_of_birth,omitempty"`
	Nationality     string     `json:"nationality,omitempty"`
	Gender          string     `json:"gender,omitempty"`
	Email           string     `json:"email"`
	Phone           string     `json:"phone,omitempty"`
	Status          Status     `json:"status"`
	StatusChangedAt *time.Time `json:"status_changed_at,omitempty"`
	Attributes
}

// Attributes are the sparse type-specific descriptive fields. Only a few
// are validated at creation; the rest are stored as entered.
type Attributes struct {
	NationalID           string `json:"national_id,omitempty"`
	DiplomaType          string `json:"diploma_type,omitempty"`
	DiplomaYear          string `json:"diploma_year,omitempty"`
	Major                string `json:"major,omitempty"`
	EntryYear            string `json:"entry_year,omitempty"`
	StudentStatus        string `json:"student_status,omitempty"`
	FacultyRank          string `json:"faculty_rank,omitempty"`
	AppointmentStart     string `json:"appointment_start,omitempty"`
	PrimaryDepartment    string `json:"primary_department,omitempty"`
	SecondaryDepartments string `json:"secondary_departments,omitempty"`
	OfficeLocation       string `json:"office_location,omitempty"`
	PhDInstitution       string `json:"phd_institution,omitempty"`
	ResearchAreas        string `json:"research_areas,omitempty"`
	ContractType         string `json:"contract_type,omitempty"`
	ContractStart        string `json:"contract_start,omitempty"`
	ContractEnd          string `json:"contract_end,omitempty"`
	TeachingHours        string `json:"teaching_hours,omitempty"`
	StaffDepartment      string `json:"staff_department,omitempty"`
	JobTitle             string `json:"job_title,omitempty"`
	Grade                string `json:"grade,omitempty"`
	StaffEntryDate       string `json:"staff_entry_date,omitempty"`
}

// NewIdentity builds a Pending identity from a normalized candidate.
func NewIdentity(id string, c *Candidate, now time.Time) *Identity {
	since := now
	return &Identity{
		ID:              id,
		Type:            Type(c.Type),
		FirstName:       c.FirstName,
		LastName:        c.LastName,
		DOB:             c.DOB,
		PlaceOfBirth:    c.PlaceOfBirth,
		Nationality:     c.Nationality,
		Gender:          c.Gender,
		Email:           c.Email,
		Phone:           c.Phone,
		Status:          StatusPending,
		StatusChangedAt: &since,
		Attributes:      c.Attributes,
	}
}

// Clone returns a deep copy so callers can stage changes without touching
// the stored record.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	if i.StatusChangedAt != nil {
		t := *i.StatusChangedAt
		c.StatusChangedAt = &t
	}
	return &c
}

// IsArchived reports whether the identity is in the terminal state.
func (i *Identity) IsArchived() bool {
	return i.Status.IsTerminal()
}

// FormatKey renders an identity key: prefix, four-digit year, and a
// five-digit zero-padded sequence number.
func FormatKey(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s%d%05d", prefix, year, seq)
}
