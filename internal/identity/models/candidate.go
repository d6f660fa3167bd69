package models

import "strings"

// Candidate is a proposed identity awaiting validation.
type Candidate struct {
	Type         string `json:"type"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	DOB          string `json:"dob"`
	PlaceOfBirth string `json:"place_of_birth"`
	Nationality  string `json:"nationality"`
	Gender       string `json:"gender"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Attributes
}

// Normalize trims every field and lower-cases the email. Validation and
// storage both operate on the normalized form.
func (c *Candidate) Normalize() {
	c.Type = strings.TrimSpace(c.Type)
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	c.DOB = strings.TrimSpace(c.DOB)
	c.PlaceOfBirth = strings.TrimSpace(c.PlaceOfBirth)
	c.Nationality = strings.TrimSpace(c.Nationality)
	c.Gender = strings.TrimSpace(c.Gender)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.Phone = strings.TrimSpace(c.Phone)

	a := &c.Attributes
	for _, p := range []*string{
		&a.NationalID, &a.DiplomaType, &a.DiplomaYear, &a.Major, &a.EntryYear,
		&a.StudentStatus, &a.FacultyRank, &a.AppointmentStart, &a.PrimaryDepartment,
		&a.SecondaryDepartments, &a.OfficeLocation, &a.PhDInstitution, &a.ResearchAreas,
		&a.ContractType, &a.ContractStart, &a.ContractEnd, &a.TeachingHours,
		&a.StaffDepartment, &a.JobTitle, &a.Grade, &a.StaffEntryDate,
	} {
		*p = strings.TrimSpace(*p)
	}
}

// Conflicts summarizes what the store already holds that would clash with
// a candidate.
type Conflicts struct {
	// SamePerson is set when an identity of the same type shares first name,
	// last name (case-insensitive) and date of birth.
	SamePerson bool
	// SameEmail is set when the email is already taken, ignoring case.
	SameEmail bool
}
