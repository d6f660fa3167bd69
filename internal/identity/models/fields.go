package models

import "time"

// Field names as they appear in edit requests and audit entries.
const (
	FieldFirstName         = "first_name"
	FieldLastName          = "last_name"
	FieldStatus            = "status"
	FieldNationalID        = "national_id"
	FieldDiplomaType       = "diploma_type"
	FieldDiplomaYear       = "diploma_year"
	FieldEntryYear         = "entry_year"
	FieldFacultyRank       = "faculty_rank"
	FieldPrimaryDepartment = "primary_department"
	FieldStaffDepartment   = "staff_department"
	FieldJobTitle          = "job_title"
	FieldStaffEntryDate    = "staff_entry_date"
)

// EditableFields is the allowlist of fields an edit may change, in the
// order audit entries are produced.
var EditableFields = []string{
	FieldFirstName,
	FieldLastName,
	FieldStatus,
	FieldNationalID,
	FieldDiplomaType,
	FieldDiplomaYear,
	FieldEntryYear,
	FieldFacultyRank,
	FieldPrimaryDepartment,
	FieldStaffDepartment,
	FieldJobTitle,
	FieldStaffEntryDate,
}

// IsEditable reports whether name is on the edit allowlist.
func IsEditable(name string) bool {
	for _, f := range EditableFields {
		if f == name {
			return true
		}
	}
	return false
}

// field returns a pointer to the string backing an editable field.
// Status is handled separately because it is typed.
func (i *Identity) field(name string) *string {
	switch name {
	case FieldFirstName:
		return &i.FirstName
	case FieldLastName:
		return &i.LastName
	case FieldNationalID:
		return &i.NationalID
	case FieldDiplomaType:
		return &i.DiplomaType
	case FieldDiplomaYear:
		return &i.DiplomaYear
	case FieldEntryYear:
		return &i.EntryYear
	case FieldFacultyRank:
		return &i.FacultyRank
	case FieldPrimaryDepartment:
		return &i.PrimaryDepartment
	case FieldStaffDepartment:
		return &i.StaffDepartment
	case FieldJobTitle:
		return &i.JobTitle
	case FieldStaffEntryDate:
		return &i.StaffEntryDate
	}
	return nil
}

// Field returns the text value of an editable field.
func (i *Identity) Field(name string) (string, bool) {
	if name == FieldStatus {
		return string(i.Status), true
	}
	p := i.field(name)
	if p == nil {
		return "", false
	}
	return *p, true
}

// SetField writes an editable field. Setting status also refreshes
// StatusChangedAt to now.
func (i *Identity) SetField(name, value string, now time.Time) bool {
	if name == FieldStatus {
		i.Status = Status(value)
		since := now
		i.StatusChangedAt = &since
		return true
	}
	p := i.field(name)
	if p == nil {
		return false
	}
	*p = value
	return true
}
