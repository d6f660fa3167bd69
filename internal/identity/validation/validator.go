// Package validation decides whether a candidate identity may be created.
// Every rule is evaluated and every violation reported; nothing here touches
// storage. Store lookups arrive pre-computed as models.Conflicts.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"

	"uniid/internal/identity/models"
)

// MinStudentAge is the youngest a Student may be at creation, in years.
const MinStudentAge = 16

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// shape carries the tag-checkable rules. Field order fixes report order.
type shape struct {
	Type              string `validate:"required,oneof=Student PhD Faculty Staff"`
	FirstName         string `validate:"required,min=2"`
	LastName          string `validate:"required,min=2"`
	Email             string `validate:"required,email_shape"`
	DOB               string `validate:"required"`
	Phone             string `validate:"omitempty,number"`
	NationalID        string `validate:"required_if=Type Student"`
	FacultyRank       string `validate:"required_if=Type Faculty"`
	PrimaryDepartment string `validate:"required_if=Type Faculty"`
	StaffDepartment   string `validate:"required_if=Type Staff"`
	JobTitle          string `validate:"required_if=Type Staff"`
}

var messages = map[string]string{
	"Type.required":                 "type cannot be empty",
	"Type.oneof":                    "type must be one of Student, PhD, Faculty, Staff",
	"FirstName.required":            "first name cannot be empty",
	"FirstName.min":                 "First name must be at least 2 characters",
	"LastName.required":             "last name cannot be empty",
	"LastName.min":                  "Last name must be at least 2 characters",
	"Email.required":                "email cannot be empty",
	"Email.email_shape":             "Invalid email format",
	"DOB.required":                  "date of birth cannot be empty",
	"Phone.number":                  "Phone must contain only numbers",
	"NationalID.required_if":        "Student national ID is required",
	"FacultyRank.required_if":       "Faculty rank is required",
	"PrimaryDepartment.required_if": "Primary department is required",
	"StaffDepartment.required_if":   "Staff department is required",
	"JobTitle.required_if":          "Job title is required",
}

// Messages for rules that need more than field tags.
const (
	MsgDuplicatePerson = "An identity with the same name, date of birth, and type already exists"
	MsgDuplicateEmail  = "Email already exists"
	MsgFutureBirthDate = "Birth date cannot be in the future"
	MsgUnderage        = "You must be at least 16 years old"
	MsgBadDate         = "Invalid date format"
)

// Validator checks candidates. It is safe for concurrent use.
type Validator struct {
	validate *validator.Validate
}

// New builds a Validator with the custom email rule registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("email_shape", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("register email_shape: %v", err))
	}
	return &Validator{validate: v}
}

// Validate returns every rule the candidate violates; an empty result means
// it may be created. c must already be normalized.
func (v *Validator) Validate(c *models.Candidate, existing models.Conflicts, now time.Time) []string {
	var violations []string

	violations = append(violations, v.checkShape(c)...)

	if c.FirstName != "" && c.LastName != "" && c.DOB != "" && c.Type != "" && existing.SamePerson {
		violations = append(violations, MsgDuplicatePerson)
	}
	if c.Email != "" && existing.SameEmail {
		violations = append(violations, MsgDuplicateEmail)
	}

	violations = append(violations, checkBirthDate(c, now)...)
	return violations
}

func (v *Validator) checkShape(c *models.Candidate) []string {
	err := v.validate.Struct(shape{
		Type:              c.Type,
		FirstName:         c.FirstName,
		LastName:          c.LastName,
		Email:             c.Email,
		DOB:               c.DOB,
		Phone:             c.Phone,
		NationalID:        c.NationalID,
		FacultyRank:       c.FacultyRank,
		PrimaryDepartment: c.PrimaryDepartment,
		StaffDepartment:   c.StaffDepartment,
		JobTitle:          c.JobTitle,
	})
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg, ok := messages[fe.Field()+"."+fe.Tag()]
		if !ok {
			msg = fmt.Sprintf("%s is invalid", fe.Field())
		}
		out = append(out, msg)
	}
	return out
}

func checkBirthDate(c *models.Candidate, now time.Time) []string {
	if c.DOB == "" {
		return nil
	}
	dob, err := time.ParseInLocation("2006-01-02", c.DOB, now.Location())
	if err != nil {
		return []string{MsgBadDate}
	}
	var out []string
	if dob.After(now) {
		out = append(out, MsgFutureBirthDate)
	}
	if models.Type(c.Type) == models.TypeStudent && AgeYears(dob, now) < MinStudentAge {
		out = append(out, MsgUnderage)
	}
	return out
}

// AgeYears is whole days since birth divided by 365.25.
func AgeYears(dob, now time.Time) float64 {
	days := int(now.Sub(dob).Hours() / 24)
	return float64(days) / 365.25
}
