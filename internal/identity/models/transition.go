package models

// TransitionOption reports whether an identity could move to Status right
// now. Reason explains a refusal in user-facing terms.
type TransitionOption struct {
	Status  Status `json:"status"`
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}
