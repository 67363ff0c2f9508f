package domain

import "strings"

// UserRecord is one account as held by a user-record service.
type UserRecord struct {
	UserID       string `yaml:"user_id" json:"user_id"`
	Name         string `yaml:"name" json:"name"`
	Mobile       string `yaml:"mobile" json:"mobile"`
	Code         string `yaml:"otp" json:"-"`
	DOB          string `yaml:"dob" json:"dob,omitempty"`
	Email        string `yaml:"email" json:"email,omitempty"`
	Address      string `yaml:"address" json:"address,omitempty"`
	BillAmount   string `yaml:"bill_amount" json:"bill_amount,omitempty"`
	BillDue      string `yaml:"bill_due" json:"bill_due,omitempty"`
	LastLogin    string `yaml:"last_login" json:"last_login,omitempty"`
	Transactions string `yaml:"transactions" json:"transactions,omitempty"`
}

// Record returns the fields of kind. Empty values are left out.
func (u UserRecord) Record(kind DataKind) Record {
	var r Record
	switch kind {
	case DataProfile:
		r = Record{"name": u.Name, "date_of_birth": u.DOB}
	case DataBilling:
		r = Record{"bill_amount": u.BillAmount, "due_date": u.BillDue}
	case DataContact:
		r = Record{"email": u.Email, "address": u.Address}
	case DataLastLogin:
		r = Record{"last_login": u.LastLogin}
	case DataActivity:
		r = Record{"transactions": u.Transactions}
	default:
		return nil
	}
	for k, v := range r {
		if v == "" {
			delete(r, k)
		}
	}
	return r
}

// MatchesIdentifier reports whether id names this user, either by user id or by
// mobile number (compared on digits only).
func (u UserRecord) MatchesIdentifier(id string) bool {
	if id == "" {
		return false
	}
	if id == u.UserID {
		return true
	}
	d := DigitsOf(id)
	return d != "" && d == DigitsOf(u.Mobile)
}

// DigitsOf strips everything but ASCII digits.
func DigitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
