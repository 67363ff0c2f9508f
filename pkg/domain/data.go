package domain

import (
	"sort"
	"strings"
)

// DataKind selects one of the read-only data-retrieval calls.
type DataKind string

const (
	DataProfile   DataKind = "profile"
	DataBilling   DataKind = "billing"
	DataContact   DataKind = "contact"
	DataLastLogin DataKind = "last_login"
	DataActivity  DataKind = "activity"
)

// DataKinds lists every retrievable kind.
var DataKinds = []DataKind{DataProfile, DataBilling, DataContact, DataLastLogin, DataActivity}

// Label is the spoken name of a data kind.
func (k DataKind) Label() string {
	switch k {
	case DataProfile:
		return "profile"
	case DataBilling:
		return "billing details"
	case DataContact:
		return "contact details"
	case DataLastLogin:
		return "last login"
	case DataActivity:
		return "recent activity"
	}
	return string(k)
}

// Record is a flat set of named values returned by the data store.
type Record map[string]string

// Keys returns the record's field names in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Speak renders the record as a single spoken sentence fragment.
// Field names are humanised ("bill_amount" -> "bill amount").
func (r Record) Speak() string {
	parts := make([]string, 0, len(r))
	for _, k := range r.Keys() {
		parts = append(parts, strings.ReplaceAll(k, "_", " ")+" "+r[k])
	}
	return strings.Join(parts, ", ")
}
