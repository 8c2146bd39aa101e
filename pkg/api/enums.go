package api

import "fmt"

// CommunicationType is the kind of a non-policy agency document.
type CommunicationType string

const (
	CommLetter    CommunicationType = "letter"
	CommAgentNote CommunicationType = "agent_note"
	CommEAndO     CommunicationType = "e_and_o"
	CommClaims    CommunicationType = "claims"
	CommMemo      CommunicationType = "memo"
	CommOther     CommunicationType = "other"
)

// CommunicationTypes lists every kind in display order.
var CommunicationTypes = []CommunicationType{
	CommLetter, CommAgentNote, CommEAndO, CommClaims, CommMemo, CommOther,
}

// ParseCommunicationType validates s. The empty string is not a type.
func ParseCommunicationType(s string) (CommunicationType, error) {
	switch t := CommunicationType(s); t {
	case CommLetter, CommAgentNote, CommEAndO, CommClaims, CommMemo, CommOther:
		return t, nil
	}
	return "", fmt.Errorf("unknown communication type %q", s)
}

// Label is the display name.
func (t CommunicationType) Label() string {
	switch t {
	case CommLetter:
		return "Letter"
	case CommAgentNote:
		return "Agent Note"
	case CommEAndO:
		return "E&O Record"
	case CommClaims:
		return "Claims"
	case CommMemo:
		return "Memo"
	case CommOther:
		return "Other"
	}
	return string(t)
}

// DocumentType is the document class a query ran against.
type DocumentType string

const (
	DocPolicy        DocumentType = "policy"
	DocCommunication DocumentType = "communication"
)

// ParseDocumentType validates s.
func ParseDocumentType(s string) (DocumentType, error) {
	switch t := DocumentType(s); t {
	case DocPolicy, DocCommunication:
		return t, nil
	}
	return "", fmt.Errorf("unknown document type %q", s)
}

// Label is the display name.
func (t DocumentType) Label() string {
	switch t {
	case DocPolicy:
		return "Policy"
	case DocCommunication:
		return "Communication"
	}
	return string(t)
}

// UserType is who asked a logged query.
type UserType string

const (
	UserStaff        UserType = "staff"
	UserPolicyholder UserType = "policyholder"
)

// ParseUserType validates s.
func ParseUserType(s string) (UserType, error) {
	switch t := UserType(s); t {
	case UserStaff, UserPolicyholder:
		return t, nil
	}
	return "", fmt.Errorf("unknown user type %q", s)
}

// Label is the display name.
func (t UserType) Label() string {
	switch t {
	case UserStaff:
		return "Staff"
	case UserPolicyholder:
		return "Policyholder"
	}
	return string(t)
}
