// Package eduverify decides whether an email address belongs to an
// educational institution. Classification is pure and deterministic: no I/O,
// no errors. An unparseable email is simply not educational.
package eduverify

import (
	"strings"

	userdomain "studyhub/backend/internal/user/domain"
)

// Confidence expresses how certain the classifier is that the email is
// institutional.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Method names the rule that produced the verdict.
type Method string

const (
	MethodDomainMatch  Method = "domain-match"
	MethodPatternMatch Method = "pattern-match"
	MethodNone         Method = "none"
)

// Classification is the classifier verdict for one email address.
type Classification struct {
	IsEducational   bool
	InstitutionName string
	InstitutionType string
	Domain          string
	Method          Method
	Confidence      Confidence
}

// institution is one entry of the fixed known-institution table.
type institution struct {
	Name   string
	Domain string
	Type   string
}

// knownInstitutions is the fixed table of recognized institutional domains.
// Matching is by exact domain or dot-suffix (mail.tudelft.nl matches tudelft.nl).
var knownInstitutions = []institution{
	{Name: "Delft University of Technology", Domain: "tudelft.nl", Type: "university"},
	{Name: "University of Amsterdam", Domain: "uva.nl", Type: "university"},
	{Name: "Vrije Universiteit Amsterdam", Domain: "vu.nl", Type: "university"},
	{Name: "Utrecht University", Domain: "uu.nl", Type: "university"},
	{Name: "Eindhoven University of Technology", Domain: "tue.nl", Type: "university"},
	{Name: "Leiden University", Domain: "leidenuniv.nl", Type: "university"},
	{Name: "Erasmus University Rotterdam", Domain: "eur.nl", Type: "university"},
	{Name: "University of Groningen", Domain: "rug.nl", Type: "university"},
	{Name: "Wageningen University", Domain: "wur.nl", Type: "university"},
	{Name: "Radboud University", Domain: "ru.nl", Type: "university"},
	{Name: "Hogeschool van Amsterdam", Domain: "hva.nl", Type: "applied-sciences"},
	{Name: "Fontys University of Applied Sciences", Domain: "fontys.nl", Type: "applied-sciences"},
	{Name: "Hanze University of Applied Sciences", Domain: "hanze.nl", Type: "applied-sciences"},
	{Name: "ROC Midden Nederland", Domain: "rocmn.nl", Type: "vocational"},
}

// studentMarkers are subdomain or local-part markers that identify student
// addresses of institutions the table knows (student.tudelft.nl,
// j.doe@student.uva.nl, and the like).
var studentMarkers = []string{"student.", "students.", "alumni.", "stud."}

// genericMarkers are substrings that make an unknown domain look educational.
var genericMarkers = []string{".edu", ".ac.", "university", "hogeschool", "college"}

// Classify classifies a raw email address. First matching rule wins:
// known-domain match (high), student-marker match against a known institution
// (medium), generic educational marker (medium), otherwise not educational (low).
func Classify(email string) Classification {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return Classification{Method: MethodNone, Confidence: ConfidenceLow}
	}
	domain := email[at+1:]

	if inst := matchKnownDomain(domain); inst != nil {
		return Classification{
			IsEducational:   true,
			InstitutionName: inst.Name,
			InstitutionType: inst.Type,
			Domain:          inst.Domain,
			Method:          MethodDomainMatch,
			Confidence:      ConfidenceHigh,
		}
	}

	if inst := matchStudentMarker(domain); inst != nil {
		return Classification{
			IsEducational:   true,
			InstitutionName: inst.Name,
			InstitutionType: inst.Type,
			Domain:          inst.Domain,
			Method:          MethodPatternMatch,
			Confidence:      ConfidenceMedium,
		}
	}

	for _, marker := range genericMarkers {
		if strings.Contains(domain, marker) {
			return Classification{
				IsEducational: true,
				Domain:        domain,
				Method:        MethodPatternMatch,
				Confidence:    ConfidenceMedium,
			}
		}
	}

	return Classification{Domain: domain, Method: MethodNone, Confidence: ConfidenceLow}
}

// matchKnownDomain returns the table entry whose domain equals or dot-suffixes
// the given domain, or nil.
func matchKnownDomain(domain string) *institution {
	for i := range knownInstitutions {
		d := knownInstitutions[i].Domain
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return &knownInstitutions[i]
		}
	}
	return nil
}

// matchStudentMarker returns a known institution whose bare domain appears
// behind a student marker (e.g. student.tudelft.nl reduced to tudelft.nl is
// covered by matchKnownDomain; this catches markers glued to otherwise
// unlisted variants like student-tudelft.nl or stud.hanze.org).
func matchStudentMarker(domain string) *institution {
	for _, marker := range studentMarkers {
		if !strings.Contains(domain, marker) && !strings.HasPrefix(domain, strings.TrimSuffix(marker, ".")+"-") {
			continue
		}
		for i := range knownInstitutions {
			bare := strings.TrimSuffix(knownInstitutions[i].Domain, ".nl")
			if bare != "" && strings.Contains(domain, bare) {
				return &knownInstitutions[i]
			}
		}
	}
	return nil
}

// Verification maps a classification to the user verification triple.
// High confidence yields edu-verified via edu-domain; medium yields
// email-verified via edu-pattern; anything else stays unverified.
type Verification struct {
	IsVerified bool
	Status     userdomain.VerificationStatus
	Method     userdomain.VerificationMethod
}

// VerificationFromClassification derives the verification fields a login flow
// should stamp on the user for the given verdict.
func VerificationFromClassification(c Classification) Verification {
	switch {
	case c.IsEducational && c.Confidence == ConfidenceHigh:
		return Verification{
			IsVerified: true,
			Status:     userdomain.VerificationStatusEduVerified,
			Method:     userdomain.VerificationMethodEduDomain,
		}
	case c.IsEducational && c.Confidence == ConfidenceMedium:
		return Verification{
			IsVerified: true,
			Status:     userdomain.VerificationStatusEmailVerified,
			Method:     userdomain.VerificationMethodEduPattern,
		}
	default:
		return Verification{
			IsVerified: false,
			Status:     userdomain.VerificationStatusUnverified,
			Method:     userdomain.VerificationMethodNone,
		}
	}
}
