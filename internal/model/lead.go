package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DNCStatus is the calling disposition assigned to a scored lead.
type DNCStatus string

const (
	StatusClean   DNCStatus = "clean"
	StatusCaution DNCStatus = "caution"
	StatusBlocked DNCStatus = "blocked"
)

// RiskFlag tags a single risk signal found for a phone number.
type RiskFlag string

const (
	FlagInvalidPhone       RiskFlag = "invalid_phone_number"
	FlagFederalDNC         RiskFlag = "federal_dnc"
	FlagRecentlyRemovedDNC RiskFlag = "recently_removed_dnc"
	FlagPatternAddRemove   RiskFlag = "pattern_add_remove"
	FlagKnownLitigator     RiskFlag = "known_litigator"
	FlagSerialLitigator    RiskFlag = "serial_litigator"
)

// AllFlags lists the flag vocabulary in scoring order.
var AllFlags = []RiskFlag{
	FlagInvalidPhone,
	FlagFederalDNC,
	FlagRecentlyRemovedDNC,
	FlagPatternAddRemove,
	FlagKnownLitigator,
	FlagSerialLitigator,
}

const phoneField = "phone_number"

// Lead is an input record: a raw phone number plus arbitrary pass-through fields.
type Lead struct {
	PhoneNumber string
	Fields      map[string]any
}

// UnmarshalJSON reads phone_number and keeps every other key in Fields.
func (l *Lead) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if v, ok := raw[phoneField]; ok && v != nil {
		l.PhoneNumber = fmt.Sprint(v)
	}
	delete(raw, phoneField)
	l.Fields = raw
	return nil
}

// MarshalJSON flattens Fields and phone_number into one object.
func (l Lead) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(l.Fields)+1)
	for k, v := range l.Fields {
		out[k] = v
	}
	out[phoneField] = l.PhoneNumber
	return json.Marshal(out)
}

// ProcessedLead is a lead enriched with its normalized phone and risk assessment.
type ProcessedLead struct {
	Fields      map[string]any
	PhoneNumber string
	RiskScore   int
	RiskFlags   []RiskFlag
	DNCStatus   DNCStatus
}

// HasFlag reports whether f is among the lead's risk flags.
func (p *ProcessedLead) HasFlag(f RiskFlag) bool {
	for _, have := range p.RiskFlags {
		if have == f {
			return true
		}
	}
	return false
}

// MarshalJSON flattens pass-through fields with the enrichment columns.
func (p ProcessedLead) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Fields)+4)
	for k, v := range p.Fields {
		out[k] = v
	}
	flags := p.RiskFlags
	if flags == nil {
		flags = []RiskFlag{}
	}
	out[phoneField] = p.PhoneNumber
	out["risk_score"] = p.RiskScore
	out["risk_flags"] = flags
	out["dnc_status"] = p.DNCStatus
	return json.Marshal(out)
}
