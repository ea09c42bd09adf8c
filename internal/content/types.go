package content

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// #region role
// Role identifies which page type a piece of content is written for.
type Role string

const (
	RoleRouter    Role = "router"    // catalog landing page, routes visitors to products
	RoleAdvice    Role = "advice"    // how-to and maintenance advice page
	RoleReference Role = "reference" // encyclopedic reference page
)

// Roles lists every known role in a stable order.
var Roles = []Role{RoleRouter, RoleAdvice, RoleReference}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// #endregion role

// #region section-key
// SectionKey identifies a page section. Unknown keys pass through the compiler untouched.
type SectionKey string

const (
	SectionIntro     SectionKey = "intro"
	SectionSymptoms  SectionKey = "symptoms"
	SectionTiming    SectionKey = "replacement_timing"
	SectionProcedure SectionKey = "procedure"
	SectionSelection SectionKey = "selection_guide"
	SectionSpecs     SectionKey = "technical_specs"
	SectionBuying    SectionKey = "buying_guide"
	SectionFAQ       SectionKey = "faq"
	SectionUnknown   SectionKey = ""
)

// SectionKeys lists every known section in page order.
var SectionKeys = []SectionKey{
	SectionIntro, SectionSymptoms, SectionTiming, SectionProcedure,
	SectionSelection, SectionSpecs, SectionBuying, SectionFAQ,
}

// Known reports whether k is a registered section key.
func (k SectionKey) Known() bool {
	for _, s := range SectionKeys {
		if k == s {
			return true
		}
	}
	return false
}

// #endregion section-key

// #region source-type
// SourceType is where a section's text came from.
type SourceType string

const (
	SourceDB     SourceType = "db"
	SourceRAG    SourceType = "rag"
	SourceAI     SourceType = "ai"
	SourceStatic SourceType = "static"
	SourceEmpty  SourceType = "empty"
)

// #endregion source-type

// #region raw-section
// RawSection is one section of HTML as produced by the enrichment collaborator.
type RawSection struct {
	Key    SectionKey `json:"key"`
	HTML   string     `json:"html"`
	Source SourceType `json:"source"`
}

// #endregion raw-section

// #region claim
// ClaimKind categorizes an extracted factual assertion.
type ClaimKind string

const (
	ClaimMileage    ClaimKind = "mileage"
	ClaimDimension  ClaimKind = "dimension"
	ClaimPercentage ClaimKind = "percentage"
	ClaimNorm       ClaimKind = "norm"
)

// ClaimStatus is the verification state of a claim.
type ClaimStatus string

const (
	ClaimVerified   ClaimStatus = "verified"
	ClaimUnverified ClaimStatus = "unverified"
	ClaimBlocked    ClaimStatus = "blocked"
)

// Claim is a factual span extracted upstream and cross-checked against evidence.
type Claim struct {
	Kind            ClaimKind   `json:"kind"`
	RawText         string      `json:"raw_text"`
	NormalizedValue string      `json:"normalized_value"`
	Unit            string      `json:"unit"`
	SectionKey      SectionKey  `json:"section_key"`
	SourceRef       *string     `json:"source_ref,omitempty"`
	Status          ClaimStatus `json:"status"`
}

// ID is stable across extraction runs: it depends only on kind, normalized value and section.
func (c Claim) ID() string {
	h := sha256.Sum256([]byte(strings.Join([]string{
		string(c.Kind), strings.ToLower(strings.TrimSpace(c.NormalizedValue)), string(c.SectionKey),
	}, "|")))
	return hex.EncodeToString(h[:8])
}

// #endregion claim

// #region evidence
// EvidenceEntry is one excerpt of the evidence pack backing an item.
type EvidenceEntry struct {
	DocID      string  `json:"doc_id"`
	Heading    string  `json:"heading"`
	Excerpt    string  `json:"excerpt"` // at most MaxExcerptLen chars
	Confidence float64 `json:"confidence"`
}

// MaxExcerptLen caps evidence excerpts.
const MaxExcerptLen = 200

// #endregion evidence

// #region brief
// BriefStatus is the lifecycle state of an editorial brief.
type BriefStatus string

const (
	BriefDraft     BriefStatus = "draft"
	BriefValidated BriefStatus = "validated"
	BriefActive    BriefStatus = "active"
	BriefArchived  BriefStatus = "archived"
)

// Brief is the editorial contract for one (item, role) page.
type Brief struct {
	ID               string      `json:"id"`
	ItemID           string      `json:"item_id"`
	Role             Role        `json:"role"`
	PrimaryIntent    string      `json:"primary_intent"`
	SecondaryIntents []string    `json:"secondary_intents,omitempty"`
	ForbiddenOverlap []string    `json:"forbidden_overlap,omitempty"`
	RequiredTerms    []string    `json:"required_terms,omitempty"`
	PrimaryKeyword   string      `json:"primary_keyword"`
	Status           BriefStatus `json:"status"`
	Version          int         `json:"version"`
}

// #endregion brief

// #region item
// Item is the catalog entry (a product range) a page is generated for.
type Item struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
	// Protected holds operator-owned fields (title, meta description, ...) that
	// automated publishing must never overwrite.
	Protected map[string]string `json:"protected,omitempty"`
}

// #endregion item

// #region material
// Scope narrows what the enrichment collaborator may draw from.
type Scope string

const (
	ScopeDefault      Scope = "default"
	ScopeEvidenceOnly Scope = "evidence_only"
)

// Material is everything the enrichment collaborator returns for one (item, role).
type Material struct {
	Item     Item            `json:"item"`
	Sections []RawSection    `json:"sections"`
	Claims   []Claim         `json:"claims,omitempty"`
	Evidence []EvidenceEntry `json:"evidence,omitempty"`
}

// Empty reports whether the material carries no usable section text.
func (m Material) Empty() bool {
	for _, s := range m.Sections {
		if strings.TrimSpace(s.HTML) != "" {
			return false
		}
	}
	return true
}

// #endregion material
