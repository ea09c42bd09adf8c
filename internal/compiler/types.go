package compiler

import (
	"github.com/ak125/contentgate/internal/content"
	"github.com/ak125/contentgate/internal/policy"
)

// #region input
// Input is one compile request: the raw sections of a page for one role.
type Input struct {
	Role           content.Role
	Sections       []content.RawSection
	Claims         []content.Claim
	ItemLabel      string
	HasActiveBrief bool
}

// #endregion input

// #region compiled-section
// CompiledSection is a policy-compliant section. A new compile produces new values.
type CompiledSection struct {
	Key          content.SectionKey
	Title        string
	Content      string // HTML
	WordCount    int    // plain-text words
	Mode         policy.Mode
	WasTruncated bool
	WasStripped  bool
	Source       content.SourceType
}

// SectionMeta is the per-section summary persisted next to the content.
type SectionMeta struct {
	WordCount    int                `json:"word_count"`
	Mode         policy.Mode        `json:"mode"`
	WasTruncated bool               `json:"was_truncated"`
	WasStripped  bool               `json:"was_stripped"`
	Source       content.SourceType `json:"source"`
}

// #endregion compiled-section

// #region log
// CompilationLog records every change the compiler made, for audit.
type CompilationLog struct {
	PolicyVersion string               `json:"policy_version"`
	Stripped      []content.SectionKey `json:"stripped,omitempty"`
	Truncated     []content.SectionKey `json:"truncated,omitempty"`
	LinkStubs     []content.SectionKey `json:"link_stubs,omitempty"`
	Fallbacks     []content.SectionKey `json:"fallbacks,omitempty"`
	Passthrough   []content.SectionKey `json:"passthrough,omitempty"`
	FAQRemoved    []string             `json:"faq_removed,omitempty"`    // question texts
	BlockedClaims []string             `json:"blocked_claims,omitempty"` // claim IDs
}

// #endregion log

// #region result
// Result is the output of Compile.
type Result struct {
	Sections []CompiledSection
	Log      CompilationLog
	Meta     map[content.SectionKey]SectionMeta
	// Claims is a copy of the input claims with erased unverified claims flipped to blocked.
	Claims []content.Claim
}

// #endregion result
