// Package rules compiles stored rule templates into runtime predicates:
// an ItemFilter of ordered exclusion rules and a list of RenameRules.
// Malformed entries are logged and dropped; compilation never fails on a
// single bad rule.
package rules

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Target selects which item attribute a rule inspects.
type Target string

const (
	TargetName      Target = "name"
	TargetPath      Target = "path"
	TargetExtension Target = "extension"
)

// ItemType restricts a rule to files, folders, or both.
type ItemType string

const (
	ItemFile   ItemType = "file"
	ItemFolder ItemType = "folder"
	ItemAny    ItemType = "any"
)

// Mode is the match operator of an exclusion rule.
type Mode string

const (
	ModeContains   Mode = "contains"
	ModeStartsWith Mode = "starts_with"
	ModeEndsWith   Mode = "ends_with"
	ModeExact      Mode = "exact"
	ModeRegex      Mode = "regex"
)

// ruleConfig is the stored JSON shape of RuleTemplate.rule_config.
type ruleConfig struct {
	Rules []json.RawMessage `json:"rules"`
}

// exclusionSpec is one stored exclusion rule entry.
type exclusionSpec struct {
	Pattern       string   `json:"pattern"`
	Target        Target   `json:"target"`
	ItemType      ItemType `json:"item_type"`
	Mode          Mode     `json:"mode"`
	CaseSensitive bool     `json:"case_sensitive"`
}

// renameSpec is one stored rename rule entry.
type renameSpec struct {
	MatchRegex    string `json:"match_regex"`
	ReplaceString string `json:"replace_string"`
	TargetScope   Target `json:"target_scope"`
	CaseSensitive bool   `json:"case_sensitive"`
}

// ExclusionRule is a compiled exclusion predicate.
type ExclusionRule struct {
	pattern       string
	target        Target
	itemType      ItemType
	mode          Mode
	caseSensitive bool
	re            *regexp.Regexp // non-nil only for ModeRegex
}

// Matches reports whether the item identified by (name, path, isFolder)
// matches this rule.
func (r *ExclusionRule) Matches(name, path string, isFolder bool) bool {
	if r.itemType == ItemFile && isFolder {
		return false
	}

	if r.itemType == ItemFolder && !isFolder {
		return false
	}

	value := r.selectValue(name, path)

	if r.mode == ModeRegex {
		return r.re.MatchString(value)
	}

	pattern := r.pattern
	if !r.caseSensitive {
		value = strings.ToLower(value)
		pattern = strings.ToLower(pattern)
	}

	switch r.mode {
	case ModeContains:
		return strings.Contains(value, pattern)
	case ModeStartsWith:
		return strings.HasPrefix(value, pattern)
	case ModeEndsWith:
		return strings.HasSuffix(value, pattern)
	case ModeExact:
		return value == pattern
	default:
		return false
	}
}

// selectValue picks the attribute the rule inspects. For extension, the
// value is the substring after the final dot, empty when there is none.
func (r *ExclusionRule) selectValue(name, path string) string {
	switch r.target {
	case TargetPath:
		return path
	case TargetExtension:
		if i := strings.LastIndexByte(name, '.'); i >= 0 && i < len(name)-1 {
			return name[i+1:]
		}

		return ""
	default:
		return name
	}
}

// ItemFilter evaluates exclusion rules in declared order; first match wins.
// A nil ItemFilter excludes nothing.
type ItemFilter struct {
	rules []*ExclusionRule
}

// ShouldExclude reports whether the item matches any active exclusion rule.
func (f *ItemFilter) ShouldExclude(name, path string, isFolder bool) bool {
	if f == nil {
		return false
	}

	for _, r := range f.rules {
		if r.Matches(name, path, isFolder) {
			return true
		}
	}

	return false
}

// Len returns the number of compiled rules.
func (f *ItemFilter) Len() int {
	if f == nil {
		return 0
	}

	return len(f.rules)
}

// RenameRule is a compiled regex substitution over an item's name or path.
type RenameRule struct {
	re      *regexp.Regexp
	replace string
	scope   Target
}

// Scope returns the attribute the rule rewrites (name or path).
func (r *RenameRule) Scope() Target {
	return r.scope
}

// Apply substitutes the rule against the scoped value and returns the new
// value, or ok=false when nothing changed.
func (r *RenameRule) Apply(name, path string) (string, bool) {
	value := name
	if r.scope == TargetPath {
		value = path
	}

	out := r.re.ReplaceAllString(value, r.replace)
	if out == value {
		return "", false
	}

	return out, true
}

// ApplyRenames runs the rules in order against a name and returns the value
// after the first rule that changes it. Path-scoped rules are skipped here;
// the diff compares per-level names.
func ApplyRenames(renames []*RenameRule, name, path string) string {
	for _, r := range renames {
		if r.scope == TargetPath {
			continue
		}

		if out, ok := r.Apply(name, path); ok {
			return out
		}
	}

	return name
}

// CompileExclusions parses a rule_config JSON document into an ItemFilter.
// Entries with unknown enums or bad regexes are logged and skipped.
func CompileExclusions(raw []byte, logger *slog.Logger) (*ItemFilter, error) {
	specs, err := decodeRules(raw)
	if err != nil {
		return nil, err
	}

	f := &ItemFilter{}

	for i, entry := range specs {
		var spec exclusionSpec
		if err := json.Unmarshal(entry, &spec); err != nil {
			logger.Warn("skipping malformed exclusion rule", "index", i, "error", err)
			continue
		}

		rule, err := compileExclusion(spec)
		if err != nil {
			logger.Warn("skipping invalid exclusion rule", "index", i, "pattern", spec.Pattern, "error", err)
			continue
		}

		f.rules = append(f.rules, rule)
	}

	return f, nil
}

func compileExclusion(spec exclusionSpec) (*ExclusionRule, error) {
	if spec.Pattern == "" {
		return nil, fmt.Errorf("empty pattern")
	}

	switch spec.Target {
	case TargetName, TargetPath, TargetExtension:
	case "":
		spec.Target = TargetName
	default:
		return nil, fmt.Errorf("unknown target %q", spec.Target)
	}

	switch spec.ItemType {
	case ItemFile, ItemFolder, ItemAny:
	case "":
		spec.ItemType = ItemAny
	default:
		return nil, fmt.Errorf("unknown item_type %q", spec.ItemType)
	}

	rule := &ExclusionRule{
		pattern:       spec.Pattern,
		target:        spec.Target,
		itemType:      spec.ItemType,
		mode:          spec.Mode,
		caseSensitive: spec.CaseSensitive,
	}

	// Patterns like ".mp4" and "mp4" mean the same extension.
	if spec.Target == TargetExtension {
		rule.pattern = strings.TrimPrefix(rule.pattern, ".")
	}

	switch spec.Mode {
	case ModeContains, ModeStartsWith, ModeEndsWith, ModeExact:
	case ModeRegex:
		expr := spec.Pattern
		if !spec.CaseSensitive {
			expr = "(?i)" + expr
		}

		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compiling regex: %w", err)
		}

		rule.re = re
	default:
		return nil, fmt.Errorf("unknown mode %q", spec.Mode)
	}

	return rule, nil
}

// CompileRenames parses a rule_config JSON document into rename rules.
// Invalid entries are logged and skipped.
func CompileRenames(raw []byte, logger *slog.Logger) ([]*RenameRule, error) {
	specs, err := decodeRules(raw)
	if err != nil {
		return nil, err
	}

	var out []*RenameRule

	for i, entry := range specs {
		var spec renameSpec
		if err := json.Unmarshal(entry, &spec); err != nil {
			logger.Warn("skipping malformed rename rule", "index", i, "error", err)
			continue
		}

		rule, err := compileRename(spec)
		if err != nil {
			logger.Warn("skipping invalid rename rule", "index", i, "regex", spec.MatchRegex, "error", err)
			continue
		}

		out = append(out, rule)
	}

	return out, nil
}

func compileRename(spec renameSpec) (*RenameRule, error) {
	if spec.MatchRegex == "" {
		return nil, fmt.Errorf("empty match_regex")
	}

	switch spec.TargetScope {
	case TargetName, TargetPath:
	case "":
		spec.TargetScope = TargetName
	default:
		return nil, fmt.Errorf("unknown target_scope %q", spec.TargetScope)
	}

	expr := spec.MatchRegex
	if !spec.CaseSensitive {
		expr = "(?i)" + expr
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compiling regex: %w", err)
	}

	return &RenameRule{re: re, replace: spec.ReplaceString, scope: spec.TargetScope}, nil
}

func decodeRules(raw []byte) ([]json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var cfg ruleConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("rules: parsing rule_config: %w", err)
	}

	return cfg.Rules, nil
}
