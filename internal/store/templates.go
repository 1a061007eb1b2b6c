package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Rule template types.
const (
	TemplateExclusion = "exclusion"
	TemplateRename    = "rename"
)

// RuleTemplate is a reusable rule bundle (table rule_template).
// RuleConfig holds the raw JSON document compiled by the rules package.
type RuleTemplate struct {
	ID           int64
	TemplateName string
	TemplateType string
	Description  string
	IsSystem     bool
	IsActive     bool
	RuleConfig   []byte
	UsageCount   int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateRuleTemplate inserts a template and returns its id.
func (s *Store) CreateRuleTemplate(ctx context.Context, t *RuleTemplate) (int64, error) {
	switch t.TemplateType {
	case TemplateExclusion, TemplateRename:
	default:
		return 0, fmt.Errorf("store: invalid template_type %q", t.TemplateType)
	}

	now := s.now()

	res, err := s.db.ExecContext(ctx, `INSERT INTO rule_template
		(template_name, template_type, description, is_system, is_active,
		 rule_config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TemplateName, t.TemplateType, t.Description, t.IsSystem,
		t.IsActive, string(t.RuleConfig), now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("store: inserting rule template: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: rule template insert id: %w", err)
	}

	return id, nil
}

// GetRuleTemplate returns the template with the given id.
func (s *Store) GetRuleTemplate(ctx context.Context, id int64) (*RuleTemplate, error) {
	var (
		t                    RuleTemplate
		ruleConfig           string
		createdAt, updatedAt int64
	)

	err := s.db.QueryRowContext(ctx, `SELECT id, template_name, template_type,
		description, is_system, is_active, rule_config, usage_count,
		created_at, updated_at
		FROM rule_template WHERE id = ?`, id).Scan(
		&t.ID, &t.TemplateName, &t.TemplateType, &t.Description,
		&t.IsSystem, &t.IsActive, &ruleConfig, &t.UsageCount,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("store: getting rule template %d: %w", id, err)
	}

	t.RuleConfig = []byte(ruleConfig)
	t.CreatedAt = time.Unix(createdAt, 0)
	t.UpdatedAt = time.Unix(updatedAt, 0)

	return &t, nil
}

// BumpTemplateUsage increments a template's usage counter. Called once per
// sync job that compiled the template.
func (s *Store) BumpTemplateUsage(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE rule_template SET usage_count = usage_count + 1, updated_at = ? WHERE id = ?`,
		s.now(), id)
	if err != nil {
		return fmt.Errorf("store: bumping usage of template %d: %w", id, err)
	}

	return nil
}
