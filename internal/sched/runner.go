package sched

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ypsync/ypsync/internal/drive"
	"github.com/ypsync/ypsync/internal/rules"
	"github.com/ypsync/ypsync/internal/store"
	"github.com/ypsync/ypsync/internal/sync"
)

// JobRunner turns a claimed configuration into one engine run: load the
// account, build the provider client, compile the rule templates, walk.
type JobRunner struct {
	store    *store.Store
	logger   *slog.Logger
	maxDepth int
}

// NewJobRunner builds the production Runner backing the dispatcher.
func NewJobRunner(st *store.Store, logger *slog.Logger, maxDepth int) *JobRunner {
	if logger == nil {
		logger = slog.Default()
	}

	return &JobRunner{store: st, logger: logger, maxDepth: maxDepth}
}

// Run executes one configuration. Provider-level failures are recorded in
// the task audit by the engine; the returned error covers setup and
// persistence failures only.
func (r *JobRunner) Run(ctx context.Context, cfg *store.SyncConfig) error {
	account, err := r.store.GetAccount(ctx, cfg.AccountID)
	if err != nil {
		return fmt.Errorf("loading account %d: %w", cfg.AccountID, err)
	}

	if !account.IsValid {
		return fmt.Errorf("account %d (%s) is marked invalid", account.ID, account.Type)
	}

	client, err := drive.New(account.Type, account.Cookies, r.logger)
	if err != nil {
		return fmt.Errorf("building %s client: %w", account.Type, err)
	}

	filter, renames, err := r.loadRules(ctx, cfg)
	if err != nil {
		return err
	}

	engine, err := sync.NewEngine(sync.EngineConfig{
		Client:   client,
		Store:    r.store,
		Logger:   r.logger,
		MaxDepth: r.maxDepth,
	})
	if err != nil {
		return err
	}

	result, err := engine.Run(ctx, cfg, filter, renames)
	if err != nil {
		return err
	}

	if !result.Success {
		r.logger.Warn("sync task finished with errors",
			slog.Int64("config_id", cfg.ID),
			slog.Int64("task_id", result.TaskID),
			slog.String("err_msg", result.ErrMsg),
		)
	}

	return nil
}

// loadRules compiles the config's exclusion and rename templates. A missing
// or inactive template disables that rule set rather than failing the run.
func (r *JobRunner) loadRules(ctx context.Context, cfg *store.SyncConfig) (*rules.ItemFilter, []*rules.RenameRule, error) {
	var (
		filter  *rules.ItemFilter
		renames []*rules.RenameRule
	)

	if cfg.ExcludeTemplateID != nil {
		tmpl, err := r.store.GetRuleTemplate(ctx, *cfg.ExcludeTemplateID)
		if err != nil {
			return nil, nil, fmt.Errorf("loading exclusion template %d: %w", *cfg.ExcludeTemplateID, err)
		}

		if tmpl.IsActive {
			filter, err = rules.CompileExclusions(tmpl.RuleConfig, r.logger)
			if err != nil {
				return nil, nil, fmt.Errorf("compiling exclusion template %d: %w", tmpl.ID, err)
			}

			if err := r.store.BumpTemplateUsage(ctx, tmpl.ID); err != nil {
				r.logger.Warn("bumping template usage", "template_id", tmpl.ID, "error", err.Error())
			}
		}
	}

	if cfg.RenameTemplateID != nil {
		tmpl, err := r.store.GetRuleTemplate(ctx, *cfg.RenameTemplateID)
		if err != nil {
			return nil, nil, fmt.Errorf("loading rename template %d: %w", *cfg.RenameTemplateID, err)
		}

		if tmpl.IsActive {
			renames, err = rules.CompileRenames(tmpl.RuleConfig, r.logger)
			if err != nil {
				return nil, nil, fmt.Errorf("compiling rename template %d: %w", tmpl.ID, err)
			}

			if err := r.store.BumpTemplateUsage(ctx, tmpl.ID); err != nil {
				r.logger.Warn("bumping template usage", "template_id", tmpl.ID, "error", err.Error())
			}
		}
	}

	return filter, renames, nil
}
