package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ypsync/ypsync/internal/store"
)

func newConfigsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configs",
		Short: "Manage sync configs",
	}

	cmd.AddCommand(newConfigsListCmd())
	cmd.AddCommand(newConfigsAddCmd())

	return cmd
}

func newConfigsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sync configs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			configs, err := st.ListSyncConfigs(cmd.Context())
			if err != nil {
				return err
			}

			if flagJSON {
				return printConfigsJSON(configs)
			}

			printConfigsTable(configs)

			return nil
		},
	}
}

type configView struct {
	ID         int64  `json:"id"`
	Enable     bool   `json:"enable"`
	Type       string `json:"type"`
	AccountID  int64  `json:"account_id"`
	SourceType string `json:"source_type"`
	SourceID   string `json:"source_id"`
	SrcPath    string `json:"src_path"`
	DstPath    string `json:"dst_path"`
	Method     string `json:"method"`
	Cron       string `json:"cron,omitempty"`
	LastSync   string `json:"last_sync,omitempty"`
}

func printConfigsJSON(configs []*store.SyncConfig) error {
	views := make([]configView, 0, len(configs))

	for _, c := range configs {
		v := configView{
			ID: c.ID, Enable: c.Enable, Type: c.Type, AccountID: c.AccountID,
			SourceType: c.SrcMeta.SourceType, SourceID: c.SrcMeta.SourceID,
			SrcPath: c.SrcPath, DstPath: c.DstPath,
			Method: c.Method, Cron: c.Cron,
		}
		if c.LastSync != nil {
			v.LastSync = c.LastSync.Format("2006-01-02 15:04:05")
		}

		views = append(views, v)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(views)
}

func printConfigsTable(configs []*store.SyncConfig) {
	rows := make([][]string, 0, len(configs))

	for _, c := range configs {
		state := "on"
		if !c.Enable {
			state = "off"
		}

		lastSync := "-"
		if c.LastSync != nil {
			lastSync = formatTime(*c.LastSync)
		}

		cron := c.Cron
		if cron == "" {
			cron = "-"
		}

		rows = append(rows, []string{
			strconv.FormatInt(c.ID, 10), state, c.Type, c.Method,
			c.SrcMeta.SourceType, c.DstPath, cron, lastSync,
		})
	}

	printTable(os.Stdout, []string{"ID", "ON", "TYPE", "METHOD", "SOURCE", "DEST", "CRON", "LAST SYNC"}, rows)
}

func newConfigsAddCmd() *cobra.Command {
	var (
		accountID  int64
		sourceType string
		sourceID   string
		passcode   string
		srcPath    string
		dstPath    string
		method     string
		cronExpr   string
		speed      int
		remark     string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a sync config",
		Long: `Create a sync config binding a share source to a destination folder in
the account's own drive. Sources are a share link, a friend share, or a
group share; --source-id is the link URL, friend uk, or group id
respectively. With --cron set the serve daemon runs it on schedule.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			account, err := st.GetAccount(cmd.Context(), accountID)
			if err != nil {
				return fmt.Errorf("loading account %d: %w", accountID, err)
			}

			if speed == 0 {
				speed = resolvedCfg.Sync.DefaultSpeed
			}

			meta := store.SrcMeta{SourceType: sourceType, SourceID: sourceID}
			if passcode != "" {
				meta.ExtParams = map[string]string{"passcode": passcode}
			}

			id, err := st.CreateSyncConfig(cmd.Context(), &store.SyncConfig{
				Enable:    true,
				Type:      account.Type,
				AccountID: accountID,
				SrcPath:   srcPath,
				SrcMeta:   meta,
				DstPath:   dstPath,
				Method:    method,
				Speed:     speed,
				Cron:      cronExpr,
				Remark:    remark,
			})
			if err != nil {
				return err
			}

			statusf(flagQuiet, "Added sync config %d.\n", id)

			return nil
		},
	}

	cmd.Flags().Int64Var(&accountID, "account", 0, "account id")
	cmd.Flags().StringVar(&sourceType, "source-type", "link", "share source type: link, friend, group")
	cmd.Flags().StringVar(&sourceID, "source-id", "", "share link URL, friend uk, or group id")
	cmd.Flags().StringVar(&passcode, "passcode", "", "share passcode, if any")
	cmd.Flags().StringVar(&srcPath, "src-path", "/", "path inside the share to sync from")
	cmd.Flags().StringVar(&dstPath, "dst-path", "", "destination folder in the own drive")
	cmd.Flags().StringVar(&method, "method", store.MethodIncremental, "sync method: incremental, full, overwrite")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "cron schedule (empty = manual runs only)")
	cmd.Flags().IntVar(&speed, "speed", 0, "transfer speed class (0 = config default)")
	cmd.Flags().StringVar(&remark, "remark", "", "free-form note")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("dst-path")

	return cmd
}
