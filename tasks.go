package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ypsync/ypsync/internal/store"
)

func newTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect the sync task audit",
	}

	cmd.AddCommand(newTasksListCmd())
	cmd.AddCommand(newTasksItemsCmd())

	return cmd
}

func newTasksListCmd() *cobra.Command {
	var (
		configID int64
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs of a sync config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			tasks, err := st.ListTasks(cmd.Context(), configID, limit)
			if err != nil {
				return err
			}

			if flagJSON {
				return printTasksJSON(tasks)
			}

			printTasksTable(tasks)

			return nil
		},
	}

	cmd.Flags().Int64Var(&configID, "config", 0, "sync config id")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to show")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

type taskView struct {
	ID       int64  `json:"id"`
	ConfigID int64  `json:"config_id"`
	Start    string `json:"start"`
	Status   string `json:"status"`
	Duration int64  `json:"duration_seconds"`
	TaskNum  string `json:"task_num,omitempty"`
	ErrMsg   string `json:"err_msg,omitempty"`
}

func printTasksJSON(tasks []*store.SyncTask) error {
	views := make([]taskView, 0, len(tasks))

	for _, t := range tasks {
		views = append(views, taskView{
			ID: t.ID, ConfigID: t.ConfigID,
			Start:  t.StartTime.Format("2006-01-02 15:04:05"),
			Status: t.Status, Duration: t.DuraTime,
			TaskNum: t.TaskNum, ErrMsg: t.ErrMsg,
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(views)
}

func printTasksTable(tasks []*store.SyncTask) {
	rows := make([][]string, 0, len(tasks))

	for _, t := range tasks {
		rows = append(rows, []string{
			strconv.FormatInt(t.ID, 10),
			formatTime(t.StartTime),
			t.Status,
			strconv.FormatInt(t.DuraTime, 10) + "s",
			t.TaskNum,
			t.ErrMsg,
		})
	}

	printTable(os.Stdout, []string{"ID", "START", "STATUS", "TOOK", "OPS", "ERROR"}, rows)
}

func newTasksItemsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "items <task-id>",
		Short: "List the operations one run performed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			items, err := st.ListTaskItems(cmd.Context(), taskID)
			if err != nil {
				return err
			}

			if flagJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")

				return enc.Encode(items)
			}

			rows := make([][]string, 0, len(items))
			for _, it := range items {
				rows = append(rows, []string{
					it.Type, it.FileName, formatSize(it.FileSize),
					it.DstPath, it.Status, it.ErrMsg,
				})
			}

			printTable(os.Stdout, []string{"OP", "NAME", "SIZE", "DEST", "STATUS", "ERROR"}, rows)

			return nil
		},
	}
}
