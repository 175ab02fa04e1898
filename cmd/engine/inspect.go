package main

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/neurobridge-backend/orcaengine/internal/engine/model"
	"github.com/neurobridge-backend/orcaengine/internal/engine/store/gormstore"
)

func newInspectCmd() *cobra.Command {
	var execType string
	cmd := &cobra.Command{
		Use:   "inspect <execution-id>",
		Short: "Print an execution's stage/task tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid execution id: %w", err)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			st := gormstore.New(db)
			exec, err := st.Retrieve(cmd.Context(), model.ExecutionType(execType), id)
			if err != nil {
				return err
			}
			printExecution(exec)
			return nil
		},
	}
	cmd.Flags().StringVar(&execType, "type", string(model.ExecutionTypePipeline), "execution type (pipeline|orchestration)")
	return cmd
}

func printExecution(exec *model.Execution) {
	fmt.Printf("execution %s  type=%s  status=%s  canceled=%v\n", exec.ID, exec.Type, exec.Status, exec.Canceled)
	stages := append([]model.Stage(nil), exec.Stages...)
	sort.Slice(stages, func(i, j int) bool { return stages[i].AuthorOrder < stages[j].AuthorOrder })
	for _, s := range stages {
		indent := "  "
		if s.IsSynthetic() {
			indent = "    "
		}
		fmt.Printf("%sstage %s  ref=%s  type=%s  status=%s  owner=%s\n", indent, s.ID, s.RefID, s.Type, s.Status, s.SyntheticStageOwner)
		tasks := append([]model.Task(nil), s.Tasks...)
		sort.Slice(tasks, func(i, j int) bool { return tasks[i].Order < tasks[j].Order })
		for _, t := range tasks {
			fmt.Printf("%s  task %s  class=%s  status=%s  start=%v end=%v\n",
				indent, t.Ordinal, t.ImplementingClass, t.Status, t.IsStageStart, t.IsStageEnd)
		}
	}
}
