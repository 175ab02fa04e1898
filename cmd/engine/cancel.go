package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/neurobridge-backend/orcaengine/internal/engine/message"
	"github.com/neurobridge-backend/orcaengine/internal/engine/model"
	"github.com/neurobridge-backend/orcaengine/internal/engine/store/gormstore"
)

func newCancelCmd() *cobra.Command {
	var execType string
	cmd := &cobra.Command{
		Use:   "cancel <execution-id>",
		Short: "Enqueue CancelExecution for a running execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			execID, err := uuid.Parse(args[0])
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
			exec, err := st.Retrieve(cmd.Context(), model.ExecutionType(execType), execID)
			if err != nil {
				return err
			}
			q, err := openQueue(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer q.Close()
			msg := message.For(message.KindCancelExecution, exec.Type, exec.ID, exec.Application).WithReason("operator cancel via engine CLI")
			if err := q.Push(cmd.Context(), msg); err != nil {
				return err
			}
			fmt.Printf("enqueued CancelExecution for execution=%s\n", execID)
			return nil
		},
	}
	cmd.Flags().StringVar(&execType, "type", string(model.ExecutionTypePipeline), "execution type (pipeline|orchestration)")
	return cmd
}
