package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/portero/internal/config"
	"github.com/dropDatabas3/portero/internal/deletion"
	"github.com/dropDatabas3/portero/internal/observability/logger"
)

func newAdminCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Operaciones administrativas por CLI",
	}
	cmd.AddCommand(newAdminUserDeleteCmd(loadConfig))
	return cmd
}

// user-delete corre el workflow de borrado en el acto, sin pasar por la
// cola. Los pasos son idempotentes: también sirve para destrabar un
// borrado que quedó a medias en el worker.
func newAdminUserDeleteCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	var userID, deleterID, reason string

	cmd := &cobra.Command{
		Use:   "user-delete",
		Short: "Ejecuta el borrado de una cuenta de forma sincrónica",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "portero-admin"})
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := buildRuntime(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.Cleanup()

			c := rt.Container
			if c.UserDataStore == nil || c.AccessControl == nil {
				return fmt.Errorf("el borrado requiere downstream.user_data_store y downstream.access_control configurados")
			}

			orch := deletion.NewOrchestrator(c.Store, c.UserDataStore, c.AccessControl)
			if err := orch.Run(ctx, deletion.Request{UserID: userID, DeleterID: deleterID, Reason: reason}); err != nil {
				return fmt.Errorf("borrado de %s: %w", userID, err)
			}
			logger.Named("admin").Info("borrado completado", logger.UserID(userID))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "ID de la cuenta a borrar")
	cmd.Flags().StringVar(&deleterID, "deleter", "", "ID de quien ordena el borrado")
	cmd.Flags().StringVar(&reason, "reason", "", "motivo del borrado")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
