package cmd

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/AzielCF/az-users/core/database"
	userRepo "github.com/AzielCF/az-users/users/repository"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := database.NewDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close(db)

		if err := userRepo.NewUserGormRepository(db).InitSchema(context.Background()); err != nil {
			return err
		}
		logrus.Infof("[MIGRATE] schema up to date (%s)", cfg.Database.Driver)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
