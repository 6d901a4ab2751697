/*
Copyright © 2023 ShieldX

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"github.com/spf13/cobra"
)

var restoreDestArg string

func init() {
	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Back the encrypted state db up to the configured bucket",
	}

	backupCmd.AddCommand(createBackupNowCmd())
	backupCmd.AddCommand(createBackupRestoreCmd())
	rootCmd.AddCommand(backupCmd)
}

func createBackupNowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "now",
		Short: "Upload a state snapshot immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}

			if err := app.BackupNow(); err != nil {
				return err
			}

			cmd.Println("State snapshot uploaded")
			return nil
		},
	}
}

func createBackupRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Download the latest state snapshot to a local file",
		Long: `Downloads the latest snapshot without touching the live state db.
Stop the agent and swap the file in yourself to complete a restore.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}

			if err := app.RestoreBackup(restoreDestArg); err != nil {
				return err
			}

			cmd.Printf("Snapshot downloaded to %v\n", restoreDestArg)
			return nil
		},
	}

	cmd.Flags().StringVar(&restoreDestArg, "dest", "companion.db.restored", "destination file path")

	return cmd
}
