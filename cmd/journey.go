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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shieldx/companion/colors"
	"github.com/spf13/cobra"
)

var (
	fromArg string
	toArg   string
)

func init() {
	journeyCmd := &cobra.Command{
		Use:   "journey",
		Short: "Track a journey with periodic location reports to your contacts",
	}

	journeyCmd.AddCommand(createJourneyStartCmd())
	journeyCmd.AddCommand(createJourneyStopCmd())
	rootCmd.AddCommand(journeyCmd)
}

func createJourneyStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a tracked journey and report until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			app.StartScheduler()

			session, err := app.Tracker.Start(context.Background(), fromArg, toArg)
			if err != nil {
				return err
			}

			cmd.Printf("Journey %v started (%v contact(s) on the list)\n",
				colors.Green(session.JourneyID), len(session.Contacts))

			app.Notifier.Broadcast(session.Contacts,
				fmt.Sprintf("ShieldX: a journey from %q to %q just started. You'll be notified if anything looks wrong.", fromArg, toArg))

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			<-sigChan

			if err := app.Tracker.Stop(); err != nil {
				return err
			}

			app.Notifier.Broadcast(session.Contacts, "ShieldX: the journey ended safely.")
			cmd.Println("Journey stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&fromArg, "from", "", "starting address")
	cmd.Flags().StringVar(&toArg, "to", "", "destination address")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")

	return cmd
}

func createJourneyStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop tracking and clear any persisted journey state",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}

			// Safe to run with no journey active.
			if err := app.Tracker.Stop(); err != nil {
				return err
			}

			cmd.Println("No journey is being tracked")
			return nil
		},
	}
}
