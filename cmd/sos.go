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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shieldx/companion/colors"
	"github.com/spf13/cobra"
)

var fireNowArg bool

func init() {
	rootCmd.AddCommand(createSOSCmd())
}

func createSOSCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sos",
		Short: "Fire an SOS alert after a short cancellable countdown",
		Long: `Starts a 5 second countdown, then sends your identity, position and
emergency-contact list to the ShieldX backend. Ctrl-C before zero cancels
the alert; --now skips the countdown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}

			controller := app.NewSOSController()
			controller.Activate()

			if fireNowArg {
				controller.FireNow()
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-sigChan:
					controller.Cancel()
					cmd.Printf("\n%v\n", colors.Yellow("SOS cancelled"))
					return nil
				case <-ticker.C:
					if remaining := controller.Remaining(); remaining > 0 {
						cmd.Printf("Firing in %v... (Ctrl-C to cancel)\n", colors.Red(remaining))
					}
				case <-controller.Done():
					if err := controller.DispatchError(); err != nil {
						return err
					}

					cmd.Printf("%v Your contacts are being notified\n", colors.Green("SOS sent."))
					return nil
				}
			}
		},
	}

	cmd.Flags().BoolVar(&fireNowArg, "now", false, "skip the countdown and dispatch immediately")

	return cmd
}
