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

	"github.com/shieldx/companion/agent/backend"
	"github.com/shieldx/companion/agent/store"
	"github.com/spf13/cobra"
)

var (
	emergencyArg   bool
	addressTypeArg string
)

func init() {
	rootCmd.AddCommand(createShareLocationCmd())
	rootCmd.AddCommand(createAddressCmd())
}

func createShareLocationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share-location",
		Short: "Send your current position to your emergency contacts once",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}

			if err := app.ShareLocation(context.Background(), emergencyArg); err != nil {
				return err
			}

			cmd.Println("Location shared with your contacts")
			return nil
		},
	}

	cmd.Flags().BoolVar(&emergencyArg, "emergency", false, "flag the share as an emergency")

	return cmd
}

func createAddressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "address [address]",
		Short: "Save a frequently used address (home, work...) with the backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}

			err = app.Backend.SaveAddress(context.Background(), backend.AddressRequest{
				AddressType: addressTypeArg,
				Address:     args[0],
			})
			if err != nil {
				return err
			}

			// Keep a local copy so journey screens can offer it offline.
			saved := map[string]string{}
			if _, err := app.Store.Get(store.KeySavedAddresses, &saved); err != nil {
				return err
			}
			saved[addressTypeArg] = args[0]
			if err := app.Store.Set(store.KeySavedAddresses, saved); err != nil {
				return err
			}

			cmd.Printf("Saved %v address\n", addressTypeArg)
			return nil
		},
	}

	cmd.Flags().StringVar(&addressTypeArg, "type", "home", "address type e.g. home, work")

	return cmd
}
