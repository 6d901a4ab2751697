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

	"github.com/shieldx/companion/colors"
	"github.com/spf13/cobra"
)

var checkEmailArg string

func init() {
	rootCmd.AddCommand(createSecurityCheckCmd())
}

func createSecurityCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "security-check [code]",
		Short: "Answer a pending security check with your code",
		Long: `Relays your security code to the ShieldX backend to confirm you are
okay and stop the alert chain. The user context comes from --email, the
pending challenge, or the email claim on your stored access token.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}

			response, err := app.Responder.SubmitCode(context.Background(), args[0], checkEmailArg)
			if err != nil {
				return err
			}

			cmd.Printf("%v %v\n", colors.Green("Code accepted."), response.Message)
			return nil
		},
	}

	cmd.Flags().StringVar(&checkEmailArg, "email", "", "account email, when no challenge or token carries it")

	return cmd
}
