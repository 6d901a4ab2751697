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

	"github.com/shieldx/companion/agent/contacts"
	"github.com/spf13/cobra"
)

var (
	nameArg     string
	relationArg string
	phoneArg    string
	emailArg    string
	priorityArg int
)

func init() {
	contactsCmd := &cobra.Command{
		Use:   "contacts",
		Short: "Manage the emergency contacts alerts are dispatched to",
	}

	contactsCmd.AddCommand(createContactsAddCmd())
	contactsCmd.AddCommand(createContactsListCmd())
	contactsCmd.AddCommand(createContactsRemoveCmd())
	rootCmd.AddCommand(contactsCmd)
}

func createContactsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register an emergency contact with the backend and cache it locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}

			contact := contacts.EmergencyContact{
				Name:     nameArg,
				Relation: relationArg,
				Phone:    phoneArg,
				Email:    emailArg,
				Priority: priorityArg,
			}
			if err := contact.Validate(); err != nil {
				return err
			}

			created, err := app.Backend.CreateContact(context.Background(), contact)
			if err != nil {
				return err
			}

			// Local cache mutation re-derives the phone list as well.
			if err := app.Contacts.Save(created); err != nil {
				return err
			}

			cmd.Printf("Added %v (%v)\n", created.Name, created.Phone)
			return nil
		},
	}

	cmd.Flags().StringVar(&nameArg, "name", "", "contact name")
	cmd.Flags().StringVar(&relationArg, "relation", "", "relation to you e.g. parent, friend")
	cmd.Flags().StringVar(&phoneArg, "phone", "", "phone number, 10-14 digits")
	cmd.Flags().StringVar(&emailArg, "email", "", "email (optional)")
	cmd.Flags().IntVar(&priorityArg, "priority", 1, "dispatch priority")

	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("relation")
	cmd.MarkFlagRequired("phone")

	return cmd
}

func createContactsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached emergency contacts and the derived phone list",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}

			list, err := app.Contacts.List()
			if err != nil {
				return err
			}

			if len(list) == 0 {
				cmd.Println("No emergency contacts yet - add one with 'companion contacts add'")
				return nil
			}

			for _, contact := range list {
				cmd.Printf("%v\t%v (%v)\t%v\t%v\n",
					contact.ID, contact.Name, contact.Relation, contact.Phone, contact.Email)
			}

			phoneList, err := app.Contacts.PhoneList()
			if err != nil {
				return err
			}
			cmd.Printf("\nDispatch-ready numbers: %v\n", phoneList)

			return nil
		},
	}
}

func createContactsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [id]",
		Short: "Remove an emergency contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}

			if err := app.Backend.DeleteContact(context.Background(), args[0]); err != nil {
				return err
			}

			if err := app.Contacts.Delete(args[0]); err != nil {
				return err
			}

			cmd.Println("Contact removed")
			return nil
		},
	}
}
