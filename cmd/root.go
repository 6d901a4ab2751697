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
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator"
	"github.com/google/uuid"
	"github.com/shieldx/companion/agent"
	"github.com/shieldx/companion/agent/location"
	"github.com/shieldx/companion/agent/sos"
	"github.com/shieldx/companion/colors"
	"github.com/shieldx/companion/shared"
	"github.com/shieldx/companion/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	config  *viper.Viper

	isDevEnv  bool
	isTestEnv bool

	validate = validator.New()

	warningLabel = colors.Yellow("Warning:")
)

// rootCmd represents the base command when called without any subcommands.
// Built as a package variable, not in init(), so the sibling files' init()
// functions can AddCommand to it regardless of file order.
var rootCmd = createRootCmd()

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	cobra.OnInitialize(initConfig)
}

func createRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use: "companion",
		Short: `companion is the ShieldX safety agent for this device.

It keeps your emergency contacts close, tracks journeys with periodic
location reports to the ShieldX backend, and fires SOS alerts with a
cancellable countdown.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.companion/companion.yaml)")
	cmd.PersistentFlags().BoolVarP(&isDevEnv, "dev", "", false, "run in development mode")
	cmd.PersistentFlags().BoolVarP(&isTestEnv, "test", "", false, "run in test mode")

	return cmd
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	config = viper.New()

	if cfgFile == "" {
		configDir := configDirectory()

		// If config file is not found, create one with usable defaults.
		cfgFile = filepath.Join(configDir, "companion.yaml")
		if !utils.FileExist(cfgFile) {
			err := os.WriteFile(cfgFile, []byte(defaultConfigValue()), 0600)
			cobra.CheckErr(err)
			fmt.Fprintf(os.Stderr, "%s created default config in %s\n", warningLabel, cfgFile)
		}
	}

	config.SetConfigFile(cfgFile)
	config.AutomaticEnv() // read in environment variables that match

	if err := config.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", config.ConfigFileUsed())
	}
}

func agentConfig() (shared.AgentConfig, error) {
	agentCfg := shared.AgentConfig{}

	if err := config.Unmarshal(&agentCfg); err != nil {
		return agentCfg, err
	}

	if err := validate.Struct(agentCfg); err != nil {
		return agentCfg, fmt.Errorf("invalid config in %v: %v", config.ConfigFileUsed(), err)
	}

	return agentCfg, nil
}

func buildApp() (*agent.App, error) {
	agentCfg, err := agentConfig()
	if err != nil {
		return nil, err
	}

	return agent.New(
		agentCfg,
		configDirectory(),
		location.NewIPProvider(),
		sos.NewTerminalPlayer(),
		isTestEnv,
	)
}

// configDirectory retrieves the directory holding companion's config and
// state db. Or logs an error message and exits if it's unable to.
func configDirectory() string {
	// Use '.companion' folder in home directory for prod
	configFolderName := ".companion"
	rootDir, err := os.UserHomeDir()
	cobra.CheckErr(err)

	// Use 'dev' folder in current directory for dev mode
	if isDevEnv || isTestEnv {
		configFolderName = "dev"
		rootDir, err = os.Getwd()
		cobra.CheckErr(err)
	}

	configDir := filepath.Join(rootDir, configFolderName)

	err = utils.CreateDirIfNotExist(configDir)
	cobra.CheckErr(err)

	return configDir
}

// defaultConfigValue returns the default content for companion.yaml
func defaultConfigValue() string {
	return fmt.Sprintf(`device:
  # Stretched into the passphrase for the local encrypted state db.
  secret: %q

backend:
  url: "https://shieldx-back.onrender.com"

listener:
  port: 3002

tracking:
  reportIntervalMinutes: 5
  timeZone: "UTC"

# API key for the geocoding/directions collaborator. Journeys need it;
# route previews are skipped without it either way.
maps:
  apiKey:

# Optional: courtesy SMS to your contacts when a journey starts/stops.
twilio:
  accountSid:
  authToken:
  messagingServiceSid:

# Optional: periodic backup of the state db.
google:
  applicationCredentials:
  storage:
    bucket:
    prefix:
    stateBackupSchedule: "*/30 * * * *"
    enableStateBackup: false
`, uuid.NewString())
}
