package cmd

import (
	"fmt"
	"os"

	"github.com/praetorian-inc/diskaudit/internal/config"
	"github.com/praetorian-inc/diskaudit/internal/message"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "diskaudit",
	Short:         "diskaudit reconstructs Azure managed disk lifecycle and attach/detach history.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		message.Error("%v", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	config.SetDefaults(viper.GetViper())

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.diskaudit.yaml)")
	pf.String(config.KeyLogLevel, "info", "log level: debug, info, warn or error")
	pf.Bool(config.KeyNoColor, false, "disable colored output")
	pf.BoolP(config.KeyQuiet, "q", false, "suppress progress messages")

	for _, key := range []string{config.KeyLogLevel, config.KeyNoColor, config.KeyQuiet} {
		cobra.CheckErr(viper.BindPFlag(key, pf.Lookup(key)))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".diskaudit" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".diskaudit")
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(config.EnvKeyReplacer())
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
