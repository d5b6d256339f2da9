// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information.

package process

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/zeebo/errs"
)

// Error is the process errs class.
var Error = errs.Class("process")

const (
	// EnvPrefix prefixes the environment variables read by Exec.
	EnvPrefix = "DOCSTORE"
	// ConfigFlag names the flag holding the path of the config file.
	ConfigFlag = "config"
)

// Exec runs cmd. Flags that are not given on the command line are taken
// from the environment and then from the config file.
func Exec(cmd *cobra.Command) {
	Must(ExecWithArgs(cmd, os.Args[1:]))
}

// ExecWithArgs is Exec with explicit arguments.
func ExecWithArgs(cmd *cobra.Command, args []string) error {
	if cmd.PersistentFlags().Lookup(ConfigFlag) == nil {
		cmd.PersistentFlags().String(ConfigFlag, "", "path of a yaml, json or toml config file")
	}
	wrap(cmd)
	cmd.SetArgs(args)
	return cmd.Execute()
}

func wrap(cmd *cobra.Command) {
	if run := cmd.RunE; run != nil {
		cmd.RunE = func(cmd *cobra.Command, args []string) error {
			if err := Configure(cmd); err != nil {
				return err
			}
			return run(cmd, args)
		}
	}
	for _, sub := range cmd.Commands() {
		wrap(sub)
	}
}

// Viper returns a viper instance reading the environment and the config
// file named by the config flag of cmd.
func Viper(cmd *cobra.Command) (*viper.Viper, error) {
	vip := viper.New()
	vip.SetEnvPrefix(EnvPrefix)
	vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	vip.AutomaticEnv()

	if flag := cmd.Flags().Lookup(ConfigFlag); flag != nil && flag.Value.String() != "" {
		vip.SetConfigFile(os.ExpandEnv(flag.Value.String()))
		if err := vip.ReadInConfig(); err != nil {
			return nil, Error.Wrap(err)
		}
	}
	return vip, nil
}

// Configure sets every flag of cmd that was not given on the command line
// from the environment or the config file.
func Configure(cmd *cobra.Command) error {
	vip, err := Viper(cmd)
	if err != nil {
		return err
	}

	var group errs.Group
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		if flag.Changed || flag.Name == ConfigFlag || !vip.IsSet(flag.Name) {
			return
		}
		if err := flag.Value.Set(vip.GetString(flag.Name)); err != nil {
			group.Add(Error.New("%s: %v", flag.Name, err))
		}
	})
	return group.Err()
}

// Must exits the process when err is not nil.
func Must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
