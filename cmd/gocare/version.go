package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/gocare"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of gocare",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gocare version %s\n", strings.TrimSpace(gocare.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
