package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"shelltest/internal/scenarios"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the available scenarios",
		Run: func(cmd *cobra.Command, args []string) {
			for _, sc := range scenarios.All() {
				fmt.Printf("%-12s %-10s %s\n", sc.Name, sc.Subsystem, sc.Description)
			}
		},
	}
}
