package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listFilesPrefix string

var listFilesCmd = &cobra.Command{
	Use:   "list-files",
	Short: "List change-list files available in the blob store",
	RunE: func(cmd *cobra.Command, args []string) error {
		blobs, err := openFetcher()
		if err != nil {
			return err
		}
		keys, err := blobs.List(cmd.Context(), listFilesPrefix)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			fmt.Println("No files found.")
			return nil
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		return nil
	},
}

func init() {
	listFilesCmd.Flags().StringVar(&listFilesPrefix, "prefix", "", "only list keys starting with this prefix")
	rootCmd.AddCommand(listFilesCmd)
}
