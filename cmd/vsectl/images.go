package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func NewAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <image-id>",
		Short: "Add an image to the index",
		Long: `Add an image by histogram (--histogram or --file) or by raw image bytes
(--image). With --async the histogram is queued on Kafka by the server.`,
		Args: cobra.ExactArgs(1),
		RunE: runAdd,
	}
	addQueryFlags(cmd)
	cmd.Flags().Bool("async", false, "Queue the addition instead of indexing it immediately")
	return cmd
}

func runAdd(cmd *cobra.Command, args []string) error {
	id := args[0]
	async, _ := cmd.Flags().GetBool("async")
	q, err := readQuery(cmd)
	if err != nil {
		return err
	}

	client := clientFrom(cmd)
	if q.image != nil {
		if async {
			return errors.New("--async is only supported for histogram input")
		}
		resp, err := client.putContent(cmd.Context(), id, q.image)
		if err != nil {
			return fmt.Errorf("add image: %w", err)
		}
		return printImageStatus(cmd, resp.ImageID, resp.Status)
	}
	resp, err := client.addImage(cmd.Context(), id, q.hist, async)
	if err != nil {
		return fmt.Errorf("add image: %w", err)
	}
	return printImageStatus(cmd, resp.ImageID, resp.Status)
}

func printImageStatus(cmd *cobra.Command, id, status string) error {
	if wantJSON(cmd) {
		return outputJSON(cmd, map[string]string{"image_id": id, "status": status})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", id, status)
	return nil
}

func NewGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <image-id>",
		Short: "Print the stored histogram of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := clientFrom(cmd).getImage(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get image: %w", err)
			}
			if wantJSON(cmd) {
				return outputJSON(cmd, img)
			}
			values := make([]string, len(img.Histogram))
			for i, v := range img.Histogram {
				values[i] = strconv.FormatFloat(v, 'g', -1, 64)
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(values, ","))
			return nil
		},
	}
}

func NewRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "remove <image-id>",
		Aliases: []string{"rm"},
		Short:   "Remove an image from the index",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			async, _ := cmd.Flags().GetBool("async")
			applied, err := clientFrom(cmd).removeImage(cmd.Context(), args[0], async)
			if err != nil {
				return fmt.Errorf("remove image: %w", err)
			}
			status := "removed"
			if !applied {
				status = "queued"
			}
			return printImageStatus(cmd, args[0], status)
		},
	}
	cmd.Flags().Bool("async", false, "Queue the removal instead of applying it immediately")
	return cmd
}
