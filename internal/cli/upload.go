package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewUploadCmd создаёт команду загрузки видео.
func NewUploadCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a session video and start processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			upload, err := client.Upload(args[0], owner)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Video uploaded: %s", upload.VideoID))
			out.Print(
				[]string{"VIDEO_ID", "OWNER", "FILENAME", "STATUS"},
				[][]string{{upload.VideoID, upload.OwnerID, upload.Filename, upload.Status}},
				upload,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner ID (anonymous if not specified)")

	return cmd
}
