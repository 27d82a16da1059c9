package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	catOffset int64
	catLength int64
	catOutput string
)

var catCmd = &cobra.Command{
	Use:   "cat <source>",
	Short: "Copy a source's bounded stream",
	Long: `Copy a source's bounded stream to stdout or a file.

Examples:
  mediacat cat file:/var/media/intro.ts > intro.ts
  mediacat cat -c mediacat.yaml intro --offset 188 --length 1880
  mediacat cat s3:media/clip.ts -o clip.ts`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, cleanup, err := state.open(args[0])
		if err != nil {
			return err
		}
		defer cleanup()

		out := cmd.OutOrStdout()
		if catOutput != "" {
			f, err := os.Create(catOutput)
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			defer f.Close()
			out = f
		}

		return state.run(cmd.Context(), func(ctx context.Context) error {
			r, err := src.Stream()
			if err != nil {
				return err
			}
			if catOffset != 0 {
				whence := io.SeekStart
				if catOffset < 0 {
					whence = io.SeekEnd
				}
				if _, err := r.Seek(catOffset, whence); err != nil {
					return fmt.Errorf("seek to %d: %w", catOffset, err)
				}
			}

			var in io.Reader = readerWithContext{ctx, r}
			if catLength > 0 {
				in = io.LimitReader(in, catLength)
			}
			n, err := io.Copy(out, in)
			state.logger.Debug("copied", "source", args[0], "bytes", n)
			return err
		})
	},
}

func init() {
	catCmd.Flags().Int64Var(&catOffset, "offset", 0, "start offset; negative counts from the end")
	catCmd.Flags().Int64Var(&catLength, "length", 0, "bytes to copy; 0 copies to the end")
	catCmd.Flags().StringVarP(&catOutput, "output", "o", "", "write to this file instead of stdout")
}

// contextReader is satisfied by *stream.Reader.
type contextReader interface {
	ReadContext(ctx context.Context, p []byte) (int, error)
}

// readerWithContext binds a context to each read.
type readerWithContext struct {
	ctx context.Context
	r   contextReader
}

func (r readerWithContext) Read(p []byte) (int, error) {
	return r.r.ReadContext(r.ctx, p)
}
