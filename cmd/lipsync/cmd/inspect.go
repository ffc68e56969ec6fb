package cmd

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/normanking/lipsync/internal/anim"
	"github.com/normanking/lipsync/internal/phoneme"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <clip-file>",
	Short: "Validate a clip file and summarise its keyframes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		doc, err := anim.ParseDocument(data)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		clip := doc.Clip
		if doc.Utterance != nil {
			fmt.Fprintf(out, "Vowel timeline: %d frames, %.2fs\n", len(doc.Utterance.Frames), doc.Utterance.Duration())
			clip, err = anim.GenerateSequence(*doc.Utterance, 30, phoneme.DefaultTable())
			if err != nil {
				return err
			}
		}
		printClipSummary(out, clip)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func printClipSummary(out io.Writer, clip *anim.Clip) {
	name := clip.Name
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(out, "Clip:      %s\n", name)
	fmt.Fprintf(out, "Duration:  %.3fs\n", clip.Duration)
	fmt.Fprintf(out, "Loop:      %t\n", clip.Loop)
	fmt.Fprintf(out, "Keyframes: %d\n", len(clip.Keyframes))

	fmt.Fprintln(out, "Parameters:")
	for _, id := range clip.ParameterIDs() {
		lo, hi := math.Inf(1), math.Inf(-1)
		count := 0
		for _, kf := range clip.Keyframes {
			v, ok := kf.Parameters[id]
			if !ok {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
			count++
		}
		fmt.Fprintf(out, "  %-20s %3d keys  min %6.3f  max %6.3f\n", id, count, lo, hi)
	}
}
