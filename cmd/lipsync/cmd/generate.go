package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/normanking/lipsync/internal/analysis"
	"github.com/normanking/lipsync/internal/anim"
	"github.com/normanking/lipsync/internal/audio"
	"github.com/normanking/lipsync/internal/phoneme"
)

var (
	generateOutput string
	generateName   string
	generateFPS    int
	generateAudio  string
	generateRaw    bool
	generateSave   bool
)

var generateCmd = &cobra.Command{
	Use:   "generate <utterance-file>",
	Short: "Convert a vowel timeline into a keyframe clip",
	Long: `Reads a vowel-frame document (text, total_duration, vowel_frames) and
writes the equivalent dense keyframe clip as YAML.

The timeline is preprocessed like spoken playback: silent spans found in
--audio are closed, the last spoken frame is emphasised, intensities are
scaled by the configured sensitivity and gaps are filled with silence.`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "", "output file (default: stdout)")
	generateCmd.Flags().StringVar(&generateName, "name", "", "clip name (default: input file name)")
	generateCmd.Flags().IntVar(&generateFPS, "fps", 0, "keyframe rate (default: lipsync.fps)")
	generateCmd.Flags().StringVar(&generateAudio, "audio", "", "WAV file of the speech, used for silence detection and timing")
	generateCmd.Flags().BoolVar(&generateRaw, "raw", false, "skip preprocessing")
	generateCmd.Flags().BoolVar(&generateSave, "save", false, "also store the clip in the clip library")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	store, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := store.Config()
	settings, err := cfg.Settings().Normalize()
	if err != nil {
		return err
	}
	table, err := cfg.Table()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	doc, err := anim.ParseDocument(data)
	if err != nil {
		return err
	}
	if doc.Utterance == nil {
		return fmt.Errorf("%s is already a keyframe clip", args[0])
	}
	u := *doc.Utterance

	var silences []phoneme.Interval
	if generateAudio != "" {
		pcm, err := audio.ReadWAVFile(generateAudio)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", generateAudio, err)
		}
		silences = analysis.DetectSilences(pcm.Samples, int(pcm.SampleRate), analysis.DefaultSilenceOptions())
		u.Frames = phoneme.Rescale(u.Frames, pcm.Duration())
		u.TotalDuration = pcm.Duration()
	}

	if !generateRaw {
		u = phoneme.Prepare(u, phoneme.Options{
			Sensitivity:  settings.Sensitivity,
			EndingBoost:  settings.EndingBoost,
			GapThreshold: phoneme.DefaultGapThreshold,
			Silences:     silences,
		})
	}

	fps := generateFPS
	if fps <= 0 {
		fps = settings.FPS
	}
	clip, err := anim.GenerateSequence(u, fps, table)
	if err != nil {
		return err
	}
	clip.Name = generateName
	if clip.Name == "" {
		base := filepath.Base(args[0])
		clip.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	out, err := anim.Encode(clip)
	if err != nil {
		return err
	}

	if generateSave {
		syslog, err := quietLogger()
		if err != nil {
			return err
		}
		defer syslog.Close()
		library, err := anim.NewLibrary(cfg.Clips.Dir, table, fps, syslog.Zerolog())
		if err != nil {
			return err
		}
		if err := library.Save(clip.Name, clip); err != nil {
			return err
		}
	}

	if generateOutput == "" {
		_, err = cmd.OutOrStdout().Write(out)
		return err
	}
	if err := os.WriteFile(generateOutput, out, 0644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s: %d keyframes, %.2fs\n", generateOutput, len(clip.Keyframes), clip.Duration)
	return nil
}
