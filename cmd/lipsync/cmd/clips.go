package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/normanking/lipsync/internal/anim"
)

var clipsCmd = &cobra.Command{
	Use:   "clips",
	Short: "Manage the clip library",
}

var clipsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored clips",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		library, err := openLibrary()
		if err != nil {
			return err
		}
		clips, err := library.List()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(clips) == 0 {
			fmt.Fprintf(out, "No clips in %s\n", library.Dir())
			return nil
		}
		fmt.Fprintf(out, "%-24s %9s %9s %5s\n", "NAME", "DURATION", "KEYFRAMES", "LOOP")
		for _, c := range clips {
			fmt.Fprintf(out, "%-24s %8.2fs %9d %5t\n", c.Name, c.Duration, c.Keyframes, c.Loop)
		}
		return nil
	},
}

var clipsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a stored clip",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		library, err := openLibrary()
		if err != nil {
			return err
		}
		if err := library.Delete(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	clipsCmd.AddCommand(clipsListCmd, clipsDeleteCmd)
	rootCmd.AddCommand(clipsCmd)
}

func openLibrary() (*anim.Library, error) {
	store, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cfg := store.Config()
	table, err := cfg.Table()
	if err != nil {
		return nil, err
	}
	syslog, err := quietLogger()
	if err != nil {
		return nil, err
	}
	return anim.NewLibrary(cfg.Clips.Dir, table, cfg.LipSync.FPS, syslog.Zerolog())
}
