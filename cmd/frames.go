package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/cwbudde/blockhist/internal/store"
	"github.com/spf13/cobra"
)

var (
	framesDataDir string
	importName    string
	keepLast      int
	olderThanDays int
	forceClean    bool
)

var framesCmd = &cobra.Command{
	Use:   "frames",
	Short: "Manage stored frames",
	Long: `Manage the raw frames the job server computes histograms for.
Frame names carry their layout: .yuv/.i420 planar, .nv12 semi-planar,
.y luma only; a trailing .zst stores the frame zstd-compressed.`,
}

var listFramesCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored frames",
	RunE:  runListFrames,
}

var importFrameCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Copy a raw frame file into the store",
	Args:  cobra.ExactArgs(1),
	RunE:  runImportFrame,
}

var deleteFrameCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a stored frame",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, err := store.NewFSStore(framesDataDir)
		if err != nil {
			return fmt.Errorf("failed to open frame store: %w", err)
		}
		if err := fs.DeleteFrame(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

var cleanFramesCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete old frames",
	Long: `Delete frames based on retention policy.
You can keep only the N most recent frames or delete frames older than N days.`,
	RunE: runCleanFrames,
}

func init() {
	rootCmd.AddCommand(framesCmd)
	framesCmd.AddCommand(listFramesCmd, importFrameCmd, deleteFrameCmd, cleanFramesCmd)

	framesCmd.PersistentFlags().StringVar(&framesDataDir, "data-dir", "./data", "Base directory of the frame store")

	importFrameCmd.Flags().StringVar(&importName, "name", "", "Stored name (default: file name); add .zst to compress")

	cleanFramesCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the N most recent frames (0 = keep all)")
	cleanFramesCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete frames older than N days (0 = no age limit)")
	cleanFramesCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func runListFrames(cmd *cobra.Command, args []string) error {
	fs, err := store.NewFSStore(framesDataDir)
	if err != nil {
		return fmt.Errorf("failed to open frame store: %w", err)
	}

	infos, err := fs.ListFrames()
	if err != nil {
		return fmt.Errorf("failed to list frames: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No frames found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tLAYOUT\tCOMPRESSED\tMODIFIED\tSIZE")
	fmt.Fprintln(w, "----\t------\t----------\t--------\t----")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n",
			info.Name,
			info.Layout,
			info.Compressed,
			info.ModTime.Format("2006-01-02 15:04:05"),
			formatBytes(info.Size),
		)
	}
	w.Flush()

	size, err := getDirSize(filepath.Join(fs.BaseDir(), "frames"))
	sizeStr := "unknown"
	if err == nil {
		sizeStr = formatBytes(size)
	}
	fmt.Fprintf(out, "\nTotal frames: %d (%s on disk)\n", len(infos), sizeStr)
	return nil
}

func runImportFrame(cmd *cobra.Command, args []string) error {
	fs, err := store.NewFSStore(framesDataDir)
	if err != nil {
		return fmt.Errorf("failed to open frame store: %w", err)
	}

	raw, err := store.ReadFrameFile(args[0])
	if err != nil {
		return err
	}
	name := importName
	if name == "" {
		name = filepath.Base(args[0])
	}
	if err := fs.SaveFrame(name, raw); err != nil {
		return err
	}

	slog.Info("Imported frame", "name", name, "samples", len(raw))
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %s (%s, %s)\n", name, store.LayoutOf(name), formatBytes(int64(len(raw))))
	return nil
}

func runCleanFrames(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	fs, err := store.NewFSStore(framesDataDir)
	if err != nil {
		return fmt.Errorf("failed to open frame store: %w", err)
	}

	infos, err := fs.ListFrames()
	if err != nil {
		return fmt.Errorf("failed to list frames: %w", err)
	}

	out := cmd.OutOrStdout()
	toDelete := selectFramesForDeletion(infos, keepLast, olderThanDays, time.Now())
	if len(toDelete) == 0 {
		fmt.Fprintln(out, "No frames match deletion criteria.")
		return nil
	}

	fmt.Fprintf(out, "Found %d frame(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(out, "  - %s (%s)\n", info.Name, info.ModTime.Format("2006-01-02 15:04:05"))
	}

	if !forceClean {
		fmt.Fprint(out, "\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Fscanln(cmd.InOrStdin(), &response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	deleted, failed := 0, 0
	for _, info := range toDelete {
		if err := fs.DeleteFrame(info.Name); err != nil {
			slog.Error("Failed to delete frame", "name", info.Name, "error", err)
			failed++
		} else {
			slog.Info("Deleted frame", "name", info.Name)
			deleted++
		}
	}

	fmt.Fprintf(out, "\nDeleted %d frame(s), %d failed.\n", deleted, failed)
	return nil
}

// selectFramesForDeletion applies the retention policy: frames older than
// olderThanDays go, and beyond that only the keepLast newest remain.
func selectFramesForDeletion(infos []store.FrameInfo, keepLast, olderThanDays int, now time.Time) []store.FrameInfo {
	selected := make(map[string]bool)

	if olderThanDays > 0 {
		cutoff := now.AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.ModTime.Before(cutoff) {
				selected[info.Name] = true
			}
		}
	}

	if keepLast > 0 && len(infos) > keepLast {
		sorted := slices.Clone(infos)
		slices.SortStableFunc(sorted, func(a, b store.FrameInfo) int {
			return a.ModTime.Compare(b.ModTime)
		})
		for _, info := range sorted[:len(sorted)-keepLast] {
			selected[info.Name] = true
		}
	}

	var toDelete []store.FrameInfo
	for _, info := range infos {
		if selected[info.Name] {
			toDelete = append(toDelete, info)
		}
	}
	return toDelete
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
