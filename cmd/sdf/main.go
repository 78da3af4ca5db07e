// Command sdf manages a project's data manifest and synchronizes tracked
// files with scientific data repositories.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"scidataflow/internal/app"
)

var verbose bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// commandContext returns a context cancelled on SIGINT/SIGTERM, so
// in-flight transfers abort cleanly and the manifest is left untouched.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var rootCmd = &cobra.Command{
	Use:           "sdf",
	Short:         "Manage and share a project's data files",
	Long:          "sdf tracks a project's data files in a manifest and synchronizes them\nwith scientific data repositories (FigShare, Zenodo, S3) and static URLs.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new project manifest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.Init(); err != nil {
			return err
		}
		fmt.Println("Initialized data manifest.")
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add PATH...",
	Short: "Add files to the manifest",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		overwrite, _ := cmd.Flags().GetBool("overwrite")
		a, err := app.New(verbose)
		if err != nil {
			return err
		}
		n, err := a.Service().Add(args, overwrite)
		if err != nil {
			return err
		}
		if err := a.Save(); err != nil {
			return err
		}
		fmt.Printf("Added %d file(s).\n", n)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update [PATH...]",
	Short: "Re-digest manifest entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(verbose)
		if err != nil {
			return err
		}
		n, err := a.Service().Update(args)
		if err != nil {
			return err
		}
		if err := a.Save(); err != nil {
			return err
		}
		fmt.Printf("Updated %d file(s).\n", n)
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm PATH...",
	Short: "Remove files from the manifest (never deletes files on disk)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(verbose)
		if err != nil {
			return err
		}
		n, err := a.Service().Remove(args)
		if err != nil {
			return err
		}
		if err := a.Save(); err != nil {
			return err
		}
		fmt.Printf("Removed %d file(s).\n", n)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show file statuses against the manifest (and remotes)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		remotes, _ := cmd.Flags().GetBool("remotes")
		a, err := app.New(verbose)
		if err != nil {
			return err
		}
		ctx, stop := commandContext()
		defer stop()
		entries, err := a.Service().Status(ctx, remotes)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No files in the manifest.")
			return nil
		}
		app.PrintStatus(os.Stdout, entries, remotes)
		return nil
	},
}

var trackCmd = &cobra.Command{
	Use:   "track PATH...",
	Short: "Enable remote synchronization for files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(verbose)
		if err != nil {
			return err
		}
		if err := a.Service().Track(args); err != nil {
			return err
		}
		return a.Save()
	},
}

var untrackCmd = &cobra.Command{
	Use:   "untrack PATH...",
	Short: "Disable remote synchronization for files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(verbose)
		if err != nil {
			return err
		}
		if err := a.Service().Untrack(args); err != nil {
			return err
		}
		return a.Save()
	},
}

var linkCmd = &cobra.Command{
	Use:   "link DIR KIND TOKEN",
	Short: "Bind a directory to a remote (figshare, zenodo, s3, url)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		linkOnly, _ := cmd.Flags().GetBool("link-only")
		a, err := app.New(verbose)
		if err != nil {
			return err
		}
		ctx, stop := commandContext()
		defer stop()
		if err := a.Service().Link(ctx, args[0], args[1], args[2], name, linkOnly); err != nil {
			return err
		}
		if err := a.Save(); err != nil {
			return err
		}
		fmt.Printf("Linked %s to %s.\n", args[0], args[1])
		return nil
	},
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload tracked files to their bound remotes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		overwrite, _ := cmd.Flags().GetBool("overwrite")
		a, err := app.New(verbose)
		if err != nil {
			return err
		}
		ctx, stop := commandContext()
		defer stop()
		summary, err := a.Service().Push(ctx, overwrite)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("push cancelled; manifest left unchanged")
		}
		if err := a.Save(); err != nil {
			return err
		}
		app.PrintSyncSummary(os.Stdout, "Uploaded", summary)
		if len(summary.Errors) > 0 {
			return fmt.Errorf("%d file(s) failed to upload", len(summary.Errors))
		}
		return nil
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Download tracked files from their bound remotes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		overwrite, _ := cmd.Flags().GetBool("overwrite")
		urls, _ := cmd.Flags().GetBool("url")
		all, _ := cmd.Flags().GetBool("all")
		a, err := app.New(verbose)
		if err != nil {
			return err
		}
		ctx, stop := commandContext()
		defer stop()
		summary, err := a.Pull(ctx, overwrite, urls, all)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("pull cancelled; manifest left unchanged")
		}
		if err := a.Save(); err != nil {
			return err
		}
		app.PrintSyncSummary(os.Stdout, "Downloaded", summary)
		if len(summary.Errors) > 0 {
			return fmt.Errorf("%d file(s) failed to download", len(summary.Errors))
		}
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get URL",
	Short: "Download a file by URL and register it in the manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		overwrite, _ := cmd.Flags().GetBool("overwrite")
		a, err := app.New(verbose)
		if err != nil {
			return err
		}
		ctx, stop := commandContext()
		defer stop()
		relPath, err := a.Service().Get(ctx, args[0], name, overwrite)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("get cancelled; manifest left unchanged")
		}
		if err := a.Save(); err != nil {
			return err
		}
		fmt.Printf("Downloaded %q.\n", relPath)
		return nil
	},
}

var bulkCmd = &cobra.Command{
	Use:   "bulk FILE",
	Short: "Download URLs listed in a TSV or CSV column",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		column, _ := cmd.Flags().GetInt("column")
		header, _ := cmd.Flags().GetBool("header")
		overwrite, _ := cmd.Flags().GetBool("overwrite")
		a, err := app.New(verbose)
		if err != nil {
			return err
		}
		ctx, stop := commandContext()
		defer stop()
		summary, err := a.Service().Bulk(ctx, args[0], column, header, overwrite)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("bulk cancelled; manifest left unchanged")
		}
		if err := a.Save(); err != nil {
			return err
		}
		app.PrintBulkSummary(os.Stdout, args[0], summary)
		if len(summary.Errors) > 0 {
			return fmt.Errorf("%d URL(s) failed", len(summary.Errors))
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Set the user identity used for deposition metadata",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")
		affiliation, _ := cmd.Flags().GetString("affiliation")
		return app.SetConfig(name, email, affiliation)
	},
}

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Set the project title and description",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		description, _ := cmd.Flags().GetString("description")
		a, err := app.New(verbose)
		if err != nil {
			return err
		}
		return a.SetMetadata(title, description)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	addCmd.Flags().Bool("overwrite", false, "re-digest entries already in the manifest")

	statusCmd.Flags().BoolP("remotes", "m", false, "query remote inventories (requires network)")

	linkCmd.Flags().String("name", "", "remote project title (defaults to the project name)")
	linkCmd.Flags().Bool("link-only", false, "adopt an existing remote project instead of creating one")

	pushCmd.Flags().Bool("overwrite", false, "replace differing remote files")

	pullCmd.Flags().Bool("overwrite", false, "replace differing local files")
	pullCmd.Flags().Bool("url", false, "pull URL-sourced entries instead of remote-bound files")
	pullCmd.Flags().Bool("all", false, "pull both remote-bound and URL-sourced files")

	getCmd.Flags().String("name", "", "destination filename (defaults to the URL's last segment)")
	getCmd.Flags().Bool("overwrite", false, "replace an existing local file")

	bulkCmd.Flags().IntP("column", "c", 0, "zero-indexed column holding URLs")
	bulkCmd.Flags().Bool("header", false, "skip the first row")
	bulkCmd.Flags().Bool("overwrite", false, "replace existing local files")

	configCmd.Flags().String("name", "", "author name")
	configCmd.Flags().String("email", "", "author email")
	configCmd.Flags().String("affiliation", "", "author affiliation")

	metadataCmd.Flags().String("title", "", "project title")
	metadataCmd.Flags().String("description", "", "project description")

	rootCmd.AddCommand(initCmd, addCmd, updateCmd, rmCmd, statusCmd,
		trackCmd, untrackCmd, linkCmd, pushCmd, pullCmd, getCmd, bulkCmd,
		configCmd, metadataCmd)
}
