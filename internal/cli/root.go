// Package cli implements the pagemedia command-line interface: media
// library operations against a media server, and project export/import.
package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fruitsalade/pagemedia/internal/config"
	"github.com/fruitsalade/pagemedia/internal/logging"
	"github.com/fruitsalade/pagemedia/pkg/client"
)

var (
	// Global flags
	serverURL string
	authToken string
	timeout   time.Duration
	verbose   bool

	cfg *config.Config
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "pagemedia",
	Short: "Media library and project export tool for the page builder",
	Long: `pagemedia manages the page builder's media library and moves projects
between installations.

Library commands (ls, search, filter, upload, mkdir, rm, mv, select) talk to
the media API at --server. export writes a portable project document; media
already on the server is written as a reference, everything else is embedded.
import restores a document, probing the server for referenced files.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "Media server URL (default $MEDIA_API_URL)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "Bearer token (default $MEDIA_API_TOKEN)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Request timeout (default $REQUEST_TIMEOUT)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(filterCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(mkdirCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(mvCmd)
	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

// setup loads configuration and fills unset global flags from it.
func setup(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	if err := logging.Init(logging.Config{Level: level, Format: "console", OutputPath: "stderr"}); err != nil {
		return fmt.Errorf("logging init error: %w", err)
	}

	if !cmd.Flags().Changed("server") {
		serverURL = cfg.MediaAPIURL
	}
	if !cmd.Flags().Changed("token") {
		authToken = cfg.MediaAPIToken
	}
	if !cmd.Flags().Changed("timeout") {
		timeout = cfg.RequestTimeout
	}
	return nil
}

func newClient() *client.Client {
	return client.New(client.Config{
		BaseURL:   serverURL,
		Timeout:   timeout,
		AuthToken: authToken,
	})
}

// userError prefixes a media API error with the message shown to end users.
func userError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s (%w)", client.UserMessage(err), err)
}

// --- Library commands ---

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List files and folders directly under a path",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) > 0 {
			path = args[0]
		}
		return RunLs(cmd, path)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Search files by name under a path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("path")
		return RunSearch(cmd, args[0], path)
	},
}

var filterCmd = &cobra.Command{
	Use:   "filter <image|video|audio|document>",
	Short: "List files of one type under a path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("path")
		return RunFilter(cmd, args[0], path)
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload local files into a folder",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest, _ := cmd.Flags().GetString("to")
		id, _ := cmd.Flags().GetString("id")
		return RunUpload(cmd, args, dest, id)
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <name>",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, _ := cmd.Flags().GetString("parent")
		return RunMkdir(cmd, args[0], parent)
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <key>...",
	Short: "Delete files or folders",
	Long: `Delete files or folders by key. Keys are deleted concurrently; when one
fails the others that already succeeded stay deleted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunRm(cmd, args)
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv <key> <destination-folder>",
	Short: "Move a file into another folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunMv(cmd, args[0], args[1])
	},
}

var selectCmd = &cobra.Command{
	Use:   "select <key> <element-id>",
	Short: "Place a library file on a page element",
	Long: `Record that a page element uses a file from the library. The selection
is appended to the --selections file, which export reads to write server
references instead of embedding bytes.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		selections, _ := cmd.Flags().GetString("selections")
		return RunSelect(cmd, args[0], args[1], selections)
	},
}

// --- Project commands ---

var exportCmd = &cobra.Command{
	Use:   "export <project.json>",
	Short: "Export a project with its media",
	Long: `Export a project to a portable document.

Media picked from the library (see select) and media on a recognized server
is written as a server reference. Blob and data URLs are embedded as base64.
Other URLs are kept as references. A media file that cannot be read never
fails the export; it is replaced by a placeholder or kept as a reference.

--attach maps a blob URL to the local file it was created from, so media
whose blob URL is no longer readable can still be embedded.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		selections, _ := cmd.Flags().GetString("selections")
		attach, _ := cmd.Flags().GetStringArray("attach")
		return RunExport(cmd, args[0], output, selections, attach)
	},
}

var importCmd = &cobra.Command{
	Use:   "import <document.json>",
	Short: "Restore a project from an exported document",
	Long: `Restore a project from an exported document.

Server references are probed at the server they were exported from, then at
alternative locations; embedded media is written back as data URLs. Only a
structurally invalid document fails the import.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		return RunImport(cmd, args[0], output)
	},
}

func init() {
	searchCmd.Flags().String("path", "", "Folder to search in")
	filterCmd.Flags().String("path", "", "Folder to filter in")
	uploadCmd.Flags().String("to", "", "Destination folder")
	uploadCmd.Flags().String("id", "", "Stored name (single file only)")
	mkdirCmd.Flags().String("parent", "", "Parent folder")
	selectCmd.Flags().String("selections", "selections.json", "Selections file")

	exportCmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")
	exportCmd.Flags().String("selections", "", "Selections file written by select")
	exportCmd.Flags().StringArray("attach", nil, "blob-url=local-path mapping (repeatable)")

	importCmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")
}
