package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fruitsalade/pagemedia/internal/filemanager"
	"github.com/fruitsalade/pagemedia/pkg/client"
	"github.com/fruitsalade/pagemedia/pkg/models"
	"github.com/fruitsalade/pagemedia/pkg/tree"
)

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

func printListing(w io.Writer, l *client.Listing) {
	for _, f := range l.Folders {
		fmt.Fprintf(w, "%-10s %10s  %s/\n", "folder", "-", f.ID)
	}
	for _, f := range l.Files {
		fmt.Fprintf(w, "%-10s %10s  %s\n", f.Type, formatSize(f.Size), f.ID)
	}
	if len(l.Folders) == 0 && len(l.Files) == 0 {
		fmt.Fprintln(w, "(empty)")
	}
}

func openSession(ctx context.Context, path string) (*filemanager.Session, error) {
	s := filemanager.New(newClient(), nil, filemanager.Options{ServerURL: serverURL})
	if err := s.Open(ctx, path); err != nil {
		return nil, userError(err)
	}
	return s, nil
}

// RunLs prints the content of one folder.
func RunLs(cmd *cobra.Command, path string) error {
	s, err := openSession(cmd.Context(), path)
	if err != nil {
		return err
	}
	defer s.Close()

	w := cmd.OutOrStdout()
	if crumbs := s.Breadcrumbs(); len(crumbs) > 0 {
		fmt.Fprint(w, "/")
		for _, c := range crumbs {
			fmt.Fprintf(w, " %s /", c.Name)
		}
		fmt.Fprintln(w)
	}
	printListing(w, &client.Listing{Files: s.Files(), Folders: s.Folders()})
	return nil
}

// RunSearch prints files whose names contain term.
func RunSearch(cmd *cobra.Command, term, path string) error {
	l, err := newClient().Search(cmd.Context(), term, path)
	if err != nil {
		return userError(err)
	}
	printListing(cmd.OutOrStdout(), l)
	return nil
}

// RunFilter prints files of one type.
func RunFilter(cmd *cobra.Command, fileType, path string) error {
	l, err := newClient().FilterByType(cmd.Context(), fileType, path)
	if err != nil {
		return userError(err)
	}
	printListing(cmd.OutOrStdout(), l)
	return nil
}

// RunUpload uploads local files into dest.
func RunUpload(cmd *cobra.Command, files []string, dest, id string) error {
	if id != "" && len(files) > 1 {
		return fmt.Errorf("--id can only be used with a single file")
	}
	c := newClient()
	for _, name := range files {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		resp, err := c.Upload(cmd.Context(), filepath.Base(name), f, dest, id)
		f.Close()
		if err != nil {
			return userError(fmt.Errorf("upload %s: %w", name, err))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s -> %s (%s)\n", name, resp.Key, resp.URL)
	}
	return nil
}

// RunMkdir creates a folder.
func RunMkdir(cmd *cobra.Command, name, parent string) error {
	folder, err := newClient().CreateFolder(cmd.Context(), name, parent)
	if err != nil {
		return userError(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %s/\n", folder.ID)
	return nil
}

// RunRm deletes keys.
func RunRm(cmd *cobra.Command, keys []string) error {
	if err := newClient().DeleteMany(cmd.Context(), keys); err != nil {
		return userError(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d item(s)\n", len(keys))
	return nil
}

// RunMv moves a file.
func RunMv(cmd *cobra.Command, key, dest string) error {
	file, err := newClient().Move(cmd.Context(), key, dest)
	if err != nil {
		return userError(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "moved %s -> %s\n", key, file.ID)
	return nil
}

// RunSelect records that elementID uses the library file at key.
func RunSelect(cmd *cobra.Command, key, elementID, selectionsPath string) error {
	key = tree.NormalizePath(key)
	s, err := openSession(cmd.Context(), tree.ParentPath(key))
	if err != nil {
		return err
	}
	defer s.Close()

	var file *models.StoredFile
	for _, f := range s.Files() {
		if tree.NormalizePath(f.ID) == key {
			file = &f
			break
		}
	}
	if file == nil {
		return fmt.Errorf("%s: not found in the media library", key)
	}

	url := s.Select(*file, elementID)
	entry, _ := s.Store().Get(elementID)

	sel, err := loadSelections(selectionsPath)
	if err != nil {
		return err
	}
	sel = upsertSelection(sel, selection{URL: url, ElementID: elementID, Entry: entry})
	if err := saveSelections(selectionsPath, sel); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%s)\n", elementID, url, entry.BucketPath)
	return nil
}
