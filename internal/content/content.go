// Package content populates a notebook user's storage area: it ensures the
// home directory exists with correct ownership, clones a git repository or
// downloads an object from the content store, optionally extracts zip
// archives, and re-applies ownership to everything it created.
package content

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"studioprov/internal/controlplane"
	"studioprov/pkg/logging"
)

const subsystem = "Content"

const objectURIScheme = "s3://"

// directoryContentType is the marker content type some stores report for
// prefix placeholders; it means the URI is not a single object.
const directoryContentType = "application/x-directory"

// NotImplementedError reports a requested content feature this loader does
// not support (non-zip archive extraction, prefix downloads). It is a
// deliberate hard failure rather than a silent skip.
type NotImplementedError struct {
	Feature string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("%s not supported", e.Feature)
}

// Loader performs the content operations. Ownership changes and git
// execution are injectable so tests can run unprivileged and offline.
type Loader struct {
	store     controlplane.ObjectStore
	mountRoot string

	chown  func(path string, uid int) error
	runGit func(ctx context.Context, args ...string) error
}

// NewLoader creates a Loader over the given object store, rooted at the
// user-storage mount point (each user's home is <mountRoot>/<uid>).
func NewLoader(store controlplane.ObjectStore, mountRoot string) *Loader {
	return &Loader{
		store:     store,
		mountRoot: mountRoot,
		chown: func(path string, uid int) error {
			return os.Chown(path, uid, -1)
		},
		runGit: func(ctx context.Context, args ...string) error {
			cmd := exec.CommandContext(ctx, "git", args...)
			out, err := cmd.CombinedOutput()
			if err != nil {
				return fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
			}
			return nil
		},
	}
}

// WithChown overrides the ownership function (tests).
func (l *Loader) WithChown(chown func(path string, uid int) error) *Loader {
	l.chown = chown
	return l
}

// WithGitRunner overrides git execution (tests).
func (l *Loader) WithGitRunner(run func(ctx context.Context, args ...string) error) *Loader {
	l.runGit = run
	return l
}

// EnsureHomeDir checks that the storage home folder for the given uid exists
// and is owned by that uid, creating it if absent. Ownership is applied
// immediately so a later failure still leaves a correctly owned directory.
func (l *Loader) EnsureHomeDir(uid string) (string, error) {
	numericUID, err := strconv.Atoi(uid)
	if err != nil {
		return "", fmt.Errorf("storage uid %q is not numeric: %w", uid, err)
	}
	home := filepath.Join(l.mountRoot, uid)
	if err := os.MkdirAll(home, 0o755); err != nil {
		return "", fmt.Errorf("creating home folder %s: %w", home, err)
	}
	if err := l.chown(home, numericUID); err != nil {
		return "", fmt.Errorf("setting ownership of %s: %w", home, err)
	}
	return home, nil
}

// CloneRepository clones repoURL into baseFolder/targetPath (or a folder
// named after the repository when targetPath is empty) and optionally checks
// out a ref. Does not set file ownership; run ChownRecursive afterwards.
func (l *Loader) CloneRepository(ctx context.Context, baseFolder, repoURL, targetPath, checkout string) (string, error) {
	if targetPath == "" {
		targetPath = repoFolderName(repoURL)
	}
	target := filepath.Join(baseFolder, targetPath)
	logging.Info(subsystem, "Cloning %s into %s", repoURL, target)
	if err := l.runGit(ctx, "clone", repoURL, target); err != nil {
		return "", err
	}
	if checkout != "" {
		logging.Info(subsystem, "Checking out %q", checkout)
		if err := l.runGit(ctx, "-C", target, "checkout", checkout); err != nil {
			return "", err
		}
	}
	return target, nil
}

// repoFolderName infers a checkout folder from the final path segment of a
// repository URL, stripping a trailing ".git".
func repoFolderName(repoURL string) string {
	name := repoURL[strings.LastIndex(repoURL, "/")+1:]
	if strings.HasSuffix(strings.ToLower(name), ".git") {
		name = name[:len(name)-len(".git")]
	}
	return name
}

// CopyObject downloads the object at uri into baseFolder/targetPath (or a
// file named after the object key when targetPath is empty). When extract is
// set, zip archives are expanded in place of the downloaded file; other
// archive formats are a hard NotImplementedError. Prefix ("folder") URIs
// are unsupported and fail rather than downloading nothing. Does not set
// file ownership; run ChownRecursive afterwards.
func (l *Loader) CopyObject(ctx context.Context, baseFolder, uri, targetPath string, extract, authenticated bool) (string, error) {
	key, err := objectKey(uri)
	if err != nil {
		return "", err
	}

	info, err := l.store.HeadObject(ctx, uri, authenticated)
	if err != nil {
		if controlplane.IsNotFound(err) {
			return "", &NotImplementedError{
				Feature: fmt.Sprintf("object not found and prefix/folder download for %s", uri),
			}
		}
		return "", err
	}
	if strings.EqualFold(info.ContentType, directoryContentType) {
		return "", &NotImplementedError{
			Feature: fmt.Sprintf("prefix/folder download for %s", uri),
		}
	}

	if targetPath == "" {
		targetPath = path.Base(key)
	}
	target := filepath.Join(baseFolder, targetPath)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}
	logging.Info(subsystem, "Downloading %s to %s", uri, target)
	if err := l.store.Download(ctx, uri, target, authenticated); err != nil {
		return "", err
	}
	if !extract {
		return target, nil
	}
	if err := l.extractZip(key, target); err != nil {
		return "", err
	}
	return target, nil
}

// extractZip expands the downloaded archive and atomically replaces the
// archive file with the extracted directory at the same path. Only the zip
// format is supported; an object with no file extension is assumed zip.
func (l *Loader) extractZip(key, target string) error {
	base := path.Base(key)
	ext := ""
	if i := strings.LastIndex(base, "."); i >= 0 {
		ext = strings.ToLower(base[i+1:])
	}
	if ext != "zip" && ext != "" {
		return &NotImplementedError{Feature: fmt.Sprintf("extraction of %q archives", ext)}
	}

	extractPath := target + "-tmp"
	logging.Info(subsystem, "Extracting %s to %s", target, extractPath)
	if err := unzip(target, extractPath); err != nil {
		return err
	}
	if err := os.Remove(target); err != nil {
		return err
	}
	return os.Rename(extractPath, target)
}

func unzip(archivePath, destDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive %s: %w", archivePath, err)
	}
	defer reader.Close()

	for _, entry := range reader.File {
		cleaned := filepath.Clean(entry.Name)
		if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
			return fmt.Errorf("archive entry %q escapes extraction root", entry.Name)
		}
		dest := filepath.Join(destDir, cleaned)
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, entry.Mode().Perm()|0o700); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		if err := extractEntry(entry, dest); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(entry *zip.File, dest string) error {
	src, err := entry.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, entry.Mode().Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, src)
	return err
}

// ChownRecursive applies ownership to path and, for directories, everything
// beneath it.
func (l *Loader) ChownRecursive(root string, uid string) error {
	numericUID, err := strconv.Atoi(uid)
	if err != nil {
		return fmt.Errorf("storage uid %q is not numeric: %w", uid, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return l.chown(root, numericUID)
	}
	return filepath.WalkDir(root, func(path string, _ os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		return l.chown(path, numericUID)
	})
}

// objectKey validates an object URI and returns its key part.
func objectKey(uri string) (string, error) {
	if !strings.HasPrefix(strings.ToLower(uri), objectURIScheme) {
		return "", fmt.Errorf("content URI must start with %q", objectURIScheme)
	}
	rest := uri[len(objectURIScheme):]
	_, key, found := strings.Cut(rest, "/")
	if !found || key == "" {
		return "", fmt.Errorf("content URI %q has no object key", uri)
	}
	return key, nil
}
