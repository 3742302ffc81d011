// Package fileutil provides filesystem helpers shared across pgenv: directory
// creation and atomic write-to-temp-then-rename placement of files and
// directory trees.
package fileutil
