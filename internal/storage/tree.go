package storage

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
)

// Node types.
const (
	NodeFolder = "folder"
	NodeFile   = "file"
)

// Node is one entry of the vault tree.
type Node struct {
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	Type     string  `json:"type"`
	Children []*Node `json:"children,omitempty"`
}

// Tree returns the vault hierarchy rooted at an unnamed-path folder node.
// Only notes and folders are included; hidden entries are skipped. Folders
// sort before files, each group alphabetically.
func (f *FS) Tree() (*Node, error) {
	root := &Node{Name: filepath.Base(f.root), Type: NodeFolder}
	if err := f.fill(root, f.root); err != nil {
		return nil, err
	}
	return root, nil
}

func (f *FS) fill(n *Node, abs string) error {
	entries, err := os.ReadDir(abs)
	if err != nil {
		return fmt.Errorf("storage: tree %s: %w", abs, err)
	}
	n.Children = []*Node{}
	for _, e := range entries {
		name := e.Name()
		if Hidden(name) {
			continue
		}
		child := &Node{Name: name, Path: path.Join(n.Path, name)}
		switch {
		case e.IsDir():
			child.Type = NodeFolder
			if err := f.fill(child, filepath.Join(abs, name)); err != nil {
				return err
			}
		case IsNote(name):
			child.Type = NodeFile
		default:
			continue
		}
		n.Children = append(n.Children, child)
	}
	sort.SliceStable(n.Children, func(i, j int) bool {
		a, b := n.Children[i], n.Children[j]
		if a.Type != b.Type {
			return a.Type == NodeFolder
		}
		return a.Name < b.Name
	})
	return nil
}
