package source

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultPodLogRoot is where the kubelet keeps container logs on a node.
const DefaultPodLogRoot = "/var/log/pods"

// PodLogDirs lists the container directories under root that belong to
// pods whose directory name starts with namespacePrefix. The kubelet
// lays logs out as <root>/<namespace>_<pod>_<uid>/<container>/<n>.log,
// so the prefix selects namespaces. The result is sorted.
func PodLogDirs(root, namespacePrefix string) ([]string, error) {
	pods, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading pod log root: %w", err)
	}
	var dirs []string
	for _, pod := range pods {
		if !pod.IsDir() || !strings.HasPrefix(pod.Name(), namespacePrefix) {
			continue
		}
		containers, err := os.ReadDir(filepath.Join(root, pod.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading pod %s: %w", pod.Name(), err)
		}
		for _, c := range containers {
			if c.IsDir() {
				dirs = append(dirs, filepath.Join(root, pod.Name(), c.Name()))
			}
		}
	}
	slices.Sort(dirs)
	return dirs, nil
}

// DiscoverPodLogs returns the .log files of every container PodLogDirs
// finds, sorted.
func DiscoverPodLogs(root, namespacePrefix string) ([]string, error) {
	dirs, err := PodLogDirs(root, namespacePrefix)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", dir, err)
		}
		for _, e := range entries {
			if !e.IsDir() && filepath.Ext(e.Name()) == ".log" {
				files = append(files, filepath.Join(dir, e.Name()))
			}
		}
	}
	slices.Sort(files)
	return files, nil
}
