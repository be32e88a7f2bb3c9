package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Dataset is the subset of a YOLO data.yaml file the pipeline reads.
// Everything else in the file belongs to the training library.
type Dataset struct {
	// Names maps class ids to class names.
	Names map[int]string
}

// errNamesMissing is returned when data.yaml has no usable names section.
var errNamesMissing = errors.New("data.yaml has no names")

// LoadDataset reads class names from a data.yaml file.
// Both the list form (names: [a, b]) and the map form (names: {0: a}) are accepted.
func LoadDataset(path string) (*Dataset, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}

	var raw struct {
		Names yaml.Node `yaml:"names"`
	}

	if err = yaml.Unmarshal(contents, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal dataset: %w", err)
	}

	names := make(map[int]string)

	switch raw.Names.Kind {
	case yaml.SequenceNode:
		var list []string
		if err = raw.Names.Decode(&list); err != nil {
			return nil, fmt.Errorf("decode names list: %w", err)
		}

		for i, name := range list {
			names[i] = name
		}
	case yaml.MappingNode:
		if err = raw.Names.Decode(&names); err != nil {
			return nil, fmt.Errorf("decode names map: %w", err)
		}
	default:
		return nil, errNamesMissing
	}

	if len(names) == 0 {
		return nil, errNamesMissing
	}

	return &Dataset{Names: names}, nil
}

// Name returns the class name for id.
func (d *Dataset) Name(id int) (string, bool) {
	if d == nil {
		return "", false
	}

	name, ok := d.Names[id]

	return name, ok
}

// List returns the class names ordered by id.
func (d *Dataset) List() []string {
	if d == nil {
		return nil
	}

	ids := make([]int, 0, len(d.Names))
	for id := range d.Names {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	list := make([]string, 0, len(ids))
	for _, id := range ids {
		list = append(list, d.Names[id])
	}

	return list
}
