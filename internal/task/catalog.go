/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package task

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Catalog is a domain → task-id → Descriptor map, the on-disk shape of the
// "--test_all_meta_path" file named in §6.
type Catalog map[string]map[string]Descriptor

// LoadCatalog reads a meta file mapping domain -> list of task IDs, and a
// directory of per-task JSON descriptors named "{domain}/{task_id}.json",
// matching the original tool's examples_windows layout.
func LoadCatalog(metaPath, examplesDir string) (Catalog, error) {
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog meta %q: %w", metaPath, err)
	}

	var meta map[string][]string
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("parse catalog meta %q: %w", metaPath, err)
	}

	cat := make(Catalog, len(meta))
	for domain, ids := range meta {
		tasks := make(map[string]Descriptor, len(ids))
		for _, id := range ids {
			path := fmt.Sprintf("%s/%s/%s.json", examplesDir, domain, id)
			d, err := loadDescriptor(path)
			if err != nil {
				return nil, fmt.Errorf("load task %s/%s: %w", domain, id, err)
			}
			d.ID = id
			d.Domain = domain
			if err := d.Evaluator.Validate(); err != nil {
				return nil, fmt.Errorf("task %s/%s: %w", domain, id, err)
			}
			tasks[id] = d
		}
		cat[domain] = tasks
	}
	return cat, nil
}

func loadDescriptor(path string) (Descriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, err
	}
	var d Descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

// Flatten returns the catalog's tasks as an ordered list of keys, domains
// sorted lexically and task IDs sorted lexically within a domain, so that
// partitioning (§4.7) is deterministic across worker processes reading the
// same catalog independently.
func (c Catalog) Flatten() []Key {
	domains := make([]string, 0, len(c))
	for d := range c {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	keys := make([]Key, 0)
	for _, d := range domains {
		ids := make([]string, 0, len(c[d]))
		for id := range c[d] {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			keys = append(keys, Key{Domain: d, TaskID: id})
		}
	}
	return keys
}

// Get looks up one descriptor by key.
func (c Catalog) Get(k Key) (Descriptor, bool) {
	domain, ok := c[k.Domain]
	if !ok {
		return Descriptor{}, false
	}
	d, ok := domain[k.TaskID]
	return d, ok
}
