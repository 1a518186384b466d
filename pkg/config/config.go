// Package config loads replacement plans: which logical paths of an archive
// to replace, with what content, and which to delete.
//
// A plan is a TOML document:
//
//	delete = ["res://old/unused.tscn"]
//
//	[replace]
//	"res://ui/title.png" = "../assets/title.png"
//	"res://text/en.csv"  = "en.csv"
//
// The deletion list may also be written as a table with a paths array:
//
//	[delete]
//	paths = ["res://old/unused.tscn"]
//
// Replacement values name assets inside an fs.FS supplied by the caller,
// usually an embed.FS or an os.DirFS of an assets directory.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Replacement is the new content for one logical path.
type Replacement struct {
	Path    string
	Asset   string // Key the content was loaded from
	Content []byte
}

// Plan is a resolved set of archive changes.
type Plan struct {
	Replacements []Replacement
	Deletions    []string
}

type document struct {
	Replace map[string]any `toml:"replace"`
	Delete  toml.Primitive `toml:"delete"`
}

// Parse decodes a plan from TOML and loads every referenced asset from assets.
func Parse(data []byte, assets fs.FS) (*Plan, error) {
	var doc document
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if !md.IsDefined("replace") {
		return nil, errors.New("plan has no [replace] table")
	}

	plan := &Plan{}
	if md.IsDefined("delete") {
		plan.Deletions, err = decodeDeletions(md, doc.Delete)
		if err != nil {
			return nil, err
		}
	}

	for _, path := range replaceOrder(md, doc.Replace) {
		value, ok := doc.Replace[path].(string)
		if !ok {
			return nil, fmt.Errorf("replace value for %s must be a string", path)
		}
		key := AssetKey(value)
		content, err := fs.ReadFile(assets, key)
		if err != nil {
			return nil, fmt.Errorf("load asset for %s (asset %s, key %s): %w", path, value, key, err)
		}
		plan.Replacements = append(plan.Replacements, Replacement{
			Path:    path,
			Asset:   key,
			Content: content,
		})
	}

	return plan, nil
}

// Load reads a plan file. Assets are resolved relative to assetsDir, or to
// the directory holding the plan when assetsDir is empty.
func Load(path, assetsDir string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	if assetsDir == "" {
		assetsDir = filepath.Dir(path)
	}
	plan, err := Parse(data, os.DirFS(assetsDir))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return plan, nil
}

// AssetKey turns a replace value into an fs.FS key. Values written relative
// to the plan file ("../assets/x" or "./x") and plain keys are accepted.
func AssetKey(value string) string {
	key := strings.TrimPrefix(value, "../assets/")
	key = strings.TrimPrefix(key, "./")
	return key
}

func decodeDeletions(md toml.MetaData, prim toml.Primitive) ([]string, error) {
	var list []string
	if err := md.PrimitiveDecode(prim, &list); err == nil {
		return list, nil
	}

	var table struct {
		Paths *[]string `toml:"paths"`
	}
	if err := md.PrimitiveDecode(prim, &table); err != nil {
		return nil, fmt.Errorf("delete must be an array of strings or a table with a paths array: %w", err)
	}
	if table.Paths == nil {
		return nil, errors.New("delete table needs a paths array")
	}
	return *table.Paths, nil
}

// replaceOrder returns the keys of the replace table in document order.
func replaceOrder(md toml.MetaData, replace map[string]any) []string {
	order := make([]string, 0, len(replace))
	for _, key := range md.Keys() {
		if len(key) == 2 && key[0] == "replace" {
			order = append(order, key[1])
		}
	}
	if len(order) != len(replace) {
		// Dotted or inline forms can hide keys from the walk; fall back to the map.
		order = order[:0]
		for k := range replace {
			order = append(order, k)
		}
		sort.Strings(order)
	}
	return order
}
