package qc

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// A result file is named "<id_run>_<position>[#<tag_index>].<category>.json",
// optionally gzipped, e.g. "26291_1.spatial_filter.json" or
// "26291_1#4.bam_flagstats.json.gz".
var resultNameRe = regexp.MustCompile(`^(\d+)_(\d+)(#(\d+))?\.([a-z_]+)\.json(\.gz)?$`)

// FileInfo is the result of parsing a QC result filename.
type FileInfo struct {
	Path     string
	IDRun    int
	Position int
	TagIndex *int
	Category Category
}

// ParsePath parses a QC result pathname into its constituent parts.  Files
// that do not follow the result naming scheme yield an error; LoadDir skips
// them.
func ParsePath(path string) (FileInfo, error) {
	fi := FileInfo{Path: path}
	m := resultNameRe.FindStringSubmatch(file.Base(path))
	if m == nil {
		return fi, fmt.Errorf("qc: %s: not a result file", path)
	}
	mustParseInt := func(s string) int {
		v, err := strconv.Atoi(s)
		if err != nil {
			panic(err)
		}
		return v
	}
	fi.IDRun = mustParseInt(m[1])
	fi.Position = mustParseInt(m[2])
	if m[4] != "" {
		tag := mustParseInt(m[4])
		fi.TagIndex = &tag
	}
	fi.Category = Category(m[5])
	return fi, nil
}

// LoadDir reads every QC result file under dir (recursively) into a
// Collection.  Filenames outside the result naming scheme are skipped.  An
// empty directory yields an empty Collection, which is legal; the caller
// decides what an empty store means.
func LoadDir(ctx context.Context, dir string) (*Collection, error) {
	c := &Collection{}
	lister := file.List(ctx, dir, true)
	for lister.Scan() {
		fi, err := ParsePath(lister.Path())
		if err != nil {
			log.Debug.Printf("qc: ignoring %v", err)
			continue
		}
		r, err := loadResult(ctx, fi)
		if err != nil {
			return nil, err
		}
		c.Results = append(c.Results, r)
	}
	if err := lister.Err(); err != nil {
		return nil, errors.E(err, "qc: listing", dir)
	}
	if len(c.Results) == 0 {
		log.Printf("qc: no results found under %s", dir)
	}
	return c, nil
}

func loadResult(ctx context.Context, fi FileInfo) (r Result, err error) {
	var in file.File
	if in, err = file.Open(ctx, fi.Path); err != nil {
		return r, errors.E(err, "qc: open", fi.Path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	body, _ := compress.NewReader(in.Reader(ctx))
	defer func() {
		if e := body.Close(); e != nil && err == nil {
			err = e
		}
	}()
	if err = json.NewDecoder(body).Decode(&r); err != nil {
		return r, errors.E(err, "qc: decode", fi.Path)
	}
	r.Category = fi.Category
	// The filename and the payload encode the same coordinates; trust the
	// payload only when the two agree.
	if r.IDRun != fi.IDRun || r.Position != fi.Position {
		return r, fmt.Errorf("qc: %s: payload run %d position %d disagrees with filename",
			fi.Path, r.IDRun, r.Position)
	}
	if (r.TagIndex == nil) != (fi.TagIndex == nil) {
		return r, fmt.Errorf("qc: %s: payload tag index disagrees with filename", fi.Path)
	}
	return r, nil
}

// IsResultName reports whether base looks like a QC result filename.  It is
// a cheap pre-filter for callers walking large run folders.
func IsResultName(base string) bool {
	if !strings.HasSuffix(base, ".json") && !strings.HasSuffix(base, ".json.gz") {
		return false
	}
	return resultNameRe.MatchString(base)
}
