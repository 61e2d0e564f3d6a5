// Package ingest reads the herb/symptom dictionary into ordered records.
//
// Each input line after the header is either
//
//	herb<TAB>symptom
//	herb<TAB>symptom<TAB>english_name<TAB>source_db<TAB>source_id
//
// Herbs and symptoms are numbered in order of first appearance.
package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/TobiSchelling/herbtax/internal/core"
	"github.com/TobiSchelling/herbtax/internal/features"
)

const stage = "ingest"

// maxLineBytes bounds a single dictionary line.
const maxLineBytes = 1 << 20

// Annotation carries the optional columns of a five-column row.
type Annotation struct {
	English  string `json:"english,omitempty"`
	SourceDB string `json:"source_db,omitempty"`
	SourceID string `json:"source_id,omitempty"`
}

// Dictionary is the decoded herb -> symptom mapping.
type Dictionary struct {
	Records     []features.Record
	Universe    []string
	Annotations map[string]Annotation // keyed by symptom
	Rows        int                   // data rows read, header excluded
}

// Parse decodes a dictionary stream. The first line is a header and is
// discarded; blank lines are skipped.
func Parse(r io.Reader) (*Dictionary, error) {
	dict := &Dictionary{Annotations: make(map[string]Annotation)}
	entities := make(map[string]int)
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo == 1 {
			continue
		}
		// Trailing tabs are empty columns, so only the line ending is trimmed.
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 2 && len(fields) != 5 {
			return nil, core.Invalid(stage, "line %d has %d columns, expected 2 or 5", lineNo, len(fields))
		}
		herb, symptom := strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1])
		if herb == "" || symptom == "" {
			return nil, core.Invalid(stage, "line %d has an empty herb or symptom", lineNo)
		}

		idx, ok := entities[herb]
		if !ok {
			idx = len(dict.Records)
			entities[herb] = idx
			dict.Records = append(dict.Records, features.Record{Entity: herb})
		}
		dict.Records[idx].Attributes = append(dict.Records[idx].Attributes, symptom)

		if !seen[symptom] {
			seen[symptom] = true
			dict.Universe = append(dict.Universe, symptom)
		}

		if len(fields) == 5 {
			// Some symptoms have no good English translation; keep the first
			// non-empty one.
			ann := dict.Annotations[symptom]
			if ann.English == "" {
				ann.English = strings.TrimSpace(fields[2])
			}
			if ann.SourceDB == "" {
				ann.SourceDB = strings.TrimSpace(fields[3])
				ann.SourceID = strings.TrimSpace(fields[4])
			}
			dict.Annotations[symptom] = ann
		}
		dict.Rows++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading dictionary at line %d: %w", lineNo+1, err)
	}
	if lineNo == 0 {
		return nil, core.Invalid(stage, "dictionary is empty, expected a header line")
	}

	return dict, nil
}

// Loader opens dictionaries from local paths, http(s) URLs or
// s3://bucket/key sources.
type Loader struct {
	objects ObjectGetter
	web     *HTTPSource
}

// NewLoader creates a loader. objects may be nil when no s3:// source is used.
func NewLoader(objects ObjectGetter) *Loader {
	return &Loader{objects: objects, web: NewHTTPSource(0)}
}

// Load opens source, decompresses it by extension and parses it.
func (l *Loader) Load(ctx context.Context, source string) (*Dictionary, error) {
	rc, err := l.open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	dict, err := Parse(rc)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", source, err)
	}

	slog.Info("dictionary loaded",
		"source", source,
		"rows", dict.Rows,
		"herbs", len(dict.Records),
		"symptoms", len(dict.Universe))
	return dict, nil
}

func (l *Loader) open(ctx context.Context, source string) (io.ReadCloser, error) {
	var raw io.ReadCloser
	name := source
	if isHTTP(source) {
		body, err := l.web.Open(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("downloading %s: %w", source, err)
		}
		raw = body
		name = urlName(source)
	} else if bucket, key, ok := parseS3(source); ok {
		if l.objects == nil {
			return nil, fmt.Errorf("opening %s: no object store configured", source)
		}
		obj, err := l.objects.GetObject(ctx, bucket, key)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", source, err)
		}
		raw = obj
	} else {
		f, err := openFile(source)
		if err != nil {
			return nil, err
		}
		raw = f
	}

	rc, err := decompress(raw, name)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("decompressing %s: %w", source, err)
	}
	return rc, nil
}

// parseS3 splits s3://bucket/key.
func parseS3(source string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(source, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
