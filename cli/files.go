package cli

import (
	"io/ioutil"
	"mime"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cbsinteractive/conversion-client/job"
	"github.com/pkg/errors"
)

// formatTypes maps model file extensions onto the content type they are
// uploaded as
var formatTypes = map[string]string{
	".sbml":   string(job.FormatSBML),
	".sbgn":   string(job.FormatSBGN),
	".escher": string(job.FormatEscher),
}

// readPayload reads a local file. An empty contentType is guessed from the
// file's extension.
func readPayload(path, contentType string) (job.Payload, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return job.Payload{}, errors.Wrap(err, "reading input")
	}
	if len(data) == 0 {
		return job.Payload{}, errors.Errorf("%s is empty", path)
	}
	if contentType == "" {
		contentType = guessType(path)
	}
	return job.Payload{Name: filepath.Base(path), ContentType: contentType, Data: data}, nil
}

func guessType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := formatTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func parseFormat(s string) (job.Format, error) {
	switch f := job.Format(strings.ToLower(s)); f {
	case job.FormatSBML, job.FormatSBGN, job.FormatEscher:
		return f, nil
	}
	return "", errors.Errorf("unknown format %q: want sbml, sbgn or escher", s)
}

func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.Errorf("file number %q: want a non-negative integer", s)
	}
	return n, nil
}
