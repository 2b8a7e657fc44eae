package job

import (
	"fmt"
	"mime"
	"path"
	"strings"
)

// Payload is the body of a file moving to or from a job slot.
type Payload struct {
	// Name is the local file name, if the payload came from disk.
	// It is informational only; the server never sees it.
	Name string `json:"name,omitempty"`

	ContentType string `json:"contentType,omitempty"`
	Data        []byte `json:"-"`
}

func (p Payload) Size() int {
	return len(p.Data)
}

func (p Payload) Empty() bool {
	return len(p.Data) == 0
}

// Type returns the extension of the local file name, without the dot.
func (p Payload) Type() string {
	return strings.TrimPrefix(path.Ext(p.Name), ".")
}

// Base returns the final element of the local file name.
func (p Payload) Base() string {
	return path.Base(p.Name)
}

// Ext is the file extension used when the payload is saved. It is the
// subtype of the content type ("image/png" -> "png"), or the whole type
// when it has no subtype ("sbml" -> "sbml").
func (p Payload) Ext() string {
	ct := p.ContentType
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	} else if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.TrimSpace(ct)
	if i := strings.LastIndexByte(ct, '/'); i >= 0 {
		ct = ct[i+1:]
	}
	if i := strings.IndexByte(ct, '+'); i >= 0 {
		ct = ct[:i]
	}
	return ct
}

// FileName is the name a downloaded slot file is saved under.
func FileName(id ID, index int, p Payload) string {
	if ext := p.Ext(); ext != "" {
		return fmt.Sprintf("%s_%d.%s", id, index, ext)
	}
	return fmt.Sprintf("%s_%d", id, index)
}

// LogName is the name a job's conversion log is saved under.
func LogName(id ID) string {
	return fmt.Sprintf("%s_log.txt", id)
}

// ProbeKind classifies the answer to "does this input exist?"
type ProbeKind int

const (
	ProbeAbsent ProbeKind = iota
	ProbePresent
	ProbeError
)

func (k ProbeKind) String() string {
	switch k {
	case ProbeAbsent:
		return "absent"
	case ProbePresent:
		return "present"
	case ProbeError:
		return "error"
	}
	return fmt.Sprintf("probe(%d)", int(k))
}

// Probe is the result of an existence check on a slot's input file.
// A ProbeError is inconclusive. It never means the file is missing.
type Probe struct {
	Kind        ProbeKind
	ContentType string
	Err         error
}

func Present(contentType string) Probe {
	return Probe{Kind: ProbePresent, ContentType: contentType}
}

func Absent() Probe {
	return Probe{Kind: ProbeAbsent}
}

func ProbeFailed(err error) Probe {
	return Probe{Kind: ProbeError, Err: err}
}

func (p Probe) String() string {
	switch p.Kind {
	case ProbePresent:
		return "present(" + p.ContentType + ")"
	case ProbeError:
		if p.Err != nil {
			return "error(" + p.Err.Error() + ")"
		}
	}
	return p.Kind.String()
}
