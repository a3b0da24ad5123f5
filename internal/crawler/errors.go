package crawler

import (
	"errors"
	"fmt"
)

// Kind classifies a fatal mirror failure. Each kind has a stable
// two-digit code shown to the user.
type Kind int

const (
	KindInvalidOutputDir Kind = iota
	KindTargetDirExists
	KindInvalidURL
	KindPageFetch
	KindPageRender
	KindResourceSave
	KindPageSave
)

var kindMessages = map[Kind]string{
	KindInvalidOutputDir: "Output directory is not a valid path",
	KindTargetDirExists:  "Target directory already exists",
	KindInvalidURL:       "Failed to access the target url",
	KindPageFetch:        "Failed to access the target url",
	KindPageRender:       "Failed to access the target url",
	KindResourceSave:     "Failed to download a static resource",
	KindPageSave:         "Failed to save a page",
}

// Code returns the two-digit code, e.g. "05"
func (k Kind) Code() string {
	return fmt.Sprintf("%02d", int(k))
}

// Message returns the fixed user-facing message for the kind
func (k Kind) Message() string {
	if msg, ok := kindMessages[k]; ok {
		return msg
	}
	return "Unknown error"
}

func (k Kind) String() string {
	switch k {
	case KindInvalidOutputDir:
		return "invalid_output_dir"
	case KindTargetDirExists:
		return "target_dir_exists"
	case KindInvalidURL:
		return "invalid_url"
	case KindPageFetch:
		return "page_fetch"
	case KindPageRender:
		return "page_render"
	case KindResourceSave:
		return "resource_save"
	case KindPageSave:
		return "page_save"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a coded failure that aborts a mirror run
type Error struct {
	Kind Kind
	URL  string // URL or path the failure relates to
	Err  error
}

// NewError creates a coded error
func NewError(kind Kind, url string, err error) *Error {
	return &Error{Kind: kind, URL: url, Err: err}
}

func (e *Error) Error() string {
	detail := e.URL
	if e.Err != nil {
		if detail != "" {
			detail += ": "
		}
		detail += e.Err.Error()
	}
	if detail == "" {
		return fmt.Sprintf("ERROR %s: %s", e.Kind.Code(), e.Kind.Message())
	}
	return fmt.Sprintf("ERROR %s: %s (%s)", e.Kind.Code(), e.Kind.Message(), detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Code returns the two-digit code of the error's kind
func (e *Error) Code() string {
	return e.Kind.Code()
}

// Message returns the user-facing message of the error's kind
func (e *Error) Message() string {
	return e.Kind.Message()
}

// KindOf reports the kind of a coded error anywhere in err's chain
func KindOf(err error) (Kind, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return 0, false
}
