package executor

import (
	"strings"

	"github.com/asimalsarhani/portal-runner/pkg/core"
	"github.com/asimalsarhani/portal-runner/pkg/flow"
)

// framed lets the verification race see both the login iframe and the
// top-level document: an error is usually rendered inside the frame, while a
// successful login replaces the whole page.
type framed struct {
	core.Page // top-level document
	frame     core.Page
	loc       flow.Locator
}

// attached reports whether the iframe is still in the top-level document.
func (f *framed) attached() bool {
	elems, err := f.Page.Query(f.loc)
	return err == nil && len(elems) > 0
}

func (f *framed) Query(loc flow.Locator) ([]core.Element, error) {
	if f.attached() {
		if elems, err := f.frame.Query(loc); err == nil && len(elems) > 0 {
			return elems, nil
		}
	}
	return f.Page.Query(loc)
}

func (f *framed) Text() (string, error) {
	top, err := f.Page.Text()
	if !f.attached() {
		return top, err
	}
	inner, innerErr := f.frame.Text()
	if err != nil {
		return inner, innerErr
	}
	if innerErr != nil {
		return top, nil
	}
	return strings.TrimSpace(top + "\n" + inner), nil
}
