package classifier

import (
	"fmt"
	"slices"
	"strings"

	"github.com/urbansound/soundscape/internal/errors"
)

// LabelSet is an ordered list of class names with a reverse index
type LabelSet struct {
	names []string
	index map[string]int
}

// NewLabelSet builds a label set. Names must be non-empty and unique.
func NewLabelSet(names []string) (*LabelSet, error) {
	if len(names) == 0 {
		return nil, errors.New(ErrEmptyModel).
			Component("classifier").
			Category(errors.CategoryValidation).
			Build()
	}

	ls := &LabelSet{
		names: slices.Clone(names),
		index: make(map[string]int, len(names)),
	}
	for i, name := range ls.names {
		if strings.TrimSpace(name) == "" {
			return nil, errors.Newf("label %d is empty", i).
				Component("classifier").
				Category(errors.CategoryValidation).
				Build()
		}
		if _, dup := ls.index[name]; dup {
			return nil, errors.Newf("duplicate label %q", name).
				Component("classifier").
				Category(errors.CategoryValidation).
				Build()
		}
		ls.index[name] = i
	}
	return ls, nil
}

// Len returns the number of labels
func (ls *LabelSet) Len() int {
	return len(ls.names)
}

// Name returns the label at index i
func (ls *LabelSet) Name(i int) string {
	if i < 0 || i >= len(ls.names) {
		return ""
	}
	return ls.names[i]
}

// Index returns the position of name
func (ls *LabelSet) Index(name string) (int, bool) {
	i, ok := ls.index[name]
	return i, ok
}

// Names returns a copy of the ordered labels
func (ls *LabelSet) Names() []string {
	return slices.Clone(ls.names)
}

func (ls *LabelSet) String() string {
	return fmt.Sprintf("LabelSet%v", ls.names)
}
