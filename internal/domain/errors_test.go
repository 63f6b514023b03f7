package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestTypedErrorsUnwrapToSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"unknown tag", &UnknownTagError{PostID: 7, Name: "x"}, ErrUnknownTagReference},
		{"tag range", &TagRangeError{TagID: 999, MaxTagID: 1}, ErrTagIDOutOfRange},
		{"duplicate", &DuplicateTagError{ID: 1, Name: "a", Field: "name"}, ErrDuplicateTag},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("context: %w", tt.err)
			if !errors.Is(wrapped, tt.sentinel) {
				t.Errorf("expected %v to match %v", wrapped, tt.sentinel)
			}
		})
	}
}

func TestIsQueryError(t *testing.T) {
	if !IsQueryError(ErrEmptyQuery) {
		t.Error("expected ErrEmptyQuery to be a query error")
	}
	if !IsQueryError(&TagRangeError{TagID: 5, MaxTagID: 1}) {
		t.Error("expected TagRangeError to be a query error")
	}
	if IsQueryError(ErrCorruptStore) {
		t.Error("expected ErrCorruptStore not to be a query error")
	}
}
