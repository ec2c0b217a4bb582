package model

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	base := errors.New("dial tcp 127.0.0.1:1234: connect: connection refused")

	assert.Equal(t, ClassNone, Classify(nil))
	assert.Equal(t, ClassConnection, Classify(errors.Mark(base, ErrConnection)))
	assert.Equal(t, ClassTimeout, Classify(errors.Wrap(errors.Mark(base, ErrTimeout), "chat completion")))
	assert.Equal(t, ClassUnexpected, Classify(errors.Mark(base, ErrUnexpected)))
	assert.Equal(t, ClassUnexpected, Classify(base))
}
