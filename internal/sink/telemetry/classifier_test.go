package telemetry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusClassifierTreats429And5xxAsRecoverable(t *testing.T) {
	c := newStatusClassifier()

	assert.True(t, c.IsRecoverable(&StatusError{StatusCode: 429}))
	assert.True(t, c.IsRecoverable(&StatusError{StatusCode: 500}))
	assert.True(t, c.IsRecoverable(&StatusError{StatusCode: 503}))
}

func TestStatusClassifierTreatsOther4xxAsNonRecoverable(t *testing.T) {
	c := newStatusClassifier()

	assert.False(t, c.IsRecoverable(&StatusError{StatusCode: 400}))
	assert.False(t, c.IsRecoverable(&StatusError{StatusCode: 401}))
	assert.False(t, c.IsRecoverable(&StatusError{StatusCode: 404}))
}

func TestStatusClassifierFallsBackForNonStatusErrors(t *testing.T) {
	c := newStatusClassifier()

	assert.True(t, c.IsRecoverable(errors.New("connection reset by peer")))
	assert.False(t, c.IsRecoverable(errors.New("invalid credentials")))
}
